// Package billing exposes in-app purchases to the UI side.
//
// Launching a purchase needs a foreground activity; without one the call
// fails with UNAVAILABLE. Errors reported by the billing SDK reach the UI
// with the SDK error's type name as code.
package billing

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/engine"
)

const (
	HostAPI     = "InAppPurchaseApi"
	CallbackAPI = "InAppPurchaseCallbackApi"
)

type Product struct {
	ID    string
	Title string
	Price string
}

type Purchase struct {
	Token     string
	ProductID string
	State     int64
}

// PurchasesListener is called by the SDK, from any goroutine, whenever
// purchases change.
type PurchasesListener func(responseCode int64, purchases []Purchase)

// Client is the platform billing SDK.
type Client interface {
	IsReady() bool
	QueryProductDetails(ids []string) ([]Product, error)
	// LaunchBillingFlow shows the purchase sheet and returns the SDK
	// response code.
	LaunchBillingFlow(productID, accountID string) (int64, error)
	SetListener(l PurchasesListener)
}

// BillingError is a failure reported by the billing service.
type BillingError struct {
	ResponseCode int64
	DebugMessage string
}

func (e *BillingError) Error() string {
	return fmt.Sprintf("billing response %d: %s", e.ResponseCode, e.DebugMessage)
}

type Plugin struct {
	client Client
	a      *engine.Attachment
	log    *log.Helper
}

var _ engine.Plugin = (*Plugin)(nil)

func New(client Client) *Plugin {
	return &Plugin{client: client}
}

func (p *Plugin) Name() string { return "billing" }

func (p *Plugin) Attach(a *engine.Attachment) error {
	p.a = a
	p.log = log.NewHelper(log.With(a.Logger, "module", "billing"))
	r := a.Registrar
	r.Handle(r.ChannelName(HostAPI, "isReady"), p.isReady)
	r.Handle(r.ChannelName(HostAPI, "queryProductDetails"), p.queryProductDetails)
	r.Handle(r.ChannelName(HostAPI, "launchBillingFlow"), p.launchBillingFlow)
	p.client.SetListener(p.onPurchasesUpdated)
	return nil
}

func (p *Plugin) Detach() {
	p.client.SetListener(nil)
}

func (p *Plugin) isReady(*hostbridge.Call) (any, error) {
	return p.client.IsReady(), nil
}

func (p *Plugin) queryProductDetails(call *hostbridge.Call) (any, error) {
	list, err := call.List(0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, &hostbridge.ArgumentError{Channel: call.Channel, Index: 0, Want: "list of strings", Got: list}
		}
		ids[i] = s
	}
	products, err := p.client.QueryProductDetails(ids)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(products))
	for i, pr := range products {
		out[i] = map[string]any{"productId": pr.ID, "title": pr.Title, "price": pr.Price}
	}
	return out, nil
}

func (p *Plugin) launchBillingFlow(call *hostbridge.Call) (any, error) {
	productID, err := call.String(0)
	if err != nil {
		return nil, err
	}
	accountID, _, err := call.OptionalString(1)
	if err != nil {
		return nil, err
	}
	if state := p.a.Lifecycle.State(); !state.HasActivity() {
		return nil, hostbridge.Unavailable("launchBillingFlow needs a foreground activity, lifecycle is %s", state)
	}
	if !p.client.IsReady() {
		return nil, hostbridge.Unavailable("billing client is not connected")
	}
	return p.client.LaunchBillingFlow(productID, accountID)
}

func (p *Plugin) onPurchasesUpdated(responseCode int64, purchases []Purchase) {
	list := make([]any, len(purchases))
	for i, pu := range purchases {
		list[i] = map[string]any{"purchaseToken": pu.Token, "productId": pu.ProductID, "purchaseState": pu.State}
	}
	r := p.a.Registrar
	err := r.Emit(r.ChannelName(CallbackAPI, "onPurchasesUpdated"), []any{responseCode, list}, func(_ any, err error) {
		if err != nil {
			p.log.Warnf("onPurchasesUpdated: %v", err)
		}
	})
	if err != nil {
		p.log.Warnf("onPurchasesUpdated: %v", err)
	}
}
