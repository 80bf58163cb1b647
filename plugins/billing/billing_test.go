package billing

import (
	"io"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/flutterbridge/hostbridge"
	"github.com/flutterbridge/hostbridge/bridgetest"
	"github.com/flutterbridge/hostbridge/engine"
	"github.com/flutterbridge/hostbridge/lifecycle"
)

const prefix = "dev.flutter.pigeon."

type fakeClient struct {
	mu       sync.Mutex
	ready    bool
	listener PurchasesListener
	launched []string
}

func (c *fakeClient) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeClient) QueryProductDetails(ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if id == "gone" {
			return nil, errors.WithStack(&BillingError{ResponseCode: 4, DebugMessage: "item unavailable"})
		}
		out = append(out, Product{ID: id, Title: "Title " + id, Price: "$1"})
	}
	return out, nil
}

func (c *fakeClient) LaunchBillingFlow(productID, accountID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launched = append(c.launched, productID+"/"+accountID)
	return 0, nil
}

func (c *fakeClient) SetListener(l PurchasesListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

func (c *fakeClient) purchase(code int64, ps ...Purchase) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	l(code, ps)
}

func setup(t *testing.T) (*fakeClient, *engine.Engine, *bridgetest.UI) {
	t.Helper()
	pipe := bridgetest.NewPipe(t)
	e := engine.New(pipe.Host, nil, log.NewStdLogger(io.Discard))
	client := &fakeClient{ready: true}
	require.NoError(t, e.Add(New(client)))
	_, err := e.Attach()
	require.NoError(t, err)
	t.Cleanup(func() { e.Detach() })
	return client, e, pipe.UI
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *hostbridge.Error
	require.True(t, errors.As(err, &e), "got %v", err)
	require.Equal(t, code, e.Code)
}

func TestLaunchNeedsActivity(t *testing.T) {
	client, e, ui := setup(t)
	lc := e.Current().Lifecycle

	_, err := ui.Call(prefix+"InAppPurchaseApi.launchBillingFlow", "coins", nil)
	requireCode(t, err, hostbridge.CodeUnavailable)
	require.Empty(t, client.launched)

	require.NoError(t, lc.MoveTo(lifecycle.Resumed))
	code, err := ui.Call(prefix+"InAppPurchaseApi.launchBillingFlow", "coins", "acct")
	require.NoError(t, err)
	require.EqualValues(t, 0, code)

	require.NoError(t, lc.MoveTo(lifecycle.Stopped))
	_, err = ui.Call(prefix+"InAppPurchaseApi.launchBillingFlow", "coins", nil)
	require.NoError(t, err)

	require.NoError(t, lc.MoveTo(lifecycle.Destroyed))
	_, err = ui.Call(prefix+"InAppPurchaseApi.launchBillingFlow", "coins", nil)
	requireCode(t, err, hostbridge.CodeUnavailable)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, []string{"coins/acct", "coins/"}, client.launched)
}

func TestDisconnectedClient(t *testing.T) {
	client, e, ui := setup(t)
	require.NoError(t, e.Current().Lifecycle.MoveTo(lifecycle.Resumed))
	client.mu.Lock()
	client.ready = false
	client.mu.Unlock()

	ready, err := ui.Call(prefix + "InAppPurchaseApi.isReady")
	require.NoError(t, err)
	require.Equal(t, false, ready)
	_, err = ui.Call(prefix+"InAppPurchaseApi.launchBillingFlow", "coins", nil)
	requireCode(t, err, hostbridge.CodeUnavailable)
}

func TestQueryProductDetails(t *testing.T) {
	_, _, ui := setup(t)

	got, err := ui.Call(prefix+"InAppPurchaseApi.queryProductDetails", []any{"a", "b"})
	require.NoError(t, err)
	want := []any{
		map[any]any{"productId": "a", "title": "Title a", "price": "$1"},
		map[any]any{"productId": "b", "title": "Title b", "price": "$1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("products mismatch (-want +got):\n%s", diff)
	}

	_, err = ui.Call(prefix+"InAppPurchaseApi.queryProductDetails", []any{"a", "gone"})
	requireCode(t, err, "BillingError")
	var e *hostbridge.Error
	require.True(t, errors.As(err, &e))
	require.Contains(t, e.Message, "item unavailable")

	_, err = ui.Call(prefix+"InAppPurchaseApi.queryProductDetails", []any{"a", int32(3)})
	requireCode(t, err, "ArgumentError")
}

func TestPurchasesUpdated(t *testing.T) {
	client, e, ui := setup(t)
	name := prefix + "InAppPurchaseCallbackApi.onPurchasesUpdated"
	ui.Handle(name, nil)

	// the SDK reports from its own goroutine
	go client.purchase(0, Purchase{Token: "tok", ProductID: "coins", State: 1})
	calls, err := ui.WaitReceived(name, 1)
	require.NoError(t, err)
	want := []any{int32(0), []any{map[any]any{"purchaseToken": "tok", "productId": "coins", "purchaseState": int32(1)}}}
	if diff := cmp.Diff(want, calls[0].Args); diff != "" {
		t.Errorf("onPurchasesUpdated mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, e.Detach())
	client.mu.Lock()
	defer client.mu.Unlock()
	require.Nil(t, client.listener)
}
