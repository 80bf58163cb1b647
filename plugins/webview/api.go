package webview

//go:generate go run github.com/flutterbridge/hostbridge/bridgegen .

//bridge:hostapi WebViewHostApi
type HostAPI interface {
	Create(instanceId int64) error
	LoadUrl(instanceId int64, url string, headers map[any]any) error
	GetUrl(instanceId int64) (string, error)
	SetWebViewClient(instanceId int64, clientInstanceId int64) error
	Dispose(instanceId int64) error
}

//bridge:hostapi WebViewClientHostApi
type ClientHostAPI interface {
	Create(instanceId int64) error
}

//bridge:flutterapi WebViewClientFlutterApi
type ClientFlutterAPI interface {
	OnPageStarted(instanceId int64, webViewInstanceId int64, url string) error
	OnPageFinished(instanceId int64, webViewInstanceId int64, url string) error
	OnReceivedError(instanceId int64, webViewInstanceId int64, errorCode int64, description string, failingUrl string) error
}
