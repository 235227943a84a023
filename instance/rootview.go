package instance

import "sync/atomic"

// RootView is a host surface running one runtime application. The manager
// keeps attached root views across context recreation and runs their
// application again in every new context.
type RootView struct {
	AppName      string
	InitialProps map[string]any

	tag atomic.Int64
}

// NewRootView creates a root view for the named application.
func NewRootView(appName string, initialProps map[string]any) *RootView {
	return &RootView{AppName: appName, InitialProps: initialProps}
}

// Tag returns the root tag, or 0 before the view was first attached.
func (rv *RootView) Tag() int {
	return int(rv.tag.Load())
}

func (rv *RootView) appParams() map[string]any {
	params := map[string]any{"rootTag": rv.Tag()}
	if rv.InitialProps != nil {
		params["initialProps"] = rv.InitialProps
	}
	return params
}
