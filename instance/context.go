package instance

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/coremodules"
	"github.com/wippyai/hostbridge/idle"
	"github.com/wippyai/hostbridge/queue"
	"github.com/wippyai/hostbridge/uimanager"
)

// Context is one runtime context: a bridge with its UI manager and idle
// detector. It is built on the creation goroutine and installed, used and
// destroyed on the UI queue.
type Context struct {
	Bridge    *bridge.Bridge
	UIManager *uimanager.Manager
	Idle      *idle.Detector

	params CreationParams
}

// ID identifies the context in logs.
func (c *Context) ID() string {
	return c.Bridge.ID()
}

// Params returns the parameters the context was built from.
func (c *Context) Params() CreationParams {
	return c.params
}

func (c *Context) runApplication(rv *RootView) {
	if err := c.UIManager.AddRootView(rv.Tag()); err != nil {
		c.Bridge.HandleException(err)
		return
	}
	h, err := c.Bridge.RuntimeModule(coremodules.AppRegistry)
	if err == nil {
		err = h.Call("runApplication", rv.AppName, rv.appParams())
	}
	if err != nil {
		c.Bridge.HandleException(err)
	}
	Logger().Debug("root view attached",
		zap.String("context", c.ID()),
		zap.String("app", rv.AppName),
		zap.Int("tag", rv.Tag()))
}

func (c *Context) stopApplication(rv *RootView) {
	h, err := c.Bridge.RuntimeModule(coremodules.AppRegistry)
	if err == nil {
		err = h.Call("unmountApplicationComponentAtRootTag", rv.Tag())
	}
	if err != nil {
		c.Bridge.HandleException(err)
	}
	c.UIManager.RemoveRootView(rv.Tag())
}

// destroy releases the context. UI queue only.
func (c *Context) destroy() {
	c.Idle.Close()
	c.Bridge.Destroy()
}

// discard destroys c on ui, or directly when ui has quit.
func (c *Context) discard(ui *queue.MessageQueue) {
	if err := ui.RunSync(c.destroy); err != nil {
		Logger().Warn("UI queue gone, releasing context directly",
			zap.String("context", c.ID()),
			zap.Error(err))
		c.release()
	}
}

// release tears c down without the UI queue.
func (c *Context) release() {
	c.Idle.Close()
	c.Bridge.Release()
}
