package coremodules

import (
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/nativemodule"
)

const LinkingName = "Linking"

// ActionView is the intent action carrying a deep link.
const ActionView = "VIEW"

type linking struct {
	host    nativemodule.Host
	initial string
}

func linkingSpec(initial string) nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name: LinkingName,
		Factory: func(host nativemodule.Host) nativemodule.NativeModule {
			return &linking{host: host, initial: initial}
		},
	}
}

func (m *linking) Name() string { return LinkingName }

func (m *linking) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{Name: "getInitialURL", Handler: func(c *nativemodule.Call) (any, error) {
			if m.initial == "" {
				c.Callback.Invoke(nil)
				return nil, nil
			}
			return m.initial, nil
		}},
	}
}

func (m *linking) OnActivityResult(int, int, map[string]any) {}

// OnNewIntent emits "url" for VIEW intents carrying data.
func (m *linking) OnNewIntent(action, data string) {
	if action != ActionView || data == "" {
		return
	}
	if err := Emit(m.host, "url", map[string]any{"url": data}); err != nil {
		Logger().Warn("emit url", zap.Error(err))
	}
}
