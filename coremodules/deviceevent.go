package coremodules

import (
	"github.com/wippyai/hostbridge/nativemodule"
)

const DeviceEventManagerName = "DeviceEventManager"

// HardwareBackPress is the event sent to the runtime on a back press.
const HardwareBackPress = "hardwareBackPress"

type deviceEventManager struct {
	host        nativemodule.Host
	backHandler func() func()
}

func deviceEventSpec(backHandler func() func()) nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name: DeviceEventManagerName,
		Factory: func(host nativemodule.Host) nativemodule.NativeModule {
			return &deviceEventManager{host: host, backHandler: backHandler}
		},
	}
}

func (m *deviceEventManager) Name() string { return DeviceEventManagerName }

func (m *deviceEventManager) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		// The runtime calls this when no listener consumed the back press.
		{Name: "invokeDefaultBackPressHandler", Handler: func(*nativemodule.Call) (any, error) {
			m.invokeDefault()
			return nil, nil
		}},
	}
}

func (m *deviceEventManager) invokeDefault() {
	if m.backHandler == nil {
		return
	}
	h := m.backHandler()
	if h == nil {
		return
	}
	m.host.Queues().UI.Run(h)
}

// EmitHardwareBackPress forwards a back press into the runtime.
func EmitHardwareBackPress(host nativemodule.Host) error {
	return Emit(host, HardwareBackPress, nil)
}
