package coremodules

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/nativemodule"
)

const DeviceInfoName = "DeviceInfo"

var dimensionsType = &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{
	{Name: "width", Type: wit.S32{}},
	{Name: "height", Type: wit.S32{}},
	{Name: "scale", Type: wit.F64{}},
	{Name: "font-scale", Type: wit.F64{}},
}}}

type deviceInfo struct {
	display config.DisplayMetrics
}

func deviceInfoSpec(display config.DisplayMetrics) nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name:         DeviceInfoName,
		HasConstants: true,
		Factory: func(nativemodule.Host) nativemodule.NativeModule {
			return &deviceInfo{display: display}
		},
	}
}

func (m *deviceInfo) Name() string { return DeviceInfoName }

func (m *deviceInfo) Constants() map[string]any {
	return map[string]any{
		"Dimensions": map[string]any{
			"window": m.display.Map(),
			"screen": m.display.Map(),
		},
	}
}

func (m *deviceInfo) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{
			Name:      "getDimensions",
			Kind:      nativemodule.Sync,
			Signature: &nativemodule.Signature{Result: dimensionsType},
			Handler: func(*nativemodule.Call) (any, error) {
				return m.display.Map(), nil
			},
		},
	}
}
