package coremodules

import (
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
)

const ExceptionsManagerName = "ExceptionsManager"

// StackFrame is one frame of a runtime stack trace.
type StackFrame struct {
	MethodName string
	File       string
	Line       int
	Column     int
}

type exceptionsManager struct {
	host   nativemodule.Host
	report func(error)
}

func exceptionsSpec(report func(error)) nativemodule.ModuleSpec {
	return nativemodule.ModuleSpec{
		Name:        ExceptionsManagerName,
		CanOverride: true,
		Factory: func(host nativemodule.Host) nativemodule.NativeModule {
			return &exceptionsManager{host: host, report: report}
		},
	}
}

func (m *exceptionsManager) Name() string { return ExceptionsManagerName }

func (m *exceptionsManager) Methods() []nativemodule.Method {
	return []nativemodule.Method{
		{Name: "reportFatalException", Handler: func(c *nativemodule.Call) (any, error) {
			return nil, m.handle(c, true)
		}},
		{Name: "reportSoftException", Handler: func(c *nativemodule.Call) (any, error) {
			return nil, m.handle(c, false)
		}},
		{Name: "updateExceptionMessage", Handler: func(c *nativemodule.Call) (any, error) {
			return nil, nil
		}},
	}
}

// handle turns (message, stack, id) into a RuntimeCallError.
func (m *exceptionsManager) handle(c *nativemodule.Call, fatal bool) error {
	msg, err := c.String(0)
	if err != nil {
		return err
	}
	stack, err := c.Slice(1)
	if err != nil {
		return err
	}
	id, _ := c.Int(2)

	frames := parseStack(stack)
	b := errors.New(errors.PhaseRuntime, errors.KindRuntimeCall).
		Detail("%s", msg).
		Value(frames)
	if fatal {
		b.Path("fatal", itoa(id))
	} else {
		b.Path("soft", itoa(id))
	}
	ex := b.Build()

	if m.report != nil {
		m.report(ex)
	} else {
		m.host.HandleException(ex)
	}
	return nil
}

func parseStack(stack []any) []StackFrame {
	frames := make([]StackFrame, 0, len(stack))
	for _, raw := range stack {
		f, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		frame := StackFrame{}
		frame.MethodName, _ = f["methodName"].(string)
		frame.File, _ = f["file"].(string)
		frame.Line = intField(f, "lineNumber")
		frame.Column = intField(f, "column")
		frames = append(frames, frame)
	}
	return frames
}
