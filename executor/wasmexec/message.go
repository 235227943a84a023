package wasmexec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/nativemodule"
	"github.com/wippyai/hostbridge/value"
)

// Message kinds. The host sends call, callback and init; the guest sends
// native and error.
const (
	kindCall     = "call"
	kindCallback = "callback"
	kindInit     = "init"
	kindNative   = "native"
	kindError    = "error"
)

// message is the msgpack frame exchanged with the guest. Frames always
// travel as arrays. A native message without a callback_id, or with a
// negative one, has no callback.
type message struct {
	Kind       string          `msgpack:"kind"`
	Module     string          `msgpack:"module,omitempty"`
	Method     string          `msgpack:"method,omitempty"`
	ModuleID   int             `msgpack:"module_id"`
	MethodID   int             `msgpack:"method_id"`
	Args       []any           `msgpack:"args,omitempty"`
	CallbackID *int            `msgpack:"callback_id,omitempty"`
	Modules    []moduleSummary `msgpack:"modules,omitempty"`
	Error      string          `msgpack:"error,omitempty"`
}

// moduleSummary tells the guest how to address a native module.
type moduleSummary struct {
	ID        int            `msgpack:"id"`
	Name      string         `msgpack:"name"`
	Methods   []string       `msgpack:"methods"`
	Constants map[string]any `msgpack:"constants,omitempty"`
}

func encodeFrame(msgs []message) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(msgs); err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
			Detail("encode guest frame").
			Cause(err).
			Build()
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) ([]message, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var msgs []message
	if err := dec.Decode(&msgs); err != nil {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			Detail("decode guest frame").
			Cause(err).
			Build()
	}
	for i := range msgs {
		for j, a := range msgs[i].Args {
			// Loose decoding leaves unsigned codes as uint64.
			if n, ok := a.(uint64); ok {
				msgs[i].Args[j] = int64(n)
			}
		}
	}
	return msgs, nil
}

// nativeCalls converts guest frames into bridge calls. Error frames and
// unexpected kinds are reported through report.
func nativeCalls(msgs []message, report func(error)) []bridge.NativeCall {
	calls := make([]bridge.NativeCall, 0, len(msgs))
	for _, m := range msgs {
		switch m.Kind {
		case kindNative:
			cb := nativemodule.NoCallback
			if m.CallbackID != nil && *m.CallbackID >= 0 {
				cb = *m.CallbackID
			}
			calls = append(calls, bridge.NativeCall{
				ModuleID:   m.ModuleID,
				MethodID:   m.MethodID,
				Args:       m.Args,
				CallbackID: cb,
			})
		case kindError:
			report(errors.New(errors.PhaseRuntime, errors.KindRuntimeCall).
				Path(m.Module, m.Method).
				Detail("%s", m.Error).
				Build())
		default:
			report(errors.New(errors.PhaseDispatch, errors.KindInvalidData).
				Value(m.Kind).
				Detail("unexpected guest message kind %q", m.Kind).
				Build())
		}
	}
	return calls
}

// normalizeArgs makes host arguments msgpack friendly.
func normalizeArgs(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return value.NormalizeArgs(args)
}
