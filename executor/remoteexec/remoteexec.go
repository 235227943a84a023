// Package remoteexec proxies the runtime to a remote debugger over a
// websocket.
//
// The remote side runs the bundle itself; the host only forwards calls and
// receives flushed queues. Requests are JSON objects carrying an id and a
// method; the remote answers with the same id in replyID and either a result
// (the flushed queue, possibly JSON encoded in a string) or an error.
package remoteexec

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/errors"
)

// Name is the executor name used in configuration.
const Name = "remote"

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

type request struct {
	ID           int64          `json:"id"`
	Method       string         `json:"method"`
	URL          string         `json:"url,omitempty"`
	Inject       map[string]any `json:"inject,omitempty"`
	ModuleMethod string         `json:"moduleMethod,omitempty"`
	Arguments    []any          `json:"arguments,omitempty"`
}

type reply struct {
	ReplyID int64           `json:"replyID"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Executor is a bridge.Executor talking to a remote runtime.
type Executor struct {
	conn     *websocket.Conn
	delegate bridge.Delegate
	timeout  time.Duration

	writeMu   sync.Mutex
	nextID    atomic.Int64
	closeOnce sync.Once

	mu      sync.Mutex
	waiters map[int64]chan reply
	closed  bool
	done    chan struct{}
	readErr error
}

// Dial connects to a remote debugger proxy.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Executor, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, errors.New(errors.PhaseRuntime, errors.KindRuntimeCall).
				Value(resp.StatusCode).
				Detail("connect to %s: status %d", url, resp.StatusCode).
				Cause(err).
				Build()
		}
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "connect to "+url)
	}

	e := &Executor{
		conn:    conn,
		timeout: timeout,
		waiters: make(map[int64]chan reply),
		done:    make(chan struct{}),
	}
	go e.readLoop()
	return e, nil
}

// Factory dials a fresh connection for every context.
func Factory(url string, timeout time.Duration) bridge.ExecutorFactory {
	return bridge.NewExecutorFactory(Name, func() (bridge.Executor, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return Dial(ctx, url, timeout)
	})
}

func (e *Executor) readLoop() {
	defer close(e.done)
	for {
		var r reply
		if err := e.conn.ReadJSON(&r); err != nil {
			e.mu.Lock()
			if !e.closed {
				e.readErr = err
				Logger().Warn("remote runtime connection lost", zap.Error(err))
			}
			e.closed = true
			e.mu.Unlock()
			return
		}

		e.mu.Lock()
		ch, ok := e.waiters[r.ReplyID]
		delete(e.waiters, r.ReplyID)
		e.mu.Unlock()

		if !ok {
			Logger().Debug("reply without request", zap.Int64("reply_id", r.ReplyID))
			continue
		}
		ch <- r
	}
}

// roundTrip sends req and waits for its reply.
func (e *Executor) roundTrip(req request) (json.RawMessage, error) {
	req.ID = e.nextID.Add(1)
	ch := make(chan reply, 1)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.Closed(errors.PhaseRuntime, "remote executor")
	}
	e.waiters[req.ID] = ch
	e.mu.Unlock()

	e.writeMu.Lock()
	err := e.conn.WriteJSON(req)
	e.writeMu.Unlock()
	if err != nil {
		e.forget(req.ID)
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindRuntimeCall, err, "send "+req.Method)
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.Error != "" {
			return nil, errors.New(errors.PhaseRuntime, errors.KindRuntimeCall).
				Path(req.Method).
				Detail("%s", r.Error).
				Build()
		}
		return r.Result, nil
	case <-e.done:
		return nil, errors.Closed(errors.PhaseRuntime, "remote executor")
	case <-timer.C:
		e.forget(req.ID)
		return nil, errors.Timeout(errors.PhaseRuntime, req.Method, e.timeout)
	}
}

func (e *Executor) forget(id int64) {
	e.mu.Lock()
	delete(e.waiters, id)
	e.mu.Unlock()
}

// SetModuleSource prepares the remote runtime.
func (e *Executor) SetModuleSource(d bridge.Delegate) error {
	e.delegate = d
	_, err := e.roundTrip(request{Method: "prepareJSRuntime"})
	return err
}

func (e *Executor) moduleConfig() (map[string]any, error) {
	names := e.delegate.ModuleNames()
	modules := make([]any, 0, len(names))
	for _, name := range names {
		cfg, err := e.delegate.ModuleConfig(name)
		if err != nil {
			return nil, err
		}
		modules = append(modules, []any{cfg.Name, cfg.Constants, cfg.Methods, cfg.SyncMethods})
	}
	return map[string]any{"remoteModuleConfig": modules}, nil
}

// LoadBundle asks the remote side to fetch and run the bundle URL.
func (e *Executor) LoadBundle(_ context.Context, b bridge.Bundle) error {
	if b.URL == "" {
		return errors.Load("remote executor needs a bundle URL", nil)
	}
	cfg, err := e.moduleConfig()
	if err != nil {
		return err
	}
	inject, err := json.Marshal(cfg)
	if err != nil {
		return errors.Load("encode module config", err)
	}

	if _, err := e.roundTrip(request{
		Method: "executeApplicationScript",
		URL:    b.URL,
		Inject: map[string]any{"__fbBatchedBridgeConfig": string(inject)},
	}); err != nil {
		return err
	}
	return e.callAndFlush("flushedQueue", nil)
}

// CallFunction forwards a call to the remote runtime.
func (e *Executor) CallFunction(module, method string, args []any) error {
	return e.callAndFlush("callFunctionReturnFlushedQueue", []any{module, method, nonNil(args)})
}

// InvokeCallback forwards a callback to the remote runtime.
func (e *Executor) InvokeCallback(id int, args []any) error {
	return e.callAndFlush("invokeCallbackAndReturnFlushedQueue", []any{id, nonNil(args)})
}

func (e *Executor) callAndFlush(moduleMethod string, args []any) error {
	raw, err := e.roundTrip(request{
		Method:       "executeJSCall",
		ModuleMethod: moduleMethod,
		Arguments:    nonNil(args),
	})
	if err != nil {
		return err
	}
	queue, err := decodeResult(raw)
	if err != nil {
		return err
	}
	calls, err := bridge.ParseFlushedQueue(queue)
	if err != nil {
		return err
	}
	e.delegate.FlushQueue(calls)
	return nil
}

// decodeResult accepts a queue either inline or JSON encoded in a string.
func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
			Detail("decode remote result").
			Cause(err).
			Build()
	}
	if s, ok := v.(string); ok {
		if s == "" || s == "null" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidData).
				Detail("decode remote queue").
				Cause(err).
				Build()
		}
	}
	return v, nil
}

func nonNil(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// Close closes the connection and fails pending requests.
func (e *Executor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.writeMu.Lock()
		_ = e.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		e.writeMu.Unlock()

		err = e.conn.Close()
		<-e.done
	})
	return err
}
