package errors

import (
	"fmt"
	"strings"
	"time"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseRegistry  Phase = "registry"  // module/method table construction
	PhaseDispatch  Phase = "dispatch"  // runtime -> native method invocation
	PhaseRuntime   Phase = "runtime"   // executor / script runtime operations
	PhaseLoad      Phase = "load"      // bundle loading
	PhaseLifecycle Phase = "lifecycle" // context creation, teardown, host hooks
	PhaseQueue     Phase = "queue"     // message queue operations
	PhaseUI        Phase = "ui"        // view operations and batch application
	PhaseIdle      Phase = "idle"      // idle detection
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindRuntimeCall     Kind = "runtime_call"
	KindTimeout         Kind = "timeout"
	KindLifecycleMisuse Kind = "lifecycle_misuse"
	KindNotFound        Kind = "not_found"
	KindInvalidInput    Kind = "invalid_input"
	KindTypeMismatch    Kind = "type_mismatch"
	KindDestroyed       Kind = "destroyed"
	KindClosed          Kind = "closed"
	KindUnsupported     Kind = "unsupported"
	KindInvalidData     Kind = "invalid_data"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrRuntimeCall     = &Error{Kind: KindRuntimeCall}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrLifecycleMisuse = &Error{Kind: KindLifecycleMisuse}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrDestroyed       = &Error{Kind: KindDestroyed}
	ErrClosed          = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WantType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.WantType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.WantType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", want ")
			b.WriteString(e.WantType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("want ")
			b.WriteString(e.WantType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WantType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the path (module, method, argument)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WantType sets the expected type name
func (b *Builder) WantType(t string) *Builder {
	b.err.WantType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// DuplicateModule reports two modules registered under one name
func DuplicateModule(name string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindConfiguration,
		Path:   []string{name},
		Detail: fmt.Sprintf("native module %q registered twice without override", name),
	}
}

// DuplicateMethod reports two methods sharing a name on one module
func DuplicateMethod(module, method string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindConfiguration,
		Path:   []string{module, method},
		Detail: fmt.Sprintf("method %q declared more than once", method),
	}
}

// MissingFactory reports a module descriptor without a factory
func MissingFactory(name string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindConfiguration,
		Path:   []string{name},
		Detail: "module has no factory",
	}
}

// Configuration creates a generic configuration error
func Configuration(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConfiguration,
		Detail: detail,
	}
}

// TypeMismatch creates an argument type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wantType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WantType: wantType,
	}
}

// ArityMismatch reports a call with the wrong number of arguments
func ArityMismatch(path []string, want, got int) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindInvalidInput,
		Path:   path,
		Detail: fmt.Sprintf("expected %d arguments, got %d", want, got),
		Value:  got,
	}
}

// RuntimeCall wraps a failure raised while invoking across the boundary
func RuntimeCall(module, method string, cause error) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindRuntimeCall,
		Path:   []string{module, method},
		Detail: "call failed",
		Cause:  cause,
	}
}

// Panic converts a recovered panic into a runtime call error
func Panic(phase Phase, what string, r any) *Error {
	if err, ok := r.(error); ok {
		return &Error{
			Phase:  phase,
			Kind:   KindRuntimeCall,
			Detail: fmt.Sprintf("panic in %s", what),
			Cause:  err,
			Value:  r,
		}
	}
	return &Error{
		Phase:  phase,
		Kind:   KindRuntimeCall,
		Detail: fmt.Sprintf("panic in %s: %v", what, r),
		Value:  r,
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, what string, after time.Duration) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("%s did not complete within %s", what, after),
		Value:  after,
	}
}

// LifecycleMisuse creates a programming-contract violation error
func LifecycleMisuse(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindLifecycleMisuse,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Destroyed reports use of a torn-down component
func Destroyed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDestroyed,
		Detail: fmt.Sprintf("%s already destroyed", what),
	}
}

// Closed reports use of a stopped queue or transport
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a bundle loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
