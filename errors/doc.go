// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The four kinds callers usually branch on are:
//
//	KindConfiguration    duplicate module/method names, missing factories
//	KindRuntimeCall      failures while invoking across the runtime boundary
//	KindTimeout          idle and frame-convergence waits
//	KindLifecycleMisuse  contract violations (double create, off-queue hooks)
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
//		Path("Timing", "createTimer", "arg0").
//		GoType("string").
//		WantType("f64").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.DuplicateMethod("Timing", "createTimer")
//	err := errors.Timeout(errors.PhaseIdle, "wait for idle", 5*time.Second)
//
// All errors implement the standard error interface and support errors.Is/As.
// The exported sentinels (ErrTimeout, ErrConfiguration, ...) match any phase:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
package errors
