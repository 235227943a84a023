package errors

import stderrors "errors"

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error wrapping the given errors, discarding nils.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// Plain returns an unstructured error with the given text.
func Plain(text string) error {
	return stderrors.New(text)
}
