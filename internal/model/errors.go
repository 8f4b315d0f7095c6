package model

import "fmt"

// CatalogError wraps an underlying error with the fatal/non-fatal
// classification from the error handling taxonomy: Fatal errors (I/O
// faults, lock corruption, programmer error) mean the catalog is unsafe
// to keep mutating and the caller should escalate to Logger.Error;
// non-fatal errors (parse/schema, semantic, lock contention) are safe to
// warn about and continue.
type CatalogError struct {
	Err   error
	Fatal bool
}

func (e *CatalogError) Error() string {
	return e.Err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Fatalf builds a fatal CatalogError.
func Fatalf(format string, args ...any) *CatalogError {
	return &CatalogError{Err: fmt.Errorf(format, args...), Fatal: true}
}

// IsFatal reports whether err (or something it wraps) is a fatal
// CatalogError.
func IsFatal(err error) bool {
	var ce *CatalogError
	for err != nil {
		if c, ok := err.(*CatalogError); ok {
			ce = c
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Fatal
}
