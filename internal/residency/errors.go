package residency

// constructionError wraps a factory failure so the HTTP layer can map it
// distinctly from internal faults. No cache entry exists when it is returned.
type constructionError struct {
	key Key
	err error
}

func (e constructionError) Error() string {
	return "construct " + e.key.String() + ": " + e.err.Error()
}

func (e constructionError) Unwrap() error { return e.err }

// IsConstructionFailed reports whether err came from a model factory.
func IsConstructionFailed(err error) bool {
	_, ok := err.(constructionError)
	return ok
}

// notFoundError signals a key absent from the active cache.
type notFoundError struct{ key Key }

func (e notFoundError) Error() string { return "model not found: " + e.key.String() }

// ErrNotFound constructs a notFoundError for key.
func ErrNotFound(key Key) error { return notFoundError{key: key} }

// IsNotFound reports whether err indicates a missing cache entry.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}
