package utils

func Ptr[T any](v T) *T {
	return &v
}

// NilIfEmpty maps "" to a NULL-able nil, anything else to a pointer.
func NilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Val[T any](p *T) T {
	if p != nil {
		return *p
	}
	var zero T
	return zero
}
