package util

// FindFirst returns the first element of slice that satisfies predicate.
// The boolean is false, and the value is the zero value, if none does.
func FindFirst[T any](slice []T, predicate func(T) bool) (T, bool) {
	for _, v := range slice {
		if predicate(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// TrimTrailing returns slice without the trailing elements that satisfy
// predicate.
func TrimTrailing[T any](slice []T, predicate func(T) bool) []T {
	end := len(slice)
	for end > 0 && predicate(slice[end-1]) {
		end--
	}
	return slice[:end]
}
