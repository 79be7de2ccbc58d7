package dataset

import "errors"

// ErrorKind classifies a per-reference failure for retry purposes.
type ErrorKind int

const (
	// KindTransient marks failures worth retrying with a different
	// credential: timeouts, rate limits, flaky network.
	KindTransient ErrorKind = iota
	// KindPermanent marks failures terminal for the reference: removed
	// or private sources, malformed URLs, unsupported formats.
	KindPermanent
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// ClassifiedError is implemented by errors that know their retry class.
type ClassifiedError interface {
	error
	Kind() ErrorKind
}

// Classify returns the error's kind. Errors that carry no
// classification are treated as permanent.
func Classify(err error) ErrorKind {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	return KindPermanent
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}
