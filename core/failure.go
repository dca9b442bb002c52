package core

import "fmt"

// FailureKind classifies step-local failures. Failures are encoded into the
// step's emitted event and/or state patch so downstream steps and the
// external caller can observe and react to them; they do not unwind past the
// step that produced them unless that step is required for continuation.
type FailureKind string

const (
	// FailureMissingDependency signals a required upstream context field is
	// absent. Aborts the current pipeline branch with a single explanatory
	// event.
	FailureMissingDependency FailureKind = "MissingDependency"

	// FailureGeneration signals a generation-capability error or a
	// structured-output parse failure. Converted to a structured rejection
	// carrying the raw text.
	FailureGeneration FailureKind = "GenerationFailure"

	// FailureExternalCall signals a transfer/verify/registry/quote call that
	// errored at the transport level or returned a non-success code.
	FailureExternalCall FailureKind = "ExternalCallFailure"

	// FailureTimeout signals an external call exceeded its deadline.
	FailureTimeout FailureKind = "Timeout"

	// FailureConfiguration signals missing required startup configuration.
	// Fatal: the process exits nonzero before serving requests.
	FailureConfiguration FailureKind = "ConfigurationError"
)

// Failure is a step-local failure with taxonomy kind and human message.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %s", f.Kind, f.Message) }

// NewFailure constructs a Failure with a formatted message.
func NewFailure(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsFailure unwraps err into a *Failure if it is one.
func AsFailure(err error) (*Failure, bool) {
	f, ok := err.(*Failure)
	return f, ok
}
