package ir

import "github.com/pkg/errors"

// Error kinds of the core. Callers check them with errors.Is; all errors
// produced by this package wrap exactly one of these sentinels, keeping the
// pkg/errors stack trace of the construction site.
var (
	// ErrStructural indicates a missing node/edge or a duplicate edge key.
	ErrStructural = errors.New("structural error")

	// ErrAttribute indicates a missing required attribute, a value outside its
	// declared options, or a coercion failure.
	ErrAttribute = errors.New("attribute error")

	// ErrVersion indicates that no registered schema version qualifies for a
	// requested (kind, version) pair.
	ErrVersion = errors.New("unsupported version")

	// ErrMatch indicates a malformed pattern, e.g. an edge pattern referencing
	// an undeclared symbolic node.
	ErrMatch = errors.New("match error")

	// ErrInference indicates an evaluator failure or an output-count mismatch
	// during shape inference.
	ErrInference = errors.New("inference error")
)

func structuralErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrStructural, format, args...)
}

func attributeErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrAttribute, format, args...)
}

func versionErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrVersion, format, args...)
}

func matchErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrMatch, format, args...)
}

func inferenceErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrInference, format, args...)
}
