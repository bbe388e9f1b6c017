// Package ragerr holds the error taxonomy shared by the retrieval and
// generation pipeline. Callers wrap these with fmt.Errorf("...: %w") and
// match with errors.Is.
package ragerr

import "errors"

var (
	// ErrNotFound marks a session, file or index that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks access to a session owned by another identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExternalService marks a failed or timed out embedding/model call.
	ErrExternalService = errors.New("external service failure")

	// ErrCorruptState marks a persisted index that is unreadable, partial,
	// or dimensionally inconsistent with fresh embeddings.
	ErrCorruptState = errors.New("corrupt persisted state")

	// ErrUnsupportedInput marks content the pipeline cannot turn into text.
	ErrUnsupportedInput = errors.New("unsupported input")
)
