// Package graph turns raw chat text into knowledge-graph writes: it asks
// the AI client for node and edge candidates, resolves them against the
// per-user graph, and links every mention back to its chat message.
package graph

import (
	"errors"
	"fmt"
)

// Task is one unit of graph-processing work: a single persisted chat
// message whose plaintext still needs to flow into the user's graph.
// Tasks live in memory only and are lost on shutdown.
type Task struct {
	ChatID int64
	UserID int64
	Text   string
}

// ExtractionError marks a failure of the extraction step itself, as
// opposed to an extraction that legitimately found nothing. Callers use it
// to tell "the model was unreachable or spoke garbage" apart from "the text
// contains no entities".
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsExtractionError reports whether err originates in the extraction step.
func IsExtractionError(err error) bool {
	var extractionErr *ExtractionError
	return errors.As(err, &extractionErr)
}
