package nova

import (
	"errors"
	"fmt"

	"github.com/szaher/nova/internal/iteration"
)

// Engine errors.
var (
	ErrStageSequence      = errors.New("stage out of sequence")
	ErrIterationNotFound  = errors.New("iteration not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrCrossSessionAccess = errors.New("iteration belongs to a different session")
	ErrIterationBusy      = errors.New("iteration is already advancing")
)

// StageError reports a failed stage. The iteration is left at its last
// completed stage; re-advancing runs the failed stage from scratch.
type StageError struct {
	IterationID string
	Stage       iteration.Stage
	Err         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("iteration %s: stage %s: %v", e.IterationID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
