package nova

import "github.com/szaher/nova/internal/iteration"

// StageEventType identifies a StageEvent.
type StageEventType string

const (
	EventStageStarted   StageEventType = "stage_started"
	EventAgentDelta     StageEventType = "agent_delta"
	EventStageCompleted StageEventType = "stage_completed"
	EventStageFailed    StageEventType = "stage_failed"
)

// StageEvent reports engine progress to an observer.
type StageEvent struct {
	Type        StageEventType
	IterationID string
	Stage       iteration.Stage

	// Agent and Text are set on agent_delta events.
	Agent string
	Text  string

	// Err is set on stage_failed events.
	Err error
}

// StageObserver receives engine progress. When experts run in parallel it
// is called from several goroutines at once.
type StageObserver func(StageEvent)
