package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Table string

const (
	TableSessions     Table = "game_sessions"
	TableParticipants Table = "session_participants"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
	// ChangeResync tells observers that events may have been missed and
	// the full state should be fetched again.
	ChangeResync ChangeType = "RESYNC"
)

// Event is a row level change. Observers treat it as an invalidation
// hint and re-fetch the authoritative state.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Table      Table           `json:"table,omitempty"`
	Type       ChangeType      `json:"eventType"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	OccurredAt time.Time       `json:"commit_timestamp"`
}

func NewEvent(table Table, changeType ChangeType, newRow, oldRow any, occurredAt time.Time) (Event, error) {
	e := Event{
		ID:         uuid.New(),
		Table:      table,
		Type:       changeType,
		OccurredAt: occurredAt.UTC(),
	}

	var err error
	if newRow != nil {
		if e.New, err = json.Marshal(newRow); err != nil {
			return Event{}, fmt.Errorf("failed to marshal new row: %w", err)
		}
	}

	if oldRow != nil {
		if e.Old, err = json.Marshal(oldRow); err != nil {
			return Event{}, fmt.Errorf("failed to marshal old row: %w", err)
		}
	}

	return e, nil
}

func ResyncEvent(occurredAt time.Time) Event {
	return Event{ID: uuid.New(), Type: ChangeResync, OccurredAt: occurredAt.UTC()}
}

// Publisher hands events to the fan-out backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Dispatcher delivers events to the local subscribers.
type Dispatcher interface {
	Dispatch(event Event)
}
