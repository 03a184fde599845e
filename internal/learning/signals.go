package learning

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Jay-Tejada/malunita/internal/task"
)

// NewSignal builds a feedback Signal with a ULID id derived from the event
// time, so lexically sorted ids match creation order.
func NewSignal(userID string, typ task.SignalType, payload any, at time.Time) (task.Signal, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return task.Signal{}, fmt.Errorf("marshalling signal payload: %w", err)
		}
		raw = data
	}

	return task.Signal{
		ID:        ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		UserID:    userID,
		Type:      typ,
		Payload:   raw,
		CreatedAt: at,
	}, nil
}
