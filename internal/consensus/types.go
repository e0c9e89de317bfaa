package consensus

import (
	"time"

	"github.com/redocdc/redocdc/internal/storage"
)

type LogEntryType string

const (
	LogEntryCheckpoint LogEntryType = "checkpoint"
	LogEntryMetadata   LogEntryType = "metadata"
)

type LogEntry struct {
	Type       LogEntryType        `json:"type"`
	Checkpoint *storage.Checkpoint `json:"checkpoint,omitempty"`
	Key        string              `json:"key,omitempty"`
	Value      string              `json:"value,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// fsmState is the snapshot payload: the full checkpoint history plus
// replicated metadata.
type fsmState struct {
	Checkpoints []storage.Checkpoint `json:"checkpoints"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}
