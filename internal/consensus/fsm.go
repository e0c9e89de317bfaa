package consensus

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/redocdc/redocdc/internal/storage"
)

// metadataKeys lists the metadata entries carried in snapshots.
var metadataKeys = []string{"source_path", "schema_scn"}

type FSM struct {
	mu      sync.RWMutex
	storage *storage.Storage
	applied uint64
}

func NewFSM(store *storage.Storage) *FSM {
	return &FSM{
		storage: store,
	}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		return fmt.Errorf("failed to unmarshal log entry: %w", err)
	}

	switch entry.Type {
	case LogEntryCheckpoint:
		if entry.Checkpoint == nil {
			return fmt.Errorf("checkpoint entry without checkpoint")
		}
		if err := f.storage.SaveCheckpoint(entry.Checkpoint); err != nil {
			return err
		}
	case LogEntryMetadata:
		if err := f.storage.SetMetadata(entry.Key, entry.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown log entry type: %s", entry.Type)
	}

	f.applied++
	return nil
}

// Applied returns the number of entries applied since the FSM was created.
func (f *FSM) Applied() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.applied
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cps, err := f.storage.Checkpoints(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	state := &fsmState{Checkpoints: cps, Metadata: make(map[string]string)}
	for _, key := range metadataKeys {
		if v, err := f.storage.GetMetadata(key); err == nil {
			state.Metadata[key] = v
		}
	}

	return &fsmSnapshot{state: state}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer rc.Close()

	var state fsmState
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	if err := f.storage.ReplaceCheckpoints(state.Checkpoints); err != nil {
		return fmt.Errorf("failed to restore checkpoints: %w", err)
	}
	for k, v := range state.Metadata {
		if err := f.storage.SetMetadata(k, v); err != nil {
			return fmt.Errorf("failed to restore metadata %s: %w", k, err)
		}
	}

	return nil
}

type fsmSnapshot struct {
	state *fsmState
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {
}
