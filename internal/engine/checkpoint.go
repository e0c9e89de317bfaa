package engine

import (
	"fmt"
	"time"

	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/storage"
	"github.com/sirupsen/logrus"
)

// checkpoint reports the position to the builder and persists it. The
// oldest open transaction is recorded so a restart can replay it in full.
// Persisting is best effort: a standby node that lost leadership keeps
// decoding.
func (e *Engine) checkpoint(rec *redo.Record, isRedo bool) error {
	e.sinceCkpt = 0
	if err := e.out.ProcessCheckpoint(rec.SCN, rec.Time, rec.Sequence, rec.Offset, isRedo); err != nil {
		return fmt.Errorf("checkpoint at %s: %w", rec.SCN, err)
	}
	e.checkpoints.Add(1)

	cp := &storage.Checkpoint{
		SCN:       rec.SCN,
		Time:      rec.Time,
		Sequence:  rec.Sequence,
		Offset:    rec.Offset,
		OldestSCN: e.asm.OldestSCN(),
		SchemaSCN: e.cat.SCN,
		CreatedAt: time.Now(),
	}
	log := e.log.WithFields(logrus.Fields{"component": "checkpoint", "scn": cp.SCN, "sequence": cp.Sequence, "offset": cp.Offset})
	if e.opts.Checkpoints == nil {
		log.Debug("checkpoint")
		return nil
	}
	if err := e.opts.Checkpoints.SaveCheckpoint(cp); err != nil {
		log.WithError(err).Warn("Failed to persist checkpoint")
		return nil
	}
	log.Debug("checkpoint saved")
	return nil
}
