// Package engine drives decoding: it reads framed redo records, turns
// their change vectors into logical operations and feeds the transaction
// assembler.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set"
	"github.com/redocdc/redocdc/internal/alert"
	"github.com/redocdc/redocdc/internal/builder"
	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/opcode"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/storage"
	"github.com/redocdc/redocdc/internal/systxn"
	"github.com/redocdc/redocdc/internal/txn"
	"github.com/sirupsen/logrus"
)

// Checkpointer persists resume positions. *storage.Storage writes them
// locally; *consensus.Node replicates them.
type Checkpointer interface {
	SaveCheckpoint(cp *storage.Checkpoint) error
}

type Options struct {
	Fields          redo.Reader
	MaxTransactions int
	// Owners limits emitted changes to tables of these schemas. Empty
	// emits every table.
	Owners []string
	// ContinueOnError skips records that fail to decode instead of
	// stopping.
	ContinueOnError bool
	// CheckpointInterval is the number of records between checkpoints.
	// Zero checkpoints only at end of stream.
	CheckpointInterval int
	// Resume skips work already covered by an earlier run.
	Resume      *storage.Checkpoint
	Checkpoints Checkpointer
	Alerts      *alert.Manager
}

type Stats struct {
	Records      uint64
	Skipped      uint64
	Vectors      uint64
	Unknown      uint64
	Operations   uint64
	Checkpoints  uint64
	Open         int
	Queued       int
	LastSCN      redo.SCN
	LastSequence uint32
	LastOffset   uint64
}

type Engine struct {
	opts   Options
	cat    *catalog.Catalog
	asm    *txn.Assembler
	out    builder.Builder
	owners mapset.Set
	log    *logrus.Entry
	dml    *logrus.Entry

	records     atomic.Uint64
	skipped     atomic.Uint64
	vectors     atomic.Uint64
	unknown     atomic.Uint64
	operations  atomic.Uint64
	checkpoints atomic.Uint64
	sinceCkpt   int
	last        *redo.Record

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	err     error
}

func New(cat *catalog.Catalog, schema systxn.SchemaWriter, out builder.Builder, opts Options) *Engine {
	if opts.Fields.Order == nil {
		opts.Fields = redo.LittleEndian
	}

	e := &Engine{
		opts:   opts,
		cat:    cat,
		out:    out,
		owners: mapset.NewSet(),
		log:    logger.WithComponent("engine"),
		dml:    logger.WithComponent("dml"),
		stopCh: make(chan struct{}),
	}
	for _, owner := range opts.Owners {
		e.owners.Add(owner)
	}

	e.asm = txn.NewAssembler(cat, systxn.NewHandler(cat, schema), out, txn.Options{
		MaxTransactions: opts.MaxTransactions,
		Filter:          e.accept,
	})
	return e
}

// accept reports whether changes to the table reach the builder.
func (e *Engine) accept(obj *catalog.Object, dataObj uint32) bool {
	if e.owners.Cardinality() == 0 {
		return true
	}
	return obj != nil && e.owners.Contains(obj.Owner)
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

func (e *Engine) Stats() Stats {
	s := Stats{
		Records:     e.records.Load(),
		Skipped:     e.skipped.Load(),
		Vectors:     e.vectors.Load(),
		Unknown:     e.unknown.Load(),
		Operations:  e.operations.Load(),
		Checkpoints: e.checkpoints.Load(),
		Open:        e.asm.Open(),
		Queued:      e.asm.Queued(),
	}
	if e.last != nil {
		s.LastSCN = e.last.SCN
		s.LastSequence = e.last.Sequence
		s.LastOffset = e.last.Offset
	}
	return s
}

// Run processes records from src until end of stream, a fatal error, Stop
// or ctx cancellation. At end of stream every committed transaction is
// flushed and a final checkpoint is written.
func (e *Engine) Run(ctx context.Context, src io.Reader) error {
	rr := redo.NewRecordReader(src, e.opts.Fields)

	for {
		select {
		case <-e.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return e.finish()
		}
		if err == nil {
			err = e.ProcessRecord(rec)
		}
		if err == nil {
			continue
		}

		if e.opts.ContinueOnError && skippable(err) {
			e.skip(rec, err)
			continue
		}
		e.fail(err)
		return err
	}
}

func (e *Engine) skip(rec *redo.Record, err error) {
	e.skipped.Add(1)
	var seq uint32
	var offset uint64
	if rec != nil {
		seq, offset = rec.Sequence, rec.Offset
	}
	e.log.WithError(err).WithFields(logrus.Fields{"sequence": seq, "offset": offset}).Warn("Skipping record")
	_ = e.opts.Alerts.SendDecodeAlert(seq, offset, err)
}

func (e *Engine) fail(err error) {
	e.log.WithError(err).Error("Engine stopped")
	if de := systxn.AsDDLInconsistencyError(err); de != nil {
		_ = e.opts.Alerts.SendCatalogAlert(de.Table, "", de.Error())
		return
	}
	_ = e.opts.Alerts.SendSystemAlert("Engine Stopped", err.Error(), "critical")
}

// resumed reports whether the record lies entirely before the resume
// point. Records from the oldest open transaction onwards are replayed so
// that transactions spanning the checkpoint are complete.
func (e *Engine) resumed(rec *redo.Record) bool {
	cp := e.opts.Resume
	if cp == nil {
		return false
	}
	if cp.OldestSCN != redo.ZeroSCN && cp.OldestSCN != 0 {
		return rec.SCN < cp.OldestSCN
	}
	return rec.SCN <= cp.SCN
}

// ProcessRecord decodes every vector of rec before applying any of them,
// so a record that fails to decode leaves no partial state behind.
func (e *Engine) ProcessRecord(rec *redo.Record) error {
	if e.resumed(rec) {
		return nil
	}

	ops := make([]opcode.Op, 0, len(rec.Vectors))
	for i, v := range rec.Vectors {
		op, err := opcode.Decode(e.opts.Fields, v)
		if err != nil {
			return NewDecodeError(rec.SCN, i, err)
		}
		ops = append(ops, op)
	}

	e.records.Add(1)
	e.vectors.Add(uint64(len(ops)))
	e.last = rec

	var p pairer
	for _, op := range ops {
		if err := e.apply(rec, &p, op); err != nil {
			return fmt.Errorf("scn %s: %w", rec.SCN, err)
		}
	}
	for _, op := range p.leftover() {
		e.dml.WithFields(logrus.Fields{"scn": rec.SCN, "op": op.Name()}).Trace("unpaired row vector")
	}

	if err := e.asm.Flush(rec.SCN); err != nil {
		return err
	}

	e.sinceCkpt++
	if e.opts.CheckpointInterval > 0 && e.sinceCkpt >= e.opts.CheckpointInterval {
		return e.checkpoint(rec, false)
	}
	return nil
}

func (e *Engine) apply(rec *redo.Record, p *pairer, op opcode.Op) error {
	switch o := op.(type) {
	case *opcode.Begin:
		return e.asm.Begin(o.XID, rec.SCN)

	case *opcode.Commit:
		if o.Rollback() || e.alreadyEmitted(rec) {
			e.asm.Rollback(o.XID)
			return nil
		}
		e.asm.Commit(o.XID, rec.SCN, rec.Time)
		return nil

	case *opcode.RollbackTo:
		e.asm.RollbackTo(o.XID, o.UBA)
		return nil

	case *opcode.UndoApplied:
		e.asm.UndoApplied(o.XID, o.UBA)
		return nil

	case *opcode.DDL:
		return e.append(rec, o.XID, &txn.Operation{
			Kind:    txn.OpDDL,
			Obj:     o.Obj,
			DataObj: o.Obj,
			DDL:     o,
		})

	case *opcode.Undo:
		pair, dropped := p.addUndo(o)
		e.unpaired(rec, dropped)
		return e.applyPair(rec, pair)

	case *opcode.Row:
		pair, dropped := p.addRow(o)
		e.unpaired(rec, dropped)
		return e.applyPair(rec, pair)

	case *opcode.Unknown:
		e.unknown.Add(1)
	}
	return nil
}

// alreadyEmitted reports whether a commit in rec was delivered by an
// earlier run.
func (e *Engine) alreadyEmitted(rec *redo.Record) bool {
	return e.opts.Resume != nil && rec.SCN <= e.opts.Resume.SCN
}

func (e *Engine) unpaired(rec *redo.Record, op opcode.Op) {
	if op != nil {
		e.dml.WithFields(logrus.Fields{"scn": rec.SCN, "op": op.Name()}).Trace("unpaired row vector")
	}
}

func (e *Engine) applyPair(rec *redo.Record, pair *rowPair) error {
	if pair == nil {
		return nil
	}
	op := pair.operation()
	if op == nil {
		return nil
	}
	return e.append(rec, pair.xid(), op)
}

func (e *Engine) append(rec *redo.Record, xid redo.XID, op *txn.Operation) error {
	e.operations.Add(1)
	e.dml.WithFields(logrus.Fields{
		"xid":  xid,
		"scn":  rec.SCN,
		"kind": op.Kind,
		"obj":  op.Obj,
		"rid":  op.RowID(),
	}).Debug("operation")
	return e.asm.Append(xid, rec.SCN, op)
}

func (e *Engine) finish() error {
	if err := e.asm.FlushAll(); err != nil {
		e.fail(err)
		return err
	}
	if e.last != nil {
		if err := e.checkpoint(e.last, true); err != nil {
			return err
		}
	}
	if err := e.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush builder: %w", err)
	}
	e.log.WithFields(logrus.Fields{
		"records": e.records.Load(),
		"skipped": e.skipped.Load(),
		"open":    e.asm.Open(),
	}).Info("End of redo stream")
	return nil
}

// Start runs the engine in the background. Wait returns the result.
func (e *Engine) Start(ctx context.Context, src io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running")
	}

	e.running = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.Run(ctx, src)
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
	}()
	return nil
}

func (e *Engine) Wait() error {
	e.wg.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return e.err
}

// Stop ends the loop after the record in progress.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
	e.mu.Unlock()
	return e.Wait()
}
