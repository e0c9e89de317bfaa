package txn

import (
	"fmt"

	"github.com/google/btree"
	"github.com/redocdc/redocdc/internal/builder"
	"github.com/redocdc/redocdc/internal/catalog"
	"github.com/redocdc/redocdc/internal/logger"
	"github.com/redocdc/redocdc/internal/redo"
	"github.com/redocdc/redocdc/internal/systxn"
	"github.com/sirupsen/logrus"
)

const DefaultMaxTransactions = 1048576

type Options struct {
	MaxTransactions int
	// Filter selects the user tables whose changes reach the builder. Nil
	// accepts every table. Catalog tables are always applied.
	Filter func(obj *catalog.Object, dataObj uint32) bool
}

// committed orders the commit queue by SCN and then arrival.
type committed struct {
	*Transaction
}

func (c committed) Less(than btree.Item) bool {
	o := than.(committed)
	if c.CommitSCN != o.CommitSCN {
		return c.CommitSCN < o.CommitSCN
	}
	return c.seq < o.seq
}

// Assembler groups operations by transaction and replays committed
// transactions in SCN order.
type Assembler struct {
	opts Options
	cat  *catalog.Catalog
	sys  *systxn.Handler
	out  builder.Builder
	log  *logrus.Entry

	open  map[redo.XID]*Transaction
	queue *btree.BTree
	seq   uint64
}

func NewAssembler(cat *catalog.Catalog, sys *systxn.Handler, out builder.Builder, opts Options) *Assembler {
	if opts.MaxTransactions <= 0 {
		opts.MaxTransactions = DefaultMaxTransactions
	}
	return &Assembler{
		opts:  opts,
		cat:   cat,
		sys:   sys,
		out:   out,
		log:   logger.WithComponent("txn"),
		open:  make(map[redo.XID]*Transaction),
		queue: btree.New(32),
	}
}

// Open returns the number of transactions that are neither committed nor
// rolled back.
func (a *Assembler) Open() int {
	return len(a.open)
}

// Queued returns the number of committed transactions awaiting replay.
func (a *Assembler) Queued() int {
	return a.queue.Len()
}

func (a *Assembler) Get(xid redo.XID) (*Transaction, bool) {
	t, ok := a.open[xid]
	return t, ok
}

// OldestSCN returns the lowest first SCN of any open transaction, or
// redo.ZeroSCN when none is open.
func (a *Assembler) OldestSCN() redo.SCN {
	oldest := redo.ZeroSCN
	for _, t := range a.open {
		if t.FirstSCN < oldest {
			oldest = t.FirstSCN
		}
	}
	return oldest
}

func (a *Assembler) lookup(xid redo.XID, scn redo.SCN) (*Transaction, error) {
	if t, ok := a.open[xid]; ok {
		return t, nil
	}
	if len(a.open) >= a.opts.MaxTransactions {
		return nil, NewResourceExhaustedError(a.opts.MaxTransactions)
	}
	t := &Transaction{XID: xid, FirstSCN: scn}
	a.open[xid] = t
	return t, nil
}

// Begin opens the transaction at its begin record.
func (a *Assembler) Begin(xid redo.XID, scn redo.SCN) error {
	t, err := a.lookup(xid, scn)
	if err != nil {
		return err
	}
	t.Begin = true
	a.log.WithFields(logrus.Fields{"xid": xid, "scn": scn}).Trace("begin")
	return nil
}

// Append buffers an operation. A transaction whose begin record was not
// seen is opened implicitly.
func (a *Assembler) Append(xid redo.XID, scn redo.SCN, op *Operation) error {
	t, err := a.lookup(xid, scn)
	if err != nil {
		return err
	}
	t.Ops = append(t.Ops, op)
	return nil
}

// RollbackTo undoes a partial rollback: operations at or after uba are
// dropped.
func (a *Assembler) RollbackTo(xid redo.XID, uba redo.UBA) {
	t, ok := a.open[xid]
	if !ok {
		a.log.WithField("xid", xid).Trace("rollback to savepoint of unknown transaction")
		return
	}
	n := t.rollbackTo(uba)
	a.log.WithFields(logrus.Fields{"xid": xid, "uba": uba, "removed": n}).Debug("rollback to savepoint")
}

// UndoApplied drops the single operation undone at uba.
func (a *Assembler) UndoApplied(xid redo.XID, uba redo.UBA) {
	t, ok := a.open[xid]
	if !ok {
		return
	}
	if !t.undoApplied(uba) {
		a.log.WithFields(logrus.Fields{"xid": xid, "uba": uba}).Trace("undo applied to unknown operation")
	}
}

// Commit moves the transaction into the commit queue.
func (a *Assembler) Commit(xid redo.XID, scn redo.SCN, tm redo.Time) {
	t, ok := a.open[xid]
	if !ok {
		a.log.WithField("xid", xid).Trace("commit of unknown transaction")
		return
	}
	delete(a.open, xid)

	a.seq++
	t.CommitSCN = scn
	t.CommitTime = tm
	t.seq = a.seq
	a.queue.ReplaceOrInsert(committed{t})
}

// Rollback discards the transaction.
func (a *Assembler) Rollback(xid redo.XID) {
	t, ok := a.open[xid]
	if !ok {
		a.log.WithField("xid", xid).Trace("rollback of unknown transaction")
		return
	}
	delete(a.open, xid)
	a.log.WithFields(logrus.Fields{"xid": xid, "ops": len(t.Ops)}).Debug("rollback")
}

// Flush replays queued transactions committed at or below watermark.
func (a *Assembler) Flush(watermark redo.SCN) error {
	for a.queue.Len() > 0 {
		next := a.queue.Min().(committed)
		if next.CommitSCN > watermark {
			return nil
		}
		a.queue.DeleteMin()
		if err := a.replay(next.Transaction); err != nil {
			return err
		}
	}
	return nil
}

// FlushAll replays every queued transaction.
func (a *Assembler) FlushAll() error {
	return a.Flush(redo.ZeroSCN)
}

func (a *Assembler) replay(t *Transaction) error {
	if err := a.out.ProcessBegin(t.CommitSCN, t.CommitTime, t.XID); err != nil {
		return fmt.Errorf("begin %s: %w", t.XID, err)
	}

	system := false
	for _, op := range t.Ops {
		obj, _ := a.cat.Resolve(op.Obj, op.DataObj)
		if obj != nil && obj.System != catalog.TableNone && op.Kind != OpDDL {
			system = true
			if err := a.applySystem(obj, op); err != nil {
				return fmt.Errorf("system transaction %s: %w", t.XID, err)
			}
			continue
		}
		if a.opts.Filter != nil && !a.opts.Filter(obj, op.DataObj) {
			continue
		}
		if err := a.emit(obj, t.XID, op); err != nil {
			return fmt.Errorf("transaction %s: %w", t.XID, err)
		}
	}

	if system {
		if err := a.sys.Commit(t.CommitSCN); err != nil {
			return fmt.Errorf("system transaction %s: %w", t.XID, err)
		}
	}
	if err := a.out.ProcessCommit(system); err != nil {
		return fmt.Errorf("commit %s: %w", t.XID, err)
	}
	return nil
}

func (a *Assembler) applySystem(obj *catalog.Object, op *Operation) error {
	switch op.Kind {
	case OpInsert:
		return a.sys.Insert(obj, op.RowID(), op.After)
	case OpUpdate:
		return a.sys.Update(obj, op.RowID(), op.Before, op.After)
	case OpDelete:
		return a.sys.Delete(obj, op.RowID())
	}
	return nil
}

func (a *Assembler) emit(obj *catalog.Object, xid redo.XID, op *Operation) error {
	switch op.Kind {
	case OpInsert:
		return a.out.ProcessInsert(obj, op.DataObj, op.BDBA, op.Slot, xid, op.After)
	case OpUpdate:
		return a.out.ProcessUpdate(obj, op.DataObj, op.BDBA, op.Slot, xid, op.Before, op.After)
	case OpDelete:
		return a.out.ProcessDelete(obj, op.DataObj, op.BDBA, op.Slot, xid, op.Before)
	case OpDDL:
		return a.out.ProcessDDL(obj, op.DataObj, op.DDL.Type, op.DDL.Seq, DDLOperation(op.DDL.Type), op.DDL.SQL)
	}
	return nil
}

// DDLOperation names the statement kind of a DDL record type.
func DDLOperation(t uint16) string {
	switch t {
	case 1:
		return "CREATE TABLE"
	case 2:
		return "INSERT"
	case 9:
		return "CREATE INDEX"
	case 10:
		return "DROP INDEX"
	case 11:
		return "ALTER INDEX"
	case 12:
		return "DROP TABLE"
	case 15:
		return "ALTER TABLE"
	case 85:
		return "TRUNCATE TABLE"
	case 86:
		return "TRUNCATE CLUSTER"
	case 117:
		return "PURGE TABLE"
	}
	return fmt.Sprintf("DDL %d", t)
}
