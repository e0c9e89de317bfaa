package writer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redocdc/redocdc/internal/ringbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyTarget struct {
	mu       sync.Mutex
	failures int
	msgs     []string
	closed   bool
}

func (f *flakyTarget) Write(ctx context.Context, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	f.msgs = append(f.msgs, string(msg))
	return nil
}

func (f *flakyTarget) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fastOptions() Options {
	return Options{BaseBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func TestWriterDrains(t *testing.T) {
	buf := ringbuf.New(1024)
	target := &flakyTarget{}
	w := New("test", buf, target, fastOptions())

	require.NoError(t, buf.Write([]byte("one")))
	require.NoError(t, buf.Write([]byte("two")))
	buf.Close()

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"one", "two"}, target.msgs)
	assert.Equal(t, uint64(2), w.Written())
	assert.True(t, target.closed)
}

func TestWriterRetries(t *testing.T) {
	buf := ringbuf.New(1024)
	target := &flakyTarget{failures: 3}
	w := New("test", buf, target, fastOptions())

	require.NoError(t, buf.Write([]byte("msg")))
	buf.Close()

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"msg"}, target.msgs)
	assert.Equal(t, uint64(3), w.Retries())
}

func TestWriterBackoff(t *testing.T) {
	w := New("test", ringbuf.New(64), &flakyTarget{}, Options{BaseBackoff: time.Second, MaxBackoff: 30 * time.Second})

	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 4*time.Second, w.backoff(3))
	assert.Equal(t, 30*time.Second, w.backoff(10))
	assert.Equal(t, 30*time.Second, w.backoff(200))
}

func TestWriterDropsInvalid(t *testing.T) {
	buf := ringbuf.New(1024)
	w := New("pg", buf, &postgresStub{}, fastOptions())

	require.NoError(t, buf.Write([]byte("not json")))
	buf.Close()

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, uint64(0), w.Written())
}

type postgresStub struct{}

func (postgresStub) Write(ctx context.Context, msg []byte) error {
	_, _, _, err := summary(msg)
	return err
}

func (postgresStub) Close(ctx context.Context) error { return nil }

func TestWriterStop(t *testing.T) {
	buf := ringbuf.New(1024)
	target := &flakyTarget{failures: 1 << 30}
	w := New("test", buf, target, fastOptions())

	require.NoError(t, buf.Write([]byte("stuck")))
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return w.Retries() > 0 }, time.Second, time.Millisecond)
	assert.NoError(t, w.Stop())
	assert.True(t, target.closed)
	assert.NoError(t, w.Stop())
}

func TestStreamTarget(t *testing.T) {
	var out bytes.Buffer
	s := NewStreamTarget(&out, nil)

	require.NoError(t, s.Write(context.Background(), []byte(`{"scn":1}`)))
	require.NoError(t, s.Write(context.Background(), []byte(`{"scn":2}`)))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, "{\"scn\":1}\n{\"scn\":2}\n", out.String())
}

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	calls  []execCall
	err    error
	closed bool
}

func (f *fakeConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: arguments})
	return pgconn.CommandTag{}, f.err
}

func (f *fakeConn) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func TestPostgresTarget(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConn{}

	p, err := newPostgresTarget(ctx, conn, "cdc_outbox")
	require.NoError(t, err)
	require.Len(t, conn.calls, 1)
	assert.True(t, strings.HasPrefix(conn.calls[0].sql, `CREATE TABLE IF NOT EXISTS "cdc_outbox"`))

	msg := `{"scn":500,"tm":0,"xid":"0x0001.002.00000064","payload":[{"op":"c","schema":{"table":"T1"}}]}`
	require.NoError(t, p.Write(ctx, []byte(msg)))
	require.Len(t, conn.calls, 2)
	assert.Equal(t, []any{int64(500), "0x0001.002.00000064", "c", msg}, conn.calls[1].args)

	require.NoError(t, p.Write(ctx, []byte(`{"scn":7,"tm":0,"payload":[{"op":"begin"},{"op":"c"},{"op":"commit"}]}`)))
	assert.Equal(t, nil, conn.calls[2].args[1])
	assert.Equal(t, "tx", conn.calls[2].args[2])

	assert.ErrorIs(t, p.Write(ctx, []byte("{")), ErrInvalidMessage)

	conn.err = errors.New("deadlock")
	assert.ErrorContains(t, p.Write(ctx, []byte(msg)), "cdc_outbox")

	require.NoError(t, p.Close(ctx))
	assert.True(t, conn.closed)
}

func TestPostgresTargetCreateFails(t *testing.T) {
	_, err := newPostgresTarget(context.Background(), &fakeConn{err: errors.New("permission denied")}, "outbox")
	assert.ErrorContains(t, err, "outbox table")
}
