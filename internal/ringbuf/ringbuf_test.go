package ringbuf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteNext(t *testing.T) {
	b := New(64)

	require.NoError(t, b.Write([]byte("hello")))
	require.NoError(t, b.Write([]byte("")))
	require.NoError(t, b.Write([]byte("world!")))
	// 4+5 -> 12, 4+0 -> 4, 4+6 -> 12
	assert.Equal(t, 28, b.Used())

	for _, want := range []string{"hello", "", "world!"} {
		got, err := b.Next()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	assert.Equal(t, 0, b.Used())
}

func TestWrap(t *testing.T) {
	b := New(32)
	msg := func(c byte) []byte { return []byte{c, c, c, c} }

	for _, c := range []byte("abc") {
		require.NoError(t, b.Write(msg(c)))
	}
	for _, want := range []byte("ab") {
		got, err := b.Next()
		require.NoError(t, err)
		assert.Equal(t, msg(want), got)
	}

	require.NoError(t, b.Write(msg('d')))
	require.NoError(t, b.Write(msg('e')))
	assert.Equal(t, 8, b.end)
	assert.Equal(t, 32, b.wrap)

	for _, want := range []byte("cde") {
		got, err := b.Next()
		require.NoError(t, err)
		assert.Equal(t, msg(want), got)
	}
	assert.Equal(t, 0, b.wrap)
	assert.Equal(t, 0, b.Used())
}

func TestWriteBlocksUntilRead(t *testing.T) {
	b := New(16)
	require.NoError(t, b.Write([]byte("12345678")))

	written := make(chan error, 1)
	go func() {
		written <- b.Write([]byte("abcdefgh"))
	}()

	select {
	case <-written:
		t.Fatal("write should block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(got))

	select {
	case err := <-written:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write did not resume")
	}

	got, err = b.Next()
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(got))
}

func TestTooLarge(t *testing.T) {
	b := New(16)
	assert.ErrorIs(t, b.Write(make([]byte, 13)), ErrTooLarge)
	assert.NoError(t, b.Write(make([]byte, 12)))
}

func TestShutdownWakesReader(t *testing.T) {
	b := New(64)

	done := make(chan error, 1)
	go func() {
		_, err := b.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("reader not woken")
	}
	assert.ErrorIs(t, b.Write([]byte("x")), ErrShutdown)
}

func TestShutdownWakesWriter(t *testing.T) {
	b := New(8)
	require.NoError(t, b.Write([]byte("abcd")))

	done := make(chan error, 1)
	go func() {
		done <- b.Write([]byte("efgh"))
	}()

	time.Sleep(20 * time.Millisecond)
	b.Shutdown()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("writer not woken")
	}
}

func TestCloseDrains(t *testing.T) {
	b := New(64)
	require.NoError(t, b.Write([]byte("last")))
	b.Close()

	got, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, "last", string(got))

	_, err = b.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, b.Write([]byte("late")))
}

func TestWatchContext(t *testing.T) {
	b := New(64)
	ctx, cancel := context.WithCancel(context.Background())
	b.WatchContext(ctx)
	cancel()

	select {
	case <-b.done:
	case <-time.After(time.Second):
		t.Fatal("context cancel did not shut the buffer down")
	}
	_, err := b.Next()
	assert.ErrorIs(t, err, ErrShutdown)
}
