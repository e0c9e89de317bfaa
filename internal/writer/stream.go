package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// StreamTarget writes newline-delimited messages to a file or stdout.
type StreamTarget struct {
	w      *bufio.Writer
	closer io.Closer
}

// OpenStream opens path for appending; "-" means stdout.
func OpenStream(path string) (*StreamTarget, error) {
	if path == "" || path == "-" {
		return NewStreamTarget(os.Stdout, nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return NewStreamTarget(f, f), nil
}

func NewStreamTarget(w io.Writer, closer io.Closer) *StreamTarget {
	return &StreamTarget{w: bufio.NewWriter(w), closer: closer}
}

func (s *StreamTarget) Write(ctx context.Context, msg []byte) error {
	if _, err := s.w.Write(msg); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *StreamTarget) Close(ctx context.Context) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
