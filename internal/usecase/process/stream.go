package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"termrun/internal/domain"
)

// Stream is a lazy, pull-based sequence of decoded output chunks from one
// process. It is finite and cannot be restarted.
//
// A single producer goroutine reads the pipe and hands chunks over an
// unbuffered channel, so at most one chunk is in flight and nothing is read
// ahead of the consumer beyond what the OS pipe buffers.
type Stream struct {
	chunks   chan string
	done     chan struct{} // closed once the producer has finished, after err is set
	stop     chan struct{}
	stopOnce sync.Once
	kill     func()
	err      error // io.EOF on clean exit
	logger   *slog.Logger
}

// NewStream builds a Stream over r. wait is called once r is exhausted and
// its error becomes the stream's terminal error; kill, when non-nil, runs on
// Close. r is closed by the stream if it implements io.Closer.
func NewStream(r io.Reader, wait func() error, kill func()) *Stream {
	return newStream(r, wait, kill, DefaultReadBufferSize, nil)
}

func newStream(r io.Reader, wait func() error, kill func(), size int, logger *slog.Logger) *Stream {
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Stream{
		chunks: make(chan string),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		kill:   kill,
		logger: logger,
	}
	go s.produce(r, wait, size)
	return s
}

// Next blocks until the next chunk is available. At the end of output it
// returns io.EOF if the process exited cleanly, or the process's
// termination error otherwise. If ctx ends first, ctx.Err() is returned and
// the stream stays usable.
func (s *Stream) Next(ctx context.Context) (string, error) {
	select {
	case c := <-s.chunks:
		return c, nil
	case <-s.done:
		return "", s.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close abandons the stream. Remaining output is drained and discarded so
// the process never blocks on a full pipe; the process itself is only
// killed if the stream was built with a kill function. Idempotent.
func (s *Stream) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.kill != nil {
			s.kill()
		}
	})
}

// Wait blocks until the process has exited and its output is exhausted.
// It returns nil on a clean exit.
func (s *Stream) Wait() error {
	<-s.done
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

func (s *Stream) produce(r io.Reader, wait func() error, size int) {
	defer close(s.done)

	// Incomplete UTF-8 sequences at a read boundary are held back by the
	// decoder until the rest arrives; ill-formed bytes become U+FFFD.
	dec := transform.NewReader(r, unicode.UTF8.NewDecoder())
	readErr := s.pump(dec, size)
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}

	var waitErr error
	if wait != nil {
		waitErr = wait()
	}

	switch {
	case waitErr != nil:
		s.err = waitErr
	case readErr != nil:
		s.logger.Warn("output read failed", "error", readErr)
		s.err = domain.NewSubSystemError("process", "Stream.Next", domain.ErrStreamInterrupted, readErr.Error())
	default:
		s.err = io.EOF
	}
}

// pump forwards chunks until EOF, a read error, or Close.
func (s *Stream) pump(r io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- string(buf[:n]):
			case <-s.stop:
				_, err := io.Copy(io.Discard, r)
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
