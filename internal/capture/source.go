package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// defaultFrameBytes is 20ms of 16 kHz mono 16-bit PCM.
const defaultFrameBytes = 640

// ReaderSource adapts an io.Reader of raw PCM into an AudioSource. If the
// reader is also an io.Closer, Stop closes it to unblock a pending read. A
// ReaderSource is good for exactly one capture.
type ReaderSource struct {
	r          io.Reader
	frameBytes int

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

var _ AudioSource = (*ReaderSource)(nil)

// NewReaderSource wraps r, chunking it into frames of frameBytes bytes
// (default 640, 20ms of 16 kHz mono audio).
func NewReaderSource(r io.Reader, frameBytes int) *ReaderSource {
	if frameBytes <= 0 {
		frameBytes = defaultFrameBytes
	}
	return &ReaderSource{r: r, frameBytes: frameBytes}
}

// Start begins reading frames. The returned channel closes when the
// reader is exhausted or the source is stopped.
func (s *ReaderSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errors.New("capture: reader source already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	frames := make(chan Frame, 8)
	go func() {
		defer close(frames)
		buf := make([]byte, s.frameBytes)
		for {
			n, err := io.ReadFull(s.r, buf)
			if n > 0 {
				frame := make(Frame, n)
				copy(frame, buf[:n])
				select {
				case frames <- frame:
				case <-runCtx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return frames, nil
}

// Stop ends the source. Safe to call after the frame channel has closed.
func (s *ReaderSource) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c, ok := s.r.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return err
		}
	}
	return nil
}

// PipeSource reads PCM from a named pipe (or regular file), opening it
// fresh for every capture so the source survives across sessions. Opening
// a fifo blocks until the writing side attaches.
type PipeSource struct {
	path       string
	frameBytes int

	mu      sync.Mutex
	current *ReaderSource
}

var _ AudioSource = (*PipeSource)(nil)

// NewPipeSource creates a source reading from path.
func NewPipeSource(path string, frameBytes int) *PipeSource {
	return &PipeSource{path: path, frameBytes: frameBytes}
}

func (p *PipeSource) Start(ctx context.Context) (<-chan Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return nil, errors.New("capture: pipe source already started")
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio pipe: %w", err)
	}

	src := NewReaderSource(f, p.frameBytes)
	frames, err := src.Start(ctx)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.current = src
	return frames, nil
}

func (p *PipeSource) Stop() error {
	p.mu.Lock()
	src := p.current
	p.current = nil
	p.mu.Unlock()

	if src == nil {
		return nil
	}
	return src.Stop()
}
