package analyzer

import (
	"context"
	"io"
	"sync"

	"polybuild/internal/engine/vfs"
)

// FileStream is a readable sequence of files that stays paused until Start.
// Pushes never block: the orchestrator pushes while holding its lock, so the
// queue is unbounded and readers pull at their own pace.
type FileStream struct {
	name string

	mu      sync.Mutex
	queue   []*vfs.File
	started bool
	closed  bool
	err     error
	notify  chan struct{}
}

func newFileStream(name string) *FileStream {
	return &FileStream{name: name, notify: make(chan struct{}, 1)}
}

func (s *FileStream) Name() string {
	return s.name
}

// Start releases buffered and future files to readers.
func (s *FileStream) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.signal()
}

func (s *FileStream) push(file *vfs.File) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, file)
	s.mu.Unlock()
	s.signal()
}

// close ends the stream. A nil err ends it normally once drained; a non-nil
// err is reported to readers immediately and drops anything still queued.
func (s *FileStream) close(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	if err != nil {
		s.queue = nil
	}
	s.mu.Unlock()
	s.signal()
}

func (s *FileStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next returns the next file, io.EOF at a normal end, or the stream's error.
func (s *FileStream) Next(ctx context.Context) (*vfs.File, error) {
	for {
		s.mu.Lock()
		if s.closed && s.err != nil {
			err := s.err
			s.mu.Unlock()
			s.signal()
			return nil, err
		}
		if s.started && len(s.queue) > 0 {
			file := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			more := len(s.queue) > 0
			s.mu.Unlock()
			if more {
				s.signal()
			}
			return file, nil
		}
		if s.started && s.closed {
			s.mu.Unlock()
			s.signal()
			return nil, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pipe forwards every file to out and closes out when the stream ends. It
// returns nil at a normal end.
func (s *FileStream) Pipe(ctx context.Context, out chan<- *vfs.File) error {
	defer close(out)
	for {
		file, err := s.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case out <- file:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Collect drains the stream into a slice.
func (s *FileStream) Collect(ctx context.Context) ([]*vfs.File, error) {
	var files []*vfs.File
	for {
		file, err := s.Next(ctx)
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
}
