package command

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// guards holds one SyncWriter per open file. Files such as os.Stderr outlive
// every caller, so entries are never removed.
var (
	guardsMu sync.Mutex
	guards   = map[*os.File]*SyncWriter{}
)

// SyncWriter serializes writes to a shared output stream.
type SyncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// Synchronized returns a SyncWriter guarding w. Every caller asking for the
// same file gets the same guard, so the logger and streamed child output
// contend on one lock per stream. Other writers get a new guard; share it by
// passing the returned SyncWriter on.
func Synchronized(w io.Writer) *SyncWriter {
	switch w := w.(type) {
	case *SyncWriter:
		return w
	case *os.File:
		guardsMu.Lock()
		defer guardsMu.Unlock()

		if sw, ok := guards[w]; ok {
			return sw
		}
		sw := &SyncWriter{w: w}
		guards[w] = sw
		return sw
	}
	return &SyncWriter{w: w}
}

// Write implements io.Writer
func (s *SyncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// lineWriter buffers partial output and forwards only complete lines, each
// in a single Write call.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
	buf bytes.Buffer
}

func newLineWriter(out io.Writer) *lineWriter {
	return &lineWriter{out: out}
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.buf.Write(p)
	for {
		i := bytes.IndexByte(lw.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := lw.buf.Next(i + 1)
		// Output errors must not fail the child; the captured copy is
		// still complete.
		_, _ = lw.out.Write(line)
	}
	return len(p), nil
}

// Flush forwards any trailing partial line with a newline appended.
func (lw *lineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.buf.Len() == 0 {
		return
	}
	line := append(lw.buf.Bytes(), '\n')
	_, _ = lw.out.Write(line)
	lw.buf.Reset()
}
