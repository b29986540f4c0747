package steps

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

const tailLines = 200

// maxLineBytes caps an unterminated line. Output without newlines, such as
// carriage-return progress bars, is emitted in pieces of this size.
const maxLineBytes = 64 << 10

// lineWriter splits written bytes into lines, passes each to onLine and
// mirrors the raw bytes to out.
type lineWriter struct {
	mu      sync.Mutex
	out     io.Writer
	onLine  func(string)
	partial bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out != nil {
		_, _ = w.out.Write(p)
	}
	w.partial.Write(p)
	for {
		line, err := w.partial.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.partial.Reset()
			w.partial.WriteString(line)
			break
		}
		w.onLine(strings.TrimRight(line, "\r\n"))
	}
	for w.partial.Len() >= maxLineBytes {
		w.onLine(string(w.partial.Next(maxLineBytes)))
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partial.Len() > 0 {
		w.onLine(strings.TrimRight(w.partial.String(), "\r"))
		w.partial.Reset()
	}
}

// tail keeps the last n lines.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tail) snapshot() []string {
	if len(t.lines) == 0 {
		return nil
	}
	return append([]string(nil), t.lines...)
}
