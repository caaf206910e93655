package engine

import (
	"strings"
	"sync"
)

// LineRing keeps the most recent lines of a child's output so failures
// can carry useful error text without buffering the whole stream.
type LineRing struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 1
	}
	return &LineRing{lines: make([]string, capacity)}
}

func (r *LineRing) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the retained lines, oldest first.
func (r *LineRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// Last returns the most recent non-empty line, or "".
func (r *LineRing) Last() string {
	lines := r.Lines()
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func (r *LineRing) String() string {
	return strings.Join(r.Lines(), "\n")
}
