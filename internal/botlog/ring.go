package botlog

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// Entry is one buffered log line.
type Entry struct {
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// Ring is a fixed-size line buffer usable as an io.Writer. Each Write may
// contain several newline-terminated lines; partial trailing lines are
// buffered until the next newline.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	partial bytes.Buffer
}

// NewRing creates a ring holding at most size lines.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{entries: make([]Entry, size)}
}

func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial.Write(p)
	for {
		data := r.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(data[:idx]), "\r")
		r.partial.Next(idx + 1)
		if line != "" {
			r.push(Entry{Time: time.Now(), Line: line})
		}
	}
	return len(p), nil
}

func (r *Ring) push(e Entry) {
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the number of buffered lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Last returns up to n newest lines, oldest first. n <= 0 returns all.
func (r *Ring) Last(n int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.entries)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]Entry, n)
	start := r.next - n
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < n; i++ {
		out[i] = r.entries[(start+i)%len(r.entries)]
	}
	return out
}
