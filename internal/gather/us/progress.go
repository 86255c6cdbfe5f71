package us

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// progressTracker records which symbols have been gathered for the current
// end date so an interrupted run resumes where it stopped. State lives in two
// files under dir: .done (one symbol per line) and .last-completed (the end
// date of the last finished run).
type progressTracker struct {
	mu     sync.Mutex
	done   map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	dir    string
}

// newProgressTracker opens the tracker in dir, loading any existing .done
// entries.
func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}
	pt := &progressTracker{done: make(map[string]struct{}), dir: dir}

	data, err := os.ReadFile(pt.path(".done"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .done: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if sym := strings.TrimSpace(line); sym != "" {
			pt.done[sym] = struct{}{}
		}
	}
	if err := pt.open(); err != nil {
		return nil, err
	}
	return pt, nil
}

func (p *progressTracker) path(name string) string { return filepath.Join(p.dir, name) }

func (p *progressTracker) open() error {
	f, err := os.OpenFile(p.path(".done"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening .done: %w", err)
	}
	p.file = f
	p.writer = bufio.NewWriter(f)
	return nil
}

// IsDone reports whether symbol was already gathered.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// MarkDone records symbols as gathered and flushes to disk.
func (p *progressTracker) MarkDone(symbols ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sym := range symbols {
		if _, ok := p.done[sym]; ok {
			continue
		}
		p.done[sym] = struct{}{}
		if _, err := p.writer.WriteString(sym + "\n"); err != nil {
			return fmt.Errorf("writing to .done: %w", err)
		}
	}
	return p.writer.Flush()
}

// MarkCompleted writes date to .last-completed.
func (p *progressTracker) MarkCompleted(date string) error {
	return os.WriteFile(p.path(".last-completed"), []byte(date), 0o644)
}

// LastCompleted returns the date in .last-completed, or "".
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.path(".last-completed"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset forgets every done symbol, for a run against a new end date.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file != nil {
		p.file.Close()
	}
	p.done = make(map[string]struct{})
	if err := os.Remove(p.path(".done")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing .done: %w", err)
	}
	return p.open()
}

// Close flushes and closes the .done file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
