package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileArchive stores the archive as markdown files under root:
//
//	root/YYYY-MM/00.md  month corpus
//	root/YYYY-MM/DD.md  day document
type FileArchive struct {
	root string
	mu   sync.Mutex
}

// NewFileArchive creates a file archive rooted at root.
func NewFileArchive(root string) *FileArchive {
	return &FileArchive{root: root}
}

func (fa *FileArchive) monthDir(t time.Time) string {
	return filepath.Join(fa.root, monthKey(t))
}

// DayPath returns the day document path for day.
func (fa *FileArchive) DayPath(day time.Time) string {
	return filepath.Join(fa.monthDir(day), day.Format("02")+".md")
}

// MonthPath returns the month corpus path for the month containing t.
func (fa *FileArchive) MonthPath(t time.Time) string {
	return filepath.Join(fa.monthDir(t), monthFile)
}

// LoadCorpus returns the entry lines of the month corpus. A missing corpus is empty.
func (fa *FileArchive) LoadCorpus(ctx context.Context, month time.Time) ([]string, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(fa.MonthPath(month))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open month corpus: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "# ") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read month corpus: %w", err)
	}
	return lines, nil
}

// AppendEntries appends entries to the day document and the month corpus.
// Both files are created with their headers when missing.
func (fa *FileArchive) AppendEntries(ctx context.Context, day time.Time, entries []string) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(fa.monthDir(day), 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	dayPath := fa.DayPath(day)
	monthPath := fa.MonthPath(day)
	if err := ensureFile(dayPath, DayHeader(day)); err != nil {
		return err
	}
	if err := ensureFile(monthPath, MonthHeader); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	block := b.String()

	if err := appendFile(monthPath, block); err != nil {
		return err
	}
	return appendFile(dayPath, block)
}

// ReadDay returns the day document for day.
func (fa *FileArchive) ReadDay(ctx context.Context, day time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(fa.DayPath(day))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("day %s: %w", dayKey(day), ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read day document: %w", err)
	}
	return string(data), nil
}

// WriteDay replaces the day document. The write goes through a temp file and
// a rename so readers never see a partial document.
func (fa *FileArchive) WriteDay(ctx context.Context, day time.Time, doc string) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	dir := fa.monthDir(day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".day-*.md")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write day document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write day document: %w", err)
	}
	if err := os.Rename(tmp.Name(), fa.DayPath(day)); err != nil {
		return fmt.Errorf("failed to replace day document: %w", err)
	}
	return nil
}

func (fa *FileArchive) Close() error { return nil }

func ensureFile(path, header string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.WriteString(header + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header to %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func appendFile(path, block string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.WriteString(block); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
