package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingWriter writes to files that rotate daily (UTC) and when a write
// would exceed MaxBytes.
//
// logs/socialcredit.log produces logs/socialcredit-2025-10-26.log, then
// logs/socialcredit-2025-10-26-2.log after a size rollover. BasePath itself is
// kept as a symlink to the active file.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64

	mu       sync.Mutex
	now      func() time.Time
	curDate  string
	curIndex int
	file     *os.File
	size     int64
}

// NewRotatingWriter opens the current log file for basePath. A basePath of
// "-" discards output.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	rw := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, now: time.Now}
	if err := rw.rotateIfNeeded(0); err != nil {
		return nil, err
	}
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) rotateIfNeeded(incoming int64) error {
	today := w.now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.curDate != today:
		w.curDate = today
		w.curIndex = 1
	case w.MaxBytes > 0 && w.size > 0 && w.size+incoming > w.MaxBytes:
		w.curIndex++
	default:
		return nil
	}
	return w.openCurrent()
}

func (w *RotatingWriter) currentPath() string {
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	if w.curIndex > 1 {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", base, w.curDate, w.curIndex, ext))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", base, w.curDate, ext))
}

func (w *RotatingWriter) openCurrent() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	path := w.currentPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file = f
	w.size = size
	w.linkBase(path)
	return nil
}

// linkBase points BasePath at the active file; failures are ignored.
func (w *RotatingWriter) linkBase(target string) {
	base := strings.TrimSpace(w.BasePath)
	if base == "" {
		return
	}
	if info, err := os.Lstat(base); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return
		}
		if dest, err := os.Readlink(base); err == nil && dest == filepath.Base(target) {
			return
		}
		_ = os.Remove(base)
	}
	_ = os.Symlink(filepath.Base(target), base)
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
