package internal

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type FileState int

const (
	Processed FileState = iota
	Bad
)

type WatcherConfig struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	// Interval is how often the source folder is scanned.
	Interval time.Duration
	// SettleTime is how long a file must sit unchanged before it is handed
	// over, so half-copied files are not picked up.
	SettleTime time.Duration
	// Extensions limits which files are picked up. Empty means all.
	Extensions []string
}

// Watcher polls a folder and hands over files once they have settled.
type Watcher struct {
	cfg    WatcherConfig
	logger *slog.Logger

	mu         sync.Mutex
	firstSeen  map[string]time.Time
	size       map[string]int64
	processing map[string]bool
}

func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.SourceDir == "" {
		return nil, fmt.Errorf("source dir is required")
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.SourceDir, "archive")
	}
	if cfg.BadDir == "" {
		cfg.BadDir = filepath.Join(cfg.SourceDir, "bad")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:        cfg,
		logger:     slog.Default(),
		firstSeen:  make(map[string]time.Time),
		size:       make(map[string]int64),
		processing: make(map[string]bool),
	}, nil
}

// Watch scans the source folder until ctx is done and sends settled files
// to fileChan. It closes fileChan on return.
func (w *Watcher) Watch(ctx context.Context, fileChan chan<- string) {
	defer close(fileChan)
	w.logger.Info("[WATCH] start monitoring folder", "dir", w.cfg.SourceDir)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("[WATCH] file watcher stopped")
			return
		case <-ticker.C:
			for _, path := range w.Scan() {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Scan does one pass over the source folder and returns the files that are
// ready, marking them as in progress.
func (w *Watcher) Scan() []string {
	entries, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("[WATCH] error reading source directory", "error", err)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	current := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !w.wanted(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.cfg.SourceDir, e.Name())
		current[path] = true
		if w.processing[path] {
			continue
		}

		first, seen := w.firstSeen[path]
		if !seen || w.size[path] != info.Size() {
			w.firstSeen[path] = time.Now()
			w.size[path] = info.Size()
			if !seen {
				w.logger.Info("[WATCH] new file detected", "file", path)
			}
			continue
		}
		if time.Since(first) < w.cfg.SettleTime {
			continue
		}
		w.processing[path] = true
		ready = append(ready, path)
	}

	for path := range w.firstSeen {
		if !current[path] {
			delete(w.firstSeen, path)
			delete(w.size, path)
			delete(w.processing, path)
		}
	}
	return ready
}

func (w *Watcher) wanted(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.cfg.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Done moves a handled file out of the source folder and stops tracking it.
func (w *Watcher) Done(path string, state FileState) (string, error) {
	dest, err := w.MoveToArchive(path, state)
	w.mu.Lock()
	delete(w.processing, path)
	delete(w.firstSeen, path)
	delete(w.size, path)
	w.mu.Unlock()
	return dest, err
}

// MoveToArchive moves the file into a dated folder under the archive or bad
// directory, adding a counter when the name is taken.
func (w *Watcher) MoveToArchive(filePath string, state FileState) (string, error) {
	base := w.cfg.ArchiveDir
	if state == Bad {
		base = w.cfg.BadDir
	}
	destDir := filepath.Join(base, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	stem := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err != nil {
		// Rename fails across devices.
		if err := copyFile(filePath, destPath); err != nil {
			return "", err
		}
		if err := os.Remove(filePath); err != nil {
			return "", err
		}
	}
	w.logger.Info("[WATCH] file moved", "from", filePath, "to", destPath)
	return destPath, nil
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// GenerateTitle turns a file name like "is_456-2000.pdf" into "is 456 2000".
func GenerateTitle(filePath string) string {
	name := filepath.Base(filePath)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// DocumentID derives a stable ID from the file path.
func DocumentID(filePath string) uuid.UUID {
	sum := md5.Sum([]byte(filePath))
	id, _ := uuid.FromBytes(sum[:])
	return id
}
