package tle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoSnapshot is returned when the snapshot directory holds no usable file.
var ErrNoSnapshot = errors.New("no TLE snapshot on disk")

// Cache keeps timestamped TLE catalogue snapshots on disk so the service can
// start from the last good catalogue when the source is unreachable.
type Cache struct {
	dir      string
	maxFiles int
}

// Snapshot is one catalogue file read back from disk.
type Snapshot struct {
	Data      []byte
	FetchedAt time.Time
	Path      string
}

// NewCache creates a Cache that stores files in dir and keeps at most maxFiles.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Cache{
		dir:      dir,
		maxFiles: maxFiles,
	}
}

// Write saves data to a timestamped file and prunes old files beyond maxFiles.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	path := filepath.Join(c.dir, snapshotName(ts))
	// Write-then-rename keeps a crash from leaving a truncated snapshot behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return c.prune()
}

// LoadLatest reads the newest snapshot by the timestamp in its filename.
func (c *Cache) LoadLatest() (Snapshot, error) {
	files, err := c.listFiles()
	if err != nil {
		return Snapshot{}, err
	}
	if len(files) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}

	latest := files[len(files)-1]
	path := filepath.Join(c.dir, latest.name)
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading cache file: %w", err)
	}
	return Snapshot{Data: data, FetchedAt: latest.ts, Path: path}, nil
}

// LoadDataset parses the newest snapshot into a dataset tagged with source.
func (c *Cache) LoadDataset(source string, logger *slog.Logger) (*TLEDataset, error) {
	snap, err := c.LoadLatest()
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(snap.Data), logger)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", snap.Path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("parsing %s: %w", snap.Path, ErrNoSnapshot)
	}
	return NewDataset(source, snap.FetchedAt, entries), nil
}

func snapshotName(ts time.Time) string {
	return fmt.Sprintf("tle_%d.txt", ts.Unix())
}

type cacheFile struct {
	name string
	ts   time.Time
}

func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		tsStr, ok := strings.CutPrefix(name, "tle_")
		if !ok {
			continue
		}
		tsStr, ok = strings.CutSuffix(tsStr, ".txt")
		if !ok {
			continue
		}
		unix, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0).UTC()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ts.Before(files[j].ts)
	})

	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= c.maxFiles {
		return nil
	}

	for _, f := range files[:len(files)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
