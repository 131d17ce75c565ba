package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore persists the index as plain text: a version-stamped comment
// header, then one identifier per line, sorted.
type FileStore struct {
	path   string
	source string
	res    int
}

func NewFileStore(dir, source string, resolution int) *FileStore {
	name := fmt.Sprintf("hgtIndex_%s%d_v%d.txt", strings.ToUpper(source), resolution, Version)
	return &FileStore{
		path:   filepath.Join(dir, name),
		source: strings.ToUpper(source),
		res:    resolution,
	}
}

// Path returns the index file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) header() string {
	return fmt.Sprintf("# %s%d index file, VERSION=%d", s.source, s.res, Version)
}

func (s *FileStore) Load(_ context.Context) ([]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoIndex
		}
		return nil, fmt.Errorf("read index %s: %w", s.path, err)
	}
	var (
		names      []string
		sawVersion bool
	)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.Contains(line, fmt.Sprintf("VERSION=%d", Version)) {
				sawVersion = true
			}
			continue
		}
		names = append(names, line)
	}
	if !sawVersion {
		// stale or foreign format, rebuild
		return nil, ErrNoIndex
	}
	return names, nil
}

func (s *FileStore) Save(_ context.Context, names []string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(s.header())
	b.WriteByte('\n')
	for _, n := range sorted {
		b.WriteString(n)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".index-*")
	if err != nil {
		return fmt.Errorf("create index temp file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write index %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close index temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace index %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Drop(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove index %s: %w", s.path, err)
	}
	return nil
}
