// Package goods manages the line-per-item inventory files used by
// auto-delivery. Each file holds one deliverable item per non-empty line;
// taking items consumes lines from the top and rewrites the file.
package goods

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrOutOfStock is returned when a goods file has fewer items than requested.
var ErrOutOfStock = errors.New("not enough items in goods file")

// Store hands out items from goods files under a single directory. All file
// access is serialized; handlers call Take from their own goroutines.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu sync.Mutex
}

// NewStore creates a store over dir. The directory is created if missing.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create goods directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With().Str("component", "goods").Logger(),
	}, nil
}

func (s *Store) path(file string) string {
	return filepath.Join(s.dir, filepath.Base(file))
}

// Count returns the number of items left in the named goods file. A missing
// file counts as empty.
func (s *Store) Count(file string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(file)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return len(items), nil
}

// Take removes the first n items from the named goods file and returns them.
// The file is rewritten without the taken lines before the items are handed
// out, so a crash mid-delivery loses items rather than double-sells them.
func (s *Store) Take(file string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.read(file)
	if err != nil {
		return nil, err
	}
	if len(items) < n {
		return nil, fmt.Errorf("%w: %s has %d, need %d", ErrOutOfStock, file, len(items), n)
	}

	taken, rest := items[:n], items[n:]
	var buf strings.Builder
	for _, line := range rest {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(s.path(file), []byte(buf.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to rewrite goods file %s: %w", file, err)
	}

	s.logger.Info().Str("file", file).Int("taken", n).Int("left", len(rest)).Msg("Items taken from goods file")
	return taken, nil
}

func (s *Store) read(file string) ([]string, error) {
	data, err := os.ReadFile(s.path(file))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read goods file %s: %w", file, err)
	}

	var items []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		items = append(items, line)
	}
	return items, nil
}
