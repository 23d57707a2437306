// Package local materializes fetched tables as CSV files in a working
// directory and removes them after upload.
package local

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/tablesync/internal/core/domain"
	"github.com/custodia-labs/tablesync/internal/core/ports/driven"
	"github.com/custodia-labs/tablesync/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Store writes artifacts into a single directory.
type Store struct {
	dir string
}

// NewStore creates an artifact store rooted at dir, creating it if needed.
// An empty dir means the current working directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving work directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("creating work directory: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the artifact called name lives.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write serialises table as CSV: one header row then the data rows.
// The file appears under its final name only once fully written.
func (s *Store) Write(ctx context.Context, source, name string, table *domain.Table) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	if table == nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: no table", domain.ErrWrite, name)
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return domain.Artifact{}, fmt.Errorf("%w: invalid artifact name %q", domain.ErrWrite, name)
	}

	path := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %w", domain.ErrWrite, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := encode(tmp, table); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	if err := tmp.Sync(); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %s: %w", domain.ErrWrite, name, err)
	}
	committed = true

	logger.FromContext(ctx).Debug("artifact materialized", "artifact", name, "path", path, "bytes", info.Size())
	return domain.Artifact{
		Source: source,
		Name:   name,
		Path:   path,
		Rows:   table.NumRows(),
		Size:   info.Size(),
	}, nil
}

// Remove deletes the artifact file. A file that is already gone is a cleanup failure.
func (s *Store) Remove(ctx context.Context, artifact domain.Artifact) error {
	path := artifact.Path
	if path == "" {
		path = s.Path(artifact.Name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrCleanup, artifact.Name, err)
	}
	logger.FromContext(ctx).Debug("artifact removed", "artifact", artifact.Name, "path", path)
	return nil
}

// encode writes table as CSV. Short rows are padded to the header width.
func encode(f *os.File, table *domain.Table) error {
	buf := bufio.NewWriter(f)
	w := csv.NewWriter(buf)

	if err := w.Write(table.Columns); err != nil {
		return err
	}
	width := len(table.Columns)
	record := make([]string, width)
	for _, row := range table.Rows {
		out := row
		if len(row) < width {
			clear(record)
			copy(record, row)
			out = record
		}
		if err := w.Write(out); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return buf.Flush()
}
