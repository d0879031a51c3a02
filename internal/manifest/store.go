package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	saveerrors "github.com/savehaven/savehaven/internal/errors"
	"github.com/savehaven/savehaven/internal/logger"
)

// Store loads and atomically persists a manifest file
type Store struct {
	fs   afero.Fs
	path string
	log  *logger.Logger
}

type StoreOption func(*Store)

func WithLogger(l *logger.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

func NewStore(fs afero.Fs, path string, opts ...StoreOption) *Store {
	s := &Store{fs: fs, path: path, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the manifest file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest. A missing file yields an empty manifest; so does a
// corrupt one, after logging the parse error.
func (s *Store) Load() *Manifest {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("failed to read manifest")
		}
		return New()
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		parseErr := saveerrors.NewManifestParseError(s.path, err)
		s.log.Warn().Err(parseErr).Str("path", s.path).Msg("starting from an empty manifest")
		return New()
	}

	if m.Games == nil {
		m.Games = make(map[string]*Row)
	}
	for name, row := range m.Games {
		if row == nil {
			m.Games[name] = &Row{}
		}
	}

	return &m
}

// Save writes the manifest to a temp file in the same directory and renames
// it over the target, so readers see either the old or the new document.
func (s *Store) Save(m *Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return saveerrors.NewManifestWriteError(s.path, m.Dump(), err)
	}

	if err := s.write(data); err != nil {
		return saveerrors.NewManifestWriteError(s.path, string(data), err)
	}
	return nil
}

func (s *Store) write(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close manifest: %w", err)
	}

	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
