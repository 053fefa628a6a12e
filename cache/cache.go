// Package cache stores compiled artifacts on disk, keyed by script identity.
//
// A script's identity is its file base name plus the artifact suffix of its
// language. The artifact lives at <cwd>/code/<identity>. Existence of that
// path is the only reuse signal: artifacts are never invalidated when the
// source changes and are never deleted by the cache.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const DefaultDir = "code"

type Option func(*Store)

func WithDir(name string) Option {
	return func(s *Store) {
		s.dirName = name
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

type Store struct {
	fs      FS
	dirName string
	logger  zerolog.Logger
}

// Entry is one stored artifact.
type Entry struct {
	Name    string    `json:"name" yaml:"name"`
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

func New(fsys FS, opts ...Option) *Store {
	s := &Store{
		fs:      fsys,
		dirName: DefaultDir,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) FS() FS {
	return s.fs
}

// Dir is the artifact directory under the current directory. An empty
// directory name means DefaultDir.
func (s *Store) Dir() string {
	name := strings.TrimSpace(s.dirName)
	if name == "" {
		name = DefaultDir
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.fs.CurrentDirectory(), name)
}

// Path derives the artifact path for a script file name. Only the base name
// is used, so scripts in different directories with the same name share an
// artifact.
func (s *Store) Path(fileName, suffix string) string {
	return filepath.Join(s.Dir(), baseName(fileName)+suffix)
}

func baseName(fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Ensure creates the artifact directory. A directory created concurrently by
// another caller is not an error.
func (s *Store) Ensure() error {
	dir := s.Dir()
	if s.fs.DirectoryExists(dir) {
		return nil
	}
	if err := s.fs.CreateDirectory(dir); err != nil {
		if errors.Is(err, fs.ErrExist) || s.fs.DirectoryExists(dir) {
			return nil
		}
		return fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	s.logger.Debug().Str("dir", dir).Msg("created cache directory")
	return nil
}

func (s *Store) Exists(path string) bool {
	return s.fs.FileExists(path)
}

// Put stores data at path. When the FS is afero backed the bytes go to a
// temporary sibling first and are renamed into place, so readers never see
// a partial artifact.
func (s *Store) Put(path string, data []byte) error {
	if err := s.Ensure(); err != nil {
		return err
	}

	af, ok := s.fs.(interface{ Afero() afero.Fs })
	if !ok {
		if err := s.fs.WriteAllBytes(path, data); err != nil {
			return fmt.Errorf("write artifact %s: %w", path, err)
		}
		return nil
	}

	tmp := path + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(af.Afero(), tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := af.Afero().Rename(tmp, path); err != nil {
		_ = af.Afero().Remove(tmp)
		return fmt.Errorf("rename artifact %s: %w", path, err)
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("stored artifact")
	return nil
}

func (s *Store) Get(path string) ([]byte, error) {
	data, err := s.fs.ReadAllBytes(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}

// List returns the stored artifacts with the given suffix, sorted by name.
// An empty suffix lists everything. A missing directory lists nothing.
func (s *Store) List(suffix string) ([]Entry, error) {
	af, ok := s.fs.(interface{ Afero() afero.Fs })
	if !ok {
		return nil, errors.New("list not supported by filesystem")
	}

	dir := s.Dir()
	if !s.fs.DirectoryExists(dir) {
		return nil, nil
	}

	infos, err := afero.ReadDir(af.Afero(), dir)
	if err != nil {
		return nil, fmt.Errorf("list cache directory %s: %w", dir, err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() || strings.Contains(info.Name(), ".tmp-") {
			continue
		}
		if suffix != "" && !strings.HasSuffix(info.Name(), suffix) {
			continue
		}
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
