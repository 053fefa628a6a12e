package cache

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// FS is the filesystem the cache and compilers work through.
type FS interface {
	CurrentDirectory() string
	FileExists(path string) bool
	DirectoryExists(path string) bool
	CreateDirectory(path string) error
	WriteAllBytes(path string, data []byte) error
	ReadAllBytes(path string) ([]byte, error)
}

// AferoFS adapts an afero.Fs to FS. Cwd is what CurrentDirectory reports.
type AferoFS struct {
	Fs  afero.Fs
	Cwd string
}

func NewFS(fs afero.Fs, cwd string) *AferoFS {
	return &AferoFS{Fs: fs, Cwd: cwd}
}

// NewOSFS returns an FS over the real filesystem rooted at the process
// working directory.
func NewOSFS() (*AferoFS, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	return NewFS(afero.NewOsFs(), cwd), nil
}

func (f *AferoFS) CurrentDirectory() string {
	return f.Cwd
}

func (f *AferoFS) FileExists(path string) bool {
	info, err := f.Fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (f *AferoFS) DirectoryExists(path string) bool {
	ok, err := afero.DirExists(f.Fs, path)
	return err == nil && ok
}

func (f *AferoFS) CreateDirectory(path string) error {
	return f.Fs.MkdirAll(path, 0o755)
}

func (f *AferoFS) WriteAllBytes(path string, data []byte) error {
	return afero.WriteFile(f.Fs, path, data, 0o644)
}

func (f *AferoFS) ReadAllBytes(path string) ([]byte, error) {
	return afero.ReadFile(f.Fs, path)
}

// Afero exposes the underlying afero.Fs for operations FS does not cover.
func (f *AferoFS) Afero() afero.Fs {
	return f.Fs
}
