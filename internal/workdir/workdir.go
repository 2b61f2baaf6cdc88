// Package workdir manages the per-request directory an engine run reads its
// inputs from and writes its reports to.
package workdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	inputDirName  = "input"
	outputDirName = "output"
	namePrefix    = "ore-work-"
)

const emptyFixings = "# Empty fixings file\n"

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

var newSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Dir is a working directory exclusively owned by one request.
type Dir struct {
	path string
}

// New creates {root}/ore-work-{label}-{8 hex}/ with input/ and output/
// subdirectories. The run directory must not exist yet.
func New(root, label string) (*Dir, error) {
	label = unsafeLabelChars.ReplaceAllString(label, "_")
	if label == "" {
		label = "run"
	}
	path := filepath.Join(root, namePrefix+label+"-"+newSuffix())

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating work root %s: %w", root, err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir %s: %w", path, err)
	}
	for _, sub := range []string{inputDirName, outputDirName} {
		if err := os.Mkdir(filepath.Join(path, sub), 0o755); err != nil {
			_ = os.RemoveAll(path)
			return nil, fmt.Errorf("creating work dir %s: %w", path, err)
		}
	}
	return &Dir{path: path}, nil
}

// Open wraps an existing working directory, e.g. one left behind for inspection.
func Open(path string) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening work dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening work dir: %s is not a directory", path)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory root, used as the engine's working directory.
func (d *Dir) Path() string { return d.path }

// InputDir returns the input subdirectory.
func (d *Dir) InputDir() string { return filepath.Join(d.path, inputDirName) }

// OutputDir returns the output subdirectory.
func (d *Dir) OutputDir() string { return filepath.Join(d.path, outputDirName) }

// InputPath joins name onto the input subdirectory.
func (d *Dir) InputPath(name string) string { return filepath.Join(d.InputDir(), name) }

// OutputPath joins name onto the output subdirectory.
func (d *Dir) OutputPath(name string) string { return filepath.Join(d.OutputDir(), name) }

// WriteInput writes an input file.
func (d *Dir) WriteInput(name, content string) error {
	return writeFile(d.InputPath(name), content)
}

// WriteRoot writes a file at the directory root, where the request document lives.
func (d *Dir) WriteRoot(name, content string) error {
	return writeFile(filepath.Join(d.path, name), content)
}

// ReadInput reads an input file.
func (d *Dir) ReadInput(name string) (string, error) {
	b, err := os.ReadFile(d.InputPath(name))
	if err != nil {
		return "", fmt.Errorf("reading input %s: %w", name, err)
	}
	return string(b), nil
}

// CopyStatic copies the named static engine configuration files from configDir
// into the input directory and writes an empty fixings file.
func (d *Dir) CopyStatic(configDir, fixingsName string, names ...string) error {
	for _, name := range names {
		if err := copyFile(filepath.Join(configDir, name), d.InputPath(name)); err != nil {
			return fmt.Errorf("copying %s: %w", name, err)
		}
	}
	return d.WriteInput(fixingsName, emptyFixings)
}

// Remove deletes the directory tree.
func (d *Dir) Remove() error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("removing work dir %s: %w", d.path, err)
	}
	return nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	_, err = io.Copy(out, in)
	return err
}
