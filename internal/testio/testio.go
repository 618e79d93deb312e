// Package testio represents testcase data that is either held inline or
// stored in a file, and converts between the two forms.
package testio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/programme-lv/judge/internal/tmpstore"
)

// IO is inline data or a reference to a file. Data takes precedence.
type IO struct {
	Data *string
	Path string
}

func Inline(s string) IO { return IO{Data: &s} }

func File(path string) IO { return IO{Path: path} }

func (x IO) IsInline() bool { return x.Data != nil }

func (x IO) IsZero() bool { return x.Data == nil && x.Path == "" }

// Materializer turns IO values into readable file paths
type Materializer struct {
	pool *tmpstore.Pool
}

func NewMaterializer(pool *tmpstore.Pool) *Materializer {
	return &Materializer{pool: pool}
}

// Materialize returns a file path holding the data of x. The release func
// must be called once the path is no longer needed; it is a no-op for plain
// file references.
func (m *Materializer) Materialize(x IO) (string, func(), error) {
	if x.Data != nil {
		path := m.pool.Create()
		if err := os.WriteFile(path, []byte(*x.Data), 0644); err != nil {
			m.pool.Dispose(path)
			return "", nil, fmt.Errorf("failed to write inline data: %w", err)
		}
		return path, func() { m.pool.Dispose(path) }, nil
	}
	if x.Path == "" {
		path := m.pool.Create()
		if err := os.WriteFile(path, nil, 0644); err != nil {
			m.pool.Dispose(path)
			return "", nil, fmt.Errorf("failed to create empty file: %w", err)
		}
		return path, func() { m.pool.Dispose(path) }, nil
	}
	if filepath.Ext(x.Path) == ".zst" {
		path := m.pool.Create()
		if err := decompress(x.Path, path); err != nil {
			m.pool.Dispose(path)
			return "", nil, err
		}
		return path, func() { m.pool.Dispose(path) }, nil
	}
	return x.Path, func() {}, nil
}

// TryInline converts a pooled file into inline data when it is at most max
// bytes long, disposing the path. Larger files are kept as references.
func (m *Materializer) TryInline(path string, max int64) (IO, error) {
	st, err := os.Stat(path)
	if err != nil {
		return IO{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if st.Size() > max {
		return File(path), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return IO{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	m.pool.Dispose(path)
	return Inline(string(b)), nil
}

// Read returns the full content of x
func Read(x IO) (string, error) {
	if x.Data != nil {
		return *x.Data, nil
	}
	if x.Path == "" {
		return "", nil
	}
	if filepath.Ext(x.Path) == ".zst" {
		f, err := os.Open(x.Path)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", x.Path, err)
		}
		defer f.Close()
		d, err := zstd.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer d.Close()
		b, err := io.ReadAll(d)
		if err != nil {
			return "", fmt.Errorf("failed to decompress %s: %w", x.Path, err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(x.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", x.Path, err)
	}
	return string(b), nil
}

// Head returns at most max bytes from the start of the file
func Head(path string, max int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, max))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(b), nil
}

func decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	defer out.Close()

	d, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer d.Close()
	if _, err = io.Copy(out, d); err != nil {
		return fmt.Errorf("failed to write file %s: %w", dst, err)
	}
	return nil
}
