package setup

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// decompressors maps a file extension to a reader constructor.
var decompressors = map[string]func(io.Reader) (io.ReadCloser, error){
	".bz2": func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(bzip2.NewReader(r)), nil
	},
	".gz": func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
	".xz": func(r io.Reader) (io.ReadCloser, error) {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	},
	".zst": func(r io.Reader) (io.ReadCloser, error) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	},
}

// Compressed reports whether path has an extension Decompress understands.
func Compressed(path string) bool {
	_, ok := decompressors[strings.ToLower(filepath.Ext(path))]
	return ok
}

// DecompressedPath is path with its compression extension removed.
func DecompressedPath(path string) string {
	if !Compressed(path) {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Decompress writes the decompressed contents of src next to it and returns
// the new path. The output file only appears once it is complete.
func Decompress(src string) (string, error) {
	open, ok := decompressors[strings.ToLower(filepath.Ext(src))]
	if !ok {
		return "", fmt.Errorf("unsupported compression: %s", src)
	}
	dst := DecompressedPath(src)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	r, err := open(in)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", src, err)
	}
	defer r.Close()

	if err := writeAtomic(dst, r); err != nil {
		return "", fmt.Errorf("decompressing %s: %w", src, err)
	}
	return dst, nil
}

func writeAtomic(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
