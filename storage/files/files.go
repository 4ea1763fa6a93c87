// Package files keeps uploaded files in bucket directories on disk.
package files

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

var ErrInvalidPath = errors.New("invalid file path")

type Store struct {
	root    string
	baseURL string // prefix of the download URLs, e.g. /v1/files
}

var _ core.FileStore = (*Store)(nil)

func NewStore(root, baseURL string) *Store {
	return &Store{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// resolve maps bucket/p to a path under root, rejecting any path that escapes its bucket.
func (s *Store) resolve(bucket, p string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidPath
	}
	clean := path.Clean("/" + p)
	if clean == "/" || strings.Contains(p, `\`) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

func (s *Store) Save(ctx context.Context, bucket, p string, r io.Reader) (core.StoredFile, error) {
	fp, err := s.resolve(bucket, p)
	if err != nil {
		return core.StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return core.StoredFile{}, errors.Wrap(err, "creating bucket directory")
	}

	f, err := os.Create(fp)
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "creating file")
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(fp)
		return core.StoredFile{}, errors.Wrap(err, "writing file")
	}
	return s.stat(fp, p, size)
}

func (s *Store) stat(fp, p string, size int64) (core.StoredFile, error) {
	fi, err := os.Stat(fp)
	if err != nil {
		return core.StoredFile{}, errors.Wrap(err, "stat file")
	}
	if size < 0 {
		size = fi.Size()
	}
	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return core.StoredFile{
		Path:        strings.TrimPrefix(path.Clean("/"+p), "/"),
		Name:        path.Base(p),
		ContentType: ct,
		Size:        size,
		ModTime:     fi.ModTime(),
	}, nil
}

// Open returns the file content. A missing file gives an error satisfying os.IsNotExist.
func (s *Store) Open(ctx context.Context, bucket, p string) (io.ReadCloser, core.StoredFile, error) {
	fp, err := s.resolve(bucket, p)
	if err != nil {
		return nil, core.StoredFile{}, err
	}
	f, err := os.Open(fp)
	if err != nil {
		return nil, core.StoredFile{}, err
	}
	sf, err := s.stat(fp, p, -1)
	if err != nil {
		_ = f.Close()
		return nil, core.StoredFile{}, err
	}
	return f, sf, nil
}

// Delete removes the file. Deleting a missing file is not an error.
func (s *Store) Delete(ctx context.Context, bucket, p string) error {
	fp, err := s.resolve(bucket, p)
	if err != nil {
		return err
	}
	if err := os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, bucket, prefix string) error {
	dir, err := s.resolve(bucket, prefix)
	if err != nil {
		return err
	}
	return errors.Wrap(os.RemoveAll(dir), "removing directory")
}

func (s *Store) URL(bucket, p string) string {
	segments := strings.Split(strings.TrimPrefix(path.Clean("/"+p), "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}
