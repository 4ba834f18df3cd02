package archivesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
)

type localStore struct {
	dir string
}

var _ core.ArchiveStore = (*localStore)(nil)

// NewLocalStore keeps archived documents under dir.
func NewLocalStore(dir string) core.ArchiveStore {
	return &localStore{dir: dir}
}

func (s *localStore) Put(ctx context.Context, key, _ string, body io.Reader) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating archive dir")
	}

	// written to a temp file, then renamed
	tmp, err := os.CreateTemp(filepath.Dir(fp), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating archive file")
	}
	if _, err = io.Copy(tmp, body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "writing archive file")
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "closing archive file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), fp), "moving archive file")
}

// path resolves key under the store dir, refusing keys that escape it.
func (s *localStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", errors.New("archive: empty key")
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}
