package custody

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/tipbot/internal/filex"
)

// FileStore keeps the snapshot as a JSON file replaced atomically on save.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

func (s *FileStore) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(records)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(s.path, data, 0o600)
}
