package cursor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultFileName is the cursor file name inside the working storage area.
const DefaultFileName = "last_offset.txt"

// FileStore keeps the cursor as a decimal integer in a UTF-8 text file.
type FileStore struct {
	path string
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore at path. The parent directory is created
// on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Cursor, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", s.path).Msg("No cursor file, starting from 0")
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("read cursor file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return Cursor{}, nil
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("parse cursor file %s: %w", s.path, err)
	}
	if id < 0 {
		return Cursor{}, fmt.Errorf("parse cursor file %s: negative message id %d", s.path, id)
	}
	return Cursor{LastMessageID: id}, nil
}

// Save writes the value to a sibling temp file, syncs it and renames it over
// the target. Readers see either the old or the new value.
func (s *FileStore) Save(ctx context.Context, c Cursor) error {
	if err := s.write(c); err != nil {
		return &PersistError{Backend: "file", Cursor: c, Err: err}
	}
	log.Debug().Str("path", s.path).Int64("lastMessageId", c.LastMessageID).Msg("Cursor saved")
	return nil
}

func (s *FileStore) write(c Cursor) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(strconv.FormatInt(c.LastMessageID, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
