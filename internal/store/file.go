package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gowa-dispatch/internal/model"
)

// FileStore keeps the snapshot as a single JSON file. Writes go to a temp
// file in the same directory and are renamed into place, so a crash mid-write
// leaves the previous snapshot intact.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(sessions map[string]*model.Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (f *FileStore) Load() (map[string]*model.Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*model.Session{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if len(data) == 0 {
		return map[string]*model.Session{}, nil
	}

	sessions := make(map[string]*model.Session)
	if err := json.Unmarshal(data, &sessions); err != nil {
		// A corrupt snapshot must not take the process down. Start empty.
		log.Printf("⚠ Session snapshot %s is corrupt, starting empty: %v", f.path, err)
		return map[string]*model.Session{}, nil
	}
	return sessions, nil
}
