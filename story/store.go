package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps story state in a JSON file. Missing file is an empty
// story.
type FileStore struct {
	mu    sync.Mutex
	path  string
	state State
}

// OpenFileStore reads story state from path.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("unable to read story state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("unable to decode story state '%s': %w", path, err)
	}
	return s, nil
}

// Path returns name of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// ReducerState returns current story state.
func (s *FileStore) ReducerState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Restore replaces story state as a whole. File is written next to the
// destination and renamed, so readers never see partial state.
func (s *FileStore) Restore(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode story state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("unable to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("unable to create temporary state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to write story state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to write story state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("unable to replace story state: %w", err)
	}
	s.state = state
	return nil
}
