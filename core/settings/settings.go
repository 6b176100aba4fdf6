/*Package settings provides a persistent registry of objects in a JSON file
on the device's file system.

The package uses JSON to serialize the data. Writes replace the file
atomically so a power loss never leaves a half-written settings file behind.
*/
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// New creates a new settings store backed by the file at path. The file is
// created on first write; a missing file reads as an empty store.
func New(path string) *Store {
	return &Store{path: path}
}

// Store provides a persistent registry of objects in a JSON file.
type Store struct {
	mutex sync.Mutex
	path  string
}

type entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// Read reads a value from the store. It returns the time when the value was
// written, or a zero timestamp if there is no value.
func (s *Store) Read(key string, value interface{}) (time.Time, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var timestamp time.Time
	entries, err := s.load()
	if err != nil {
		return timestamp, err
	}
	e, ok := entries[key]
	if !ok {
		return timestamp, nil
	}
	err = json.Unmarshal(e.Value, value)
	return e.Timestamp, err
}

// Write writes a value into the store.
func (s *Store) Write(key string, value interface{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[key] = entry{Value: body, Timestamp: time.Now().UTC()}
	return s.save(entries)
}

// Delete removes a value from the store. Deleting a missing key is not an
// error.
func (s *Store) Delete(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return s.save(entries)
}

func (s *Store) load() (map[string]entry, error) {
	entries := map[string]entry{}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read settings file '%s': %s", s.path, err.Error())
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("cannot parse settings file '%s': %s", s.path, err.Error())
	}
	return entries, nil
}

func (s *Store) save(entries map[string]entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
