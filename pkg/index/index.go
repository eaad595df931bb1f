package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const indexFile = "events.json"

// EventIndex maps task keys to calendar event ids so a sync can fetch an event directly
// instead of searching the calendar.
type EventIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// NewEventIndex opens the index stored in dir, starting empty when no file exists yet.
func NewEventIndex(dir string) (*EventIndex, error) {
	idx := &EventIndex{
		Mappings: make(map[string]string),
		Path:     filepath.Join(dir, indexFile),
	}
	if _, err := os.Stat(idx.Path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *EventIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	mappings := make(map[string]string)
	if err := json.NewDecoder(f).Decode(&mappings); err != nil {
		return err
	}
	idx.mu.Lock()
	idx.Mappings = mappings
	idx.dirty = false
	idx.mu.Unlock()
	return nil
}

// Save writes the index if it changed since the last Load or Save.
func (idx *EventIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(idx.Path), 0700); err != nil {
		return err
	}
	tmp := idx.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, idx.Path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *EventIndex) Get(key string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[key]
}

func (idx *EventIndex) Set(key, eventID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[key] != eventID {
		idx.Mappings[key] = eventID
		idx.dirty = true
	}
}

func (idx *EventIndex) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[key]; exists {
		delete(idx.Mappings, key)
		idx.dirty = true
	}
}

func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}
