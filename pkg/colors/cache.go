package colors

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Slots is the number of Google Calendar event colors (ids 1 to 11).
const Slots = 11

const cacheFile = "assignee_colors.json"

type AssigneeState struct {
	ColorID  string    `json:"color_id"`
	LastUsed time.Time `json:"last_used"`
}

// ColorCache hands out one event color per assignee. When every color is taken, the
// assignee seen least recently gives up its color.
type ColorCache struct {
	Path      string
	Assignees map[string]*AssigneeState
	now       func() time.Time
	mu        sync.Mutex
	dirty     bool
}

func NewColorCache(dir string) (*ColorCache, error) {
	cache := &ColorCache{
		Path:      filepath.Join(dir, cacheFile),
		Assignees: make(map[string]*AssigneeState),
		now:       time.Now,
	}
	if _, err := os.Stat(cache.Path); err == nil {
		if err := cache.Load(); err != nil {
			return nil, err
		}
	}
	return cache, nil
}

func (c *ColorCache) Load() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.NewDecoder(f).Decode(&c.Assignees)
}

func (c *ColorCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return err
	}
	f, err := os.Create(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(c.Assignees); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorID returns the color for assignee. Unassigned tasks get "" so the calendar's own
// color applies.
func (c *ColorCache) ColorID(assignee string) string {
	if assignee == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dirty = true
	if state, ok := c.Assignees[assignee]; ok {
		state.LastUsed = c.now()
		return state.ColorID
	}
	return c.assign(assignee)
}

func (c *ColorCache) assign(assignee string) string {
	used := make(map[string]bool, len(c.Assignees))
	for _, s := range c.Assignees {
		used[s.ColorID] = true
	}
	for i := 1; i <= Slots; i++ {
		id := strconv.Itoa(i)
		if !used[id] {
			c.Assignees[assignee] = &AssigneeState{ColorID: id, LastUsed: c.now()}
			return id
		}
	}

	var oldest string
	var oldestTime time.Time
	for name, s := range c.Assignees {
		if oldest == "" || s.LastUsed.Before(oldestTime) || (s.LastUsed.Equal(oldestTime) && name < oldest) {
			oldest, oldestTime = name, s.LastUsed
		}
	}
	recycled := c.Assignees[oldest].ColorID
	delete(c.Assignees, oldest)
	c.Assignees[assignee] = &AssigneeState{ColorID: recycled, LastUsed: c.now()}
	return recycled
}
