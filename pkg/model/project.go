package model

import (
	"encoding/json"

	"github.com/spf13/cast"
)

// Project is an upstream project record. Only ID and Name are interpreted; every other field
// is carried through untouched so callers see the record exactly as upstream sent it.
type Project struct {
	ID   string
	Name string
	raw  map[string]any
}

func NewProject(id, name string) Project {
	return Project{ID: id, Name: name}
}

// Fields returns the full upstream record.
func (p Project) Fields() map[string]any {
	if p.raw != nil {
		return p.raw
	}
	return map[string]any{"id": p.ID, "name": p.Name}
}

func (p *Project) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.raw = raw
	p.ID = cast.ToString(raw["id"])
	p.Name = cast.ToString(raw["name"])
	return nil
}

func (p Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields())
}

// ProjectFromMap builds a Project from an already-decoded upstream record.
func ProjectFromMap(m map[string]any) Project {
	return Project{
		ID:   cast.ToString(m["id"]),
		Name: cast.ToString(m["name"]),
		raw:  m,
	}
}
