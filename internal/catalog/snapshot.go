package catalog

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Assistant is one remotely defined conversational agent.
type Assistant struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Roles       []string        `json:"roles"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Facet is a tag or role name with the number of assistants carrying it.
type Facet struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Snapshot is an immutable, versioned copy of the catalog. It is never
// modified after the cache publishes it; callers must treat the slices
// inside returned assistants as read-only.
type Snapshot struct {
	version    uint64
	fetchedAt  time.Time
	assistants []Assistant
	byID       map[string]int
	byTag      map[string][]int
	byRole     map[string][]int
	tagNames   map[string]string
	roleNames  map[string]string
}

// NewSnapshot builds a snapshot and its secondary indexes from a fetched
// assistant list. When an id appears more than once the last record wins
// and keeps the position of the first occurrence.
func NewSnapshot(assistants []Assistant, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		fetchedAt:  fetchedAt,
		assistants: make([]Assistant, 0, len(assistants)),
		byID:       make(map[string]int, len(assistants)),
		byTag:      make(map[string][]int),
		byRole:     make(map[string][]int),
		tagNames:   make(map[string]string),
		roleNames:  make(map[string]string),
	}

	for _, a := range assistants {
		a = cloneAssistant(a)
		if pos, ok := s.byID[a.ID]; ok {
			s.assistants[pos] = a
			continue
		}
		s.byID[a.ID] = len(s.assistants)
		s.assistants = append(s.assistants, a)
	}

	for pos, a := range s.assistants {
		indexLabels(s.byTag, s.tagNames, a.Tags, pos)
		indexLabels(s.byRole, s.roleNames, a.Roles, pos)
	}
	return s
}

// indexLabels adds pos under every case-folded label, once per assistant.
func indexLabels(index map[string][]int, names map[string]string, labels []string, pos int) {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		key := foldLabel(label)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		index[key] = append(index[key], pos)
		if _, ok := names[key]; !ok {
			names[key] = strings.TrimSpace(label)
		}
	}
}

func foldLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func cloneAssistant(a Assistant) Assistant {
	out := a
	if a.Tags != nil {
		out.Tags = append([]string(nil), a.Tags...)
	}
	if a.Roles != nil {
		out.Roles = append([]string(nil), a.Roles...)
	}
	if a.Raw != nil {
		out.Raw = append(json.RawMessage(nil), a.Raw...)
	}
	return out
}

// Version is the cache-assigned sequence number, 0 before publication.
func (s *Snapshot) Version() uint64 { return s.version }

// FetchedAt is when the catalog was fetched from upstream.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// Len returns the number of assistants.
func (s *Snapshot) Len() int { return len(s.assistants) }

// At returns the assistant at the given insertion position.
func (s *Snapshot) At(pos int) Assistant { return s.assistants[pos] }

// Assistants returns the assistants in insertion order.
func (s *Snapshot) Assistants() []Assistant {
	out := make([]Assistant, len(s.assistants))
	copy(out, s.assistants)
	return out
}

// Lookup returns the assistant with the given id.
func (s *Snapshot) Lookup(id string) (Assistant, bool) {
	pos, ok := s.byID[id]
	if !ok {
		return Assistant{}, false
	}
	return s.assistants[pos], true
}

// TagPositions returns the ascending positions of assistants carrying tag,
// compared case-insensitively.
func (s *Snapshot) TagPositions(tag string) []int {
	return s.byTag[foldLabel(tag)]
}

// RolePositions returns the ascending positions of assistants carrying role,
// compared case-insensitively.
func (s *Snapshot) RolePositions(role string) []int {
	return s.byRole[foldLabel(role)]
}

// TagFacets lists every tag with its assistant count, most common first.
func (s *Snapshot) TagFacets() []Facet {
	return facets(s.byTag, s.tagNames)
}

// RoleFacets lists every role with its assistant count, most common first.
func (s *Snapshot) RoleFacets() []Facet {
	return facets(s.byRole, s.roleNames)
}

func facets(index map[string][]int, names map[string]string) []Facet {
	out := make([]Facet, 0, len(index))
	for key, positions := range index {
		out = append(out, Facet{Name: names[key], Count: len(positions)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
