// Package filter evaluates structured queries against a catalog snapshot.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/agora/internal/catalog"
)

// Spec is a structured assistant query. Tags and Roles match any of their
// entries; non-empty categories are combined with AND. AssistantID, when
// set, overrides every other criterion.
type Spec struct {
	Tags        []string `json:"tags,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	SearchTerm  string   `json:"search_term,omitempty"`
	AssistantID string   `json:"assistant_id,omitempty"`
	// Refresh asks the caller to force a catalog reload before Apply.
	Refresh bool `json:"refresh,omitempty"`
}

// Validate reports whether the spec can be evaluated. Blank list entries
// and an id made only of whitespace are rejected with
// catalog.ErrInvalidQuery.
func (s Spec) Validate() error {
	if s.AssistantID != "" && strings.TrimSpace(s.AssistantID) == "" {
		return fmt.Errorf("%w: assistant_id is blank", catalog.ErrInvalidQuery)
	}
	for _, t := range s.Tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: blank tag", catalog.ErrInvalidQuery)
		}
	}
	for _, r := range s.Roles {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: blank role", catalog.ErrInvalidQuery)
		}
	}
	return nil
}

// IsZero reports whether the spec has no criteria at all.
func (s Spec) IsZero() bool {
	return len(s.Tags) == 0 && len(s.Roles) == 0 &&
		strings.TrimSpace(s.SearchTerm) == "" && s.AssistantID == ""
}

// Apply returns the assistants in snap matching spec, in snapshot order.
// It neither refreshes nor modifies the snapshot.
func Apply(spec Spec, snap *catalog.Snapshot) []catalog.Assistant {
	if snap == nil {
		return nil
	}

	if id := strings.TrimSpace(spec.AssistantID); id != "" {
		if a, ok := snap.Lookup(id); ok {
			return []catalog.Assistant{a}
		}
		return []catalog.Assistant{}
	}

	// nil means "every position"; an empty non-nil slice means no match.
	var positions []int
	if len(spec.Tags) > 0 {
		positions = union(spec.Tags, snap.TagPositions)
	}
	if len(spec.Roles) > 0 {
		roles := union(spec.Roles, snap.RolePositions)
		if positions == nil {
			positions = roles
		} else {
			positions = intersect(positions, roles)
		}
	}

	term := strings.ToLower(strings.TrimSpace(spec.SearchTerm))
	out := make([]catalog.Assistant, 0)
	keep := func(a catalog.Assistant) {
		if term == "" || matchesTerm(a, term) {
			out = append(out, a)
		}
	}

	if positions == nil {
		for i := 0; i < snap.Len(); i++ {
			keep(snap.At(i))
		}
		return out
	}
	for _, pos := range positions {
		keep(snap.At(pos))
	}
	return out
}

func matchesTerm(a catalog.Assistant, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(a.Title), lowerTerm) ||
		strings.Contains(strings.ToLower(a.Description), lowerTerm)
}

// union merges the positions of every label into one ascending set.
func union(labels []string, lookup func(string) []int) []int {
	seen := make(map[int]struct{})
	out := make([]int, 0)
	for _, label := range labels {
		for _, pos := range lookup(label) {
			if _, ok := seen[pos]; ok {
				continue
			}
			seen[pos] = struct{}{}
			out = append(out, pos)
		}
	}
	sort.Ints(out)
	return out
}

// intersect returns the common elements of two ascending slices.
func intersect(a, b []int) []int {
	out := make([]int, 0)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
