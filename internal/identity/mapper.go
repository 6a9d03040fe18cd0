// Package identity joins entities of two tenants on their natural keys.
package identity

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// ErrUnresolved is returned when a name or ID has no counterpart on the target.
var ErrUnresolved = errors.New("unresolved")

// FoldKey normalizes a natural key for case-insensitive comparison. A Caser
// carries state, so one is created per call.
func FoldKey(s string) string {
	return cases.Fold().String(s)
}

// Keyed is an entity reduced to its ID and natural key.
type Keyed struct {
	ID  string
	Key string
}

// Map maps source entity IDs to target entity IDs. Source entities without a
// target counterpart are recorded as unresolved and never resolve.
type Map struct {
	forward    map[string]string
	reverse    map[string]string
	unresolved []string
}

// Join builds a Map from two listings joined on Key. With fold set, keys are
// compared case-insensitively. When a key repeats within one listing, the
// first entity wins and the rest are reported through log.
func Join(source, target []Keyed, fold bool, log logrus.FieldLogger) *Map {
	norm := func(s string) string { return s }
	if fold {
		norm = FoldKey
	}

	byKey := make(map[string]string, len(target))
	for _, t := range target {
		k := norm(t.Key)
		if _, dup := byKey[k]; dup {
			if log != nil {
				log.WithField("key", t.Key).Warn("duplicate key on target, keeping first match")
			}
			continue
		}
		byKey[k] = t.ID
	}

	m := &Map{forward: map[string]string{}, reverse: map[string]string{}}
	seen := make(map[string]bool, len(source))
	for _, s := range source {
		k := norm(s.Key)
		if seen[k] {
			if log != nil {
				log.WithField("key", s.Key).Warn("duplicate key on source, keeping first match")
			}
			continue
		}
		seen[k] = true
		if id, ok := byKey[k]; ok {
			m.forward[s.ID] = id
			if _, taken := m.reverse[id]; !taken {
				m.reverse[id] = s.ID
			}
		} else {
			m.unresolved = append(m.unresolved, s.ID)
		}
	}
	return m
}

// Resolve returns the target ID for a source ID.
func (m *Map) Resolve(sourceID string) (string, bool) {
	id, ok := m.forward[sourceID]
	return id, ok
}

// Reverse returns the source ID for a target ID.
func (m *Map) Reverse(targetID string) (string, bool) {
	id, ok := m.reverse[targetID]
	return id, ok
}

// Unresolved returns the source IDs with no target counterpart.
func (m *Map) Unresolved() []string {
	out := append([]string(nil), m.unresolved...)
	sort.Strings(out)
	return out
}

// Len returns the number of resolved entries.
func (m *Map) Len() int {
	return len(m.forward)
}

// IsReservedGroup reports whether name is a system group that is never migrated.
func IsReservedGroup(name string) bool {
	k := FoldKey(name)
	for _, r := range platform.ReservedGroups {
		if FoldKey(r) == k {
			return true
		}
	}
	return false
}

// FilterReserved drops reserved groups from a listing.
func FilterReserved(groups []models.Group) []models.Group {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if !IsReservedGroup(g.Name) {
			out = append(out, g)
		}
	}
	return out
}

// FilterReservedNames drops reserved group names from a list.
func FilterReservedNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !IsReservedGroup(n) {
			out = append(out, n)
		}
	}
	return out
}

// UserKeys keys users by email.
func UserKeys(users []models.User) []Keyed {
	out := make([]Keyed, 0, len(users))
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		out = append(out, Keyed{ID: u.ID, Key: u.Email})
	}
	return out
}

// GroupKeys keys non-reserved groups by name.
func GroupKeys(groups []models.Group) []Keyed {
	out := make([]Keyed, 0, len(groups))
	for _, g := range FilterReserved(groups) {
		out = append(out, Keyed{ID: g.ID, Key: g.Name})
	}
	return out
}

// BuildUserMap lists users on both tenants and joins them on exact email.
func BuildUserMap(ctx context.Context, src, dst *platform.Tenant, log logrus.FieldLogger) (*Map, error) {
	su, err := src.ListUsers(ctx, false)
	if err != nil {
		return nil, err
	}
	du, err := dst.ListUsers(ctx, false)
	if err != nil {
		return nil, err
	}
	return Join(UserKeys(su), UserKeys(du), false, log), nil
}

// BuildGroupMap lists groups on both tenants and joins them on name,
// ignoring case. Reserved groups are excluded on both sides.
func BuildGroupMap(ctx context.Context, src, dst *platform.Tenant, log logrus.FieldLogger) (*Map, error) {
	sg, err := src.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	dg, err := dst.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	return Join(GroupKeys(sg), GroupKeys(dg), true, log), nil
}

// NameIndex maps names to IDs case-insensitively, keeping the first entry.
type NameIndex map[string]string

// NewGroupIndex indexes non-reserved groups by name.
func NewGroupIndex(groups []models.Group) NameIndex {
	idx := NameIndex{}
	for _, g := range FilterReserved(groups) {
		k := FoldKey(g.Name)
		if _, ok := idx[k]; !ok {
			idx[k] = g.ID
		}
	}
	return idx
}

// Lookup returns the ID registered for name.
func (idx NameIndex) Lookup(name string) (string, bool) {
	id, ok := idx[FoldKey(name)]
	return id, ok
}
