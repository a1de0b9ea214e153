package registry

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrGroupExists is returned when a group name is already in use.
	ErrGroupExists = errors.New("group already exists")
	// ErrNoMembers is returned when none of the requested members is online.
	ErrNoMembers = errors.New("group has no valid members")
)

// Directory answers whether a name belongs to an online session.
type Directory interface {
	Contains(name string) bool
}

// Group is a copy of a group's state; mutating it does not affect the registry.
type Group struct {
	Name    string
	Members []string
}

// Groups maps group names to ordered member lists. Members are validated
// against the session directory at creation time only; later disconnects are
// applied through RemoveMember.
type Groups struct {
	mu      sync.RWMutex
	dir     Directory
	members map[string][]string
	order   []string
}

// NewGroups creates an empty group registry that checks members against dir.
func NewGroups(dir Directory) *Groups {
	return &Groups{dir: dir, members: make(map[string][]string)}
}

// Create registers a group. Duplicate member names are collapsed and names
// that are not online are dropped. An existing group name yields
// ErrGroupExists and leaves the registry unchanged.
func (g *Groups) Create(name string, members []string) (Group, error) {
	if strings.TrimSpace(name) == "" {
		return Group{}, ErrInvalidName
	}

	valid := make([]string, 0, len(members))
	for _, m := range members {
		if slices.Contains(valid, m) || !g.dir.Contains(m) {
			continue
		}
		valid = append(valid, m)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[name]; ok {
		return Group{}, ErrGroupExists
	}
	if len(valid) == 0 {
		return Group{}, ErrNoMembers
	}
	g.members[name] = valid
	g.order = append(g.order, name)
	return Group{Name: name, Members: slices.Clone(valid)}, nil
}

// Lookup returns a copy of the named group.
func (g *Groups) Lookup(name string) (Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	members, ok := g.members[name]
	if !ok {
		return Group{}, false
	}
	return Group{Name: name, Members: slices.Clone(members)}, true
}

// RemoveMember drops name from every group and deletes groups left empty. It
// reports whether any group changed.
func (g *Groups) RemoveMember(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	changed := false
	kept := g.order[:0]
	for _, group := range g.order {
		members := g.members[group]
		if i := slices.Index(members, name); i >= 0 {
			members = slices.Delete(members, i, i+1)
			changed = true
		}
		if len(members) == 0 {
			delete(g.members, group)
			continue
		}
		g.members[group] = members
		kept = append(kept, group)
	}
	clear(g.order[len(kept):])
	g.order = kept
	return changed
}

// Names returns active group names in creation order.
func (g *Groups) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.order)
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// NotifyMembers calls deliver for every member of the group and returns the
// number of deliveries that succeeded. Offline members are simply skipped by
// deliver; nothing is queued for them.
func (g *Groups) NotifyMembers(name string, deliver func(member string) bool) (int, error) {
	return g.fanOut(name, "", deliver)
}

// Route fans a message out to every member except exclude.
func (g *Groups) Route(name, exclude string, deliver func(member string) bool) (int, error) {
	return g.fanOut(name, exclude, deliver)
}

func (g *Groups) fanOut(name, exclude string, deliver func(string) bool) (int, error) {
	group, ok := g.Lookup(name)
	if !ok {
		return 0, ErrNotFound
	}

	delivered := 0
	for _, member := range group.Members {
		if member == exclude {
			continue
		}
		if deliver(member) {
			delivered++
		}
	}
	return delivered, nil
}
