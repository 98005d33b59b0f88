package loader

import "sort"

// IDMap translates source-instance record ids to target-instance ids. It
// preserves insertion order and never overwrites an entry, so translations
// established early (seeds, mapping policies) win over later uploads.
type IDMap struct {
	ids   map[string]string
	order []string
}

func NewIDMap() *IDMap {
	return &IDMap{ids: make(map[string]string)}
}

// NewIDMapFromSeed builds an IDMap from a plain map, inserting keys in sorted
// order for deterministic iteration.
func NewIDMapFromSeed(seed map[string]string) *IDMap {
	m := NewIDMap()
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, seed[k])
	}
	return m
}

// Set records a translation unless one already exists. It reports whether the
// entry was added.
func (m *IDMap) Set(sourceID, targetID string) bool {
	if _, ok := m.ids[sourceID]; ok {
		return false
	}
	m.ids[sourceID] = targetID
	m.order = append(m.order, sourceID)
	return true
}

func (m *IDMap) Get(sourceID string) (string, bool) {
	targetID, ok := m.ids[sourceID]
	return targetID, ok
}

func (m *IDMap) Has(sourceID string) bool {
	_, ok := m.ids[sourceID]
	return ok
}

func (m *IDMap) Len() int {
	return len(m.order)
}

// Each visits entries in insertion order.
func (m *IDMap) Each(fn func(sourceID, targetID string) bool) {
	for _, src := range m.order {
		if !fn(src, m.ids[src]) {
			return
		}
	}
}

// Merge copies entries from other in its insertion order, keeping existing
// translations.
func (m *IDMap) Merge(other *IDMap) {
	other.Each(func(src, dst string) bool {
		m.Set(src, dst)
		return true
	})
}

// Reverse returns a target→source map. When several source ids share one
// target (default mappings do this), the earliest entry wins.
func (m *IDMap) Reverse() map[string]string {
	rev := make(map[string]string, len(m.order))
	for _, src := range m.order {
		dst := m.ids[src]
		if _, ok := rev[dst]; !ok {
			rev[dst] = src
		}
	}
	return rev
}
