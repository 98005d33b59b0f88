package schema

import "strings"

// Object and field names arrive in arbitrary case, with or without a namespace
// prefix (`ns__Name`). All lookups in this package fold case and try the
// namespace-stripped and namespace-added forms of a name before giving up.

var customSuffixes = []string{"__c", "__r", "__mdt"}

func splitCustomSuffix(name string) (base, suffix string) {
	lower := strings.ToLower(name)
	for _, sfx := range customSuffixes {
		if strings.HasSuffix(lower, sfx) {
			return name[:len(name)-len(sfx)], name[len(name)-len(sfx):]
		}
	}
	return name, ""
}

// StripNamespace removes a leading `ns__` prefix from name. Names not carrying
// the prefix are returned unchanged.
func StripNamespace(name, ns string) string {
	if ns == "" {
		return name
	}
	prefix := ns + "__"
	if len(name) > len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
		return name[len(prefix):]
	}
	return name
}

// AddNamespace prepends `ns__` to a name that does not already carry a
// namespace. Custom suffixes (`__c`, `__r`, `__mdt`) are not treated as a
// namespace marker, so `Foo__c` becomes `ns__Foo__c` while `other__Foo__c`
// is returned unchanged.
func AddNamespace(name, ns string) string {
	if ns == "" || name == "" {
		return name
	}
	base, suffix := splitCustomSuffix(name)
	if strings.Contains(base, "__") {
		return name
	}
	return ns + "__" + base + suffix
}

// nameCandidates lists the lowercased forms a lookup should try, raw name
// first.
func nameCandidates(name, ns string) []string {
	lower := strings.ToLower(name)
	candidates := []string{lower}
	if ns != "" {
		if stripped := strings.ToLower(StripNamespace(name, ns)); stripped != lower {
			candidates = append(candidates, stripped)
		}
		if added := strings.ToLower(AddNamespace(name, ns)); added != lower {
			candidates = append(candidates, added)
		}
	}
	return candidates
}

// LookupValue finds key in m under case-insensitive, namespace-tolerant rules.
// Map keys must already be lowercased; the first candidate form that hits
// wins.
func LookupValue[T any](m map[string]T, key, ns string) (T, bool) {
	for _, candidate := range nameCandidates(key, ns) {
		if v, ok := m[candidate]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// EquivalentNames reports whether two names refer to the same identifier after
// case folding and optional namespace add/strip.
func EquivalentNames(a, b, ns string) bool {
	for _, ca := range nameCandidates(a, ns) {
		for _, cb := range nameCandidates(b, ns) {
			if ca == cb {
				return true
			}
		}
	}
	return false
}

// ContainsName reports whether names includes name, using the same fallback
// rules as LookupValue.
func ContainsName(names []string, name, ns string) bool {
	for _, n := range names {
		if EquivalentNames(n, name, ns) {
			return true
		}
	}
	return false
}
