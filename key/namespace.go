// Package key composes hierarchical storage keys out of a root namespace
// and zero or more group segments. Namespaces are side-effect-free to
// stringify and never touch a storage adapter — adapters only ever see
// already-resolved keys.
package key

import "strings"

// Namespace is a hierarchical key prefix scoping one logical tenant or
// subsystem. Extending a namespace produces a fresh value; the original
// is never mutated.
type Namespace struct {
	root     string
	segments []string
}

// NewNamespace creates a namespace rooted at root.
func NewNamespace(root string) Namespace {
	return Namespace{root: root}
}

// Extend returns a new namespace with segments appended to the current
// path. The receiver is left untouched.
func (n Namespace) Extend(segments ...string) Namespace {
	next := make([]string, 0, len(n.segments)+len(segments))
	next = append(next, n.segments...)
	next = append(next, segments...)
	return Namespace{root: n.root, segments: next}
}

// String returns the full namespace path, root first.
func (n Namespace) String() string {
	if len(n.segments) == 0 {
		return n.root
	}
	return n.root + "/" + strings.Join(n.segments, "/")
}

// Key composes a storage Key from this namespace plus additional
// segments. The result is {root}/{segments...}/{additional...}.
func (n Namespace) Key(segments ...string) Key {
	parts := make([]string, 0, len(n.segments)+len(segments)+1)
	parts = append(parts, n.root)
	parts = append(parts, n.segments...)
	parts = append(parts, segments...)
	return Key{s: strings.Join(parts, "/")}
}

// Prefix returns the storage-key prefix that covers every key rooted at
// this namespace, for use with clear()/removeByKeyPrefix style scans.
func (n Namespace) Prefix() string {
	return n.String()
}

// Key is a fully resolved storage key: a slash-joined sequence of UTF-8
// segments. Two keys are equal iff their joined form is byte-identical.
type Key struct {
	s string
}

// String returns the storage representation of the key.
func (k Key) String() string {
	return k.s
}

// Equal reports whether two keys have byte-identical string forms.
func (k Key) Equal(other Key) bool {
	return k.s == other.s
}

// IsZero reports whether k is the zero value.
func (k Key) IsZero() bool {
	return k.s == ""
}
