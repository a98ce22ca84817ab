package value

import "strings"

// Path is a dot-joined member path into the data context, e.g.
// "user.name" or "posts.2.title". The empty path addresses the root.
//
// Paths are the unit of dependency tracking: an observer records the paths
// it read during evaluation, and the data context store maps changed paths
// back to affected observers via the prefix relation below.
type Path string

// Join appends a segment to p.
func (p Path) Join(segment string) Path {
	if p == "" {
		return Path(segment)
	}
	return p + "." + Path(segment)
}

// Related reports whether p and q stand in a prefix relation: p is an
// ancestor of, equal to, or a descendant of q.
//
// This over-approximation is deliberate - an observer that read "user" must
// re-evaluate when "user.name" changes (descendant), and one that read
// "user.name" must re-evaluate when "user" is replaced wholesale (ancestor).
// Trading precision for never missing an update.
func (p Path) Related(q Path) bool {
	if p == q || p == "" || q == "" {
		return true
	}
	if len(p) < len(q) {
		return strings.HasPrefix(string(q), string(p)+".")
	}
	return strings.HasPrefix(string(p), string(q)+".")
}

// Head returns the first segment of p, or "" for the root path.
func (p Path) Head() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p[:i])
	}
	return string(p)
}
