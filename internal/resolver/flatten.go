package resolver

// Flatten returns the leaf paths of a content tree in depth-first preorder.
// An entry with children expands in place and its own path is ignored; a
// childless entry contributes its path when non-empty.
func Flatten(entries []Entry) []string {
	var out []string
	var walk func([]Entry)
	walk = func(level []Entry) {
		for _, e := range level {
			if len(e.Children) > 0 {
				walk(e.Children)
				continue
			}
			if e.Path != "" {
				out = append(out, e.Path)
			}
		}
	}
	walk(entries)
	return out
}
