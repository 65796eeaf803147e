package resolver

// Node is one document source registered in the node list.
type Node struct {
	Key  string `yaml:"key" json:"key"`
	Repo string `yaml:"repo" json:"repo"` // owner/name on the content host
}

// Entry is one element of a node's content tree.
type Entry struct {
	Path     string  `yaml:"path,omitempty" json:"path,omitempty"`
	Children []Entry `yaml:"children,omitempty" json:"children,omitempty"`
}

// PathsMap maps a node key to its leaf paths in preorder.
type PathsMap map[string][]string

// Resolution is the outcome of resolving the node list and every content tree.
// Nodes whose tree could not be fetched or parsed are listed in Failures and
// have no PathsMap entry.
type Resolution struct {
	Nodes    []Node
	Paths    PathsMap
	Failures map[string]error
}
