package resolver

import (
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/util/sets"
)

// ParseNodes decodes a node list (JSON or YAML). Entries without a key or repo
// are dropped and duplicate keys keep their first occurrence.
func ParseNodes(data []byte) ([]Node, error) {
	var raw []Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewError(errors.CategoryValidation, "invalid node list").WithCause(err).Build()
	}

	seen := sets.New[string]()
	nodes := make([]Node, 0, len(raw))
	for i, n := range raw {
		n.Key = strings.TrimSpace(n.Key)
		n.Repo = strings.TrimSpace(n.Repo)
		if n.Key == "" || n.Repo == "" {
			slog.Warn("Dropping node with missing key or repo", slog.Int("index", i), logfields.Node(n.Key), logfields.Repository(n.Repo))
			continue
		}
		if seen.Has(n.Key) {
			slog.Warn("Dropping duplicate node", logfields.Node(n.Key), logfields.Repository(n.Repo))
			continue
		}
		seen.Add(n.Key)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// ParseTree decodes a content tree (JSON or YAML).
func ParseTree(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.NewError(errors.CategoryValidation, "invalid content tree").WithCause(err).Build()
	}
	return entries, nil
}

// splitRepo splits "owner/name" (slashes around it are ignored).
func splitRepo(repo string) (owner, name string, ok bool) {
	owner, name, ok = strings.Cut(strings.Trim(repo, "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", false
	}
	return owner, name, true
}
