package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"git.home.luguber.info/inful/latexbuilder/internal/resolver"
)

// ResolveCmd implements the 'resolve' command.
type ResolveCmd struct {
	JSON bool `help:"Print nodes and paths as JSON"`
}

func (c *ResolveCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, true)
	if err != nil {
		return err
	}
	rv, err := newResolver(cfg)
	if err != nil {
		return err
	}
	res, err := rv.Resolve(context.Background())
	if err != nil {
		return err
	}
	return printResolution(os.Stdout, res, c.JSON)
}

type resolvedNode struct {
	Key   string   `json:"key"`
	Repo  string   `json:"repo"`
	Paths []string `json:"paths"`
	Error string   `json:"error,omitempty"`
}

func printResolution(w io.Writer, res *resolver.Resolution, asJSON bool) error {
	nodes := make([]resolvedNode, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		rn := resolvedNode{Key: n.Key, Repo: n.Repo, Paths: res.Paths[n.Key]}
		if err := res.Failures[n.Key]; err != nil {
			rn.Error = err.Error()
		}
		nodes = append(nodes, rn)
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	}
	for _, n := range nodes {
		fmt.Fprintf(w, "%s (%s)\n", n.Key, n.Repo)
		if n.Error != "" {
			fmt.Fprintf(w, "  ! %s\n", n.Error)
			continue
		}
		for _, p := range n.Paths {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	return nil
}
