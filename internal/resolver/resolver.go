// Package resolver fetches the node list and each node's content tree from
// the content host and flattens the trees into ordered leaf paths.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/latexbuilder/internal/config"
	"git.home.luguber.info/inful/latexbuilder/internal/errors"
	"git.home.luguber.info/inful/latexbuilder/internal/fanout"
	"git.home.luguber.info/inful/latexbuilder/internal/forge"
	"git.home.luguber.info/inful/latexbuilder/internal/logfields"
	"git.home.luguber.info/inful/latexbuilder/internal/observability"
)

// Resolver resolves nodes and content trees through a ContentFetcher.
type Resolver struct {
	fetcher forge.ContentFetcher
	source  config.ConfigSourceConfig
}

// New creates a Resolver reading from source.
func New(fetcher forge.ContentFetcher, source config.ConfigSourceConfig) *Resolver {
	return &Resolver{fetcher: fetcher, source: source}
}

// Resolve fetches the node list, then every node's content tree concurrently.
// Only a failure to obtain the node list is returned as an error.
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	start := time.Now()

	data, err := r.fetcher.FetchContent(ctx, r.source.Owner, r.source.Repo, r.source.NodesPath, r.source.Ref)
	if err != nil {
		return nil, errors.NewError(errors.GetCategory(err), "failed to fetch node list").
			WithCause(err).
			WithContext("repository", r.source.Owner+"/"+r.source.Repo).
			WithContext("path", r.source.NodesPath).
			Build()
	}
	nodes, err := ParseNodes(data)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Nodes:    nodes,
		Paths:    make(PathsMap, len(nodes)),
		Failures: make(map[string]error),
	}

	results := fanout.Ordered(nodes, len(nodes), func(_ int, n Node) ([]string, error) {
		return r.resolveNode(ctx, n)
	})
	for i, n := range nodes {
		if err := results[i].Err; err != nil {
			res.Failures[n.Key] = err
			observability.WarnContext(ctx, "Content tree unavailable",
				logfields.Node(n.Key), logfields.Repository(n.Repo), logfields.Error(err))
			continue
		}
		res.Paths[n.Key] = results[i].Value
	}

	observability.InfoContext(ctx, "Resolved nodes",
		logfields.Count(len(nodes)),
		slog.Int("resolved", len(res.Paths)),
		slog.Int("failed", len(res.Failures)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return res, nil
}

func (r *Resolver) resolveNode(ctx context.Context, n Node) ([]string, error) {
	owner, name, ok := splitRepo(n.Repo)
	if !ok {
		return nil, errors.ValidationFailed("repo", fmt.Sprintf("%q is not owner/name", n.Repo))
	}
	// Content trees are read from the default branch of each node repository.
	data, err := r.fetcher.FetchContent(ctx, owner, name, r.source.TreePath, "")
	if err != nil {
		return nil, err
	}
	entries, err := ParseTree(data)
	if err != nil {
		return nil, err
	}
	return Flatten(entries), nil
}
