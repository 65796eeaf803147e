package config

import "strings"

// Default values mirrored by Init and documented in the example config.
const (
	DefaultAPIURL    = "https://api.github.com"
	DefaultRepoHost  = "https://github.com"
	DefaultRef       = "master"
	DefaultNodesPath = "nodes.json"
	DefaultTreePath  = "content.json"
	DefaultBranch    = "master"
	DefaultCommand   = "pdflatex"
	DefaultCacheSize = 256
	DefaultRegion    = "us-east-1"
)

func applyDefaults(cfg *Config) {
	src := &cfg.ConfigSource
	if src.APIURL == "" {
		src.APIURL = DefaultAPIURL
	}
	if src.Ref == "" {
		src.Ref = DefaultRef
	}
	if src.NodesPath == "" {
		src.NodesPath = DefaultNodesPath
	}
	if src.TreePath == "" {
		src.TreePath = DefaultTreePath
	}

	cc := &cfg.Compile
	if cc.RepoHost == "" {
		cc.RepoHost = DefaultRepoHost
	}
	cc.RepoHost = strings.TrimSuffix(cc.RepoHost, "/")
	if cc.Branch == "" {
		cc.Branch = DefaultBranch
	}
	if cc.Command == "" {
		cc.Command = DefaultCommand
	}
	if cc.Concurrency < 0 {
		cc.Concurrency = 0
	}

	ec := &cfg.Engine
	if ec.DownloadsDir == "" {
		ec.DownloadsDir = "/tmp/downloads"
	}
	if ec.StorageDir == "" {
		ec.StorageDir = "/tmp/storage"
	}
	if ec.CacheSize <= 0 {
		ec.CacheSize = DefaultCacheSize
	}
	if ec.ShallowDepth <= 0 {
		ec.ShallowDepth = 1
	}
	if mode := NormalizeRetryBackoff(string(ec.Retry.Backoff)); mode != "" {
		ec.Retry.Backoff = mode
	} else {
		ec.Retry.Backoff = RetryBackoffLinear
	}

	cfg.Storage.Type = StorageType(strings.ToLower(strings.TrimSpace(string(cfg.Storage.Type))))
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageS3
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = DefaultRegion
	}

	tc := &cfg.Trigger
	tc.Type = TriggerType(strings.ToLower(strings.TrimSpace(string(tc.Type))))
	if tc.Type == "" {
		tc.Type = TriggerHTTP
	}
	if tc.Method == "" {
		tc.Method = "POST"
	}
	tc.Policy = TriggerPolicy(strings.ToLower(strings.TrimSpace(string(tc.Policy))))
	if tc.Policy == "" {
		tc.Policy = TriggerBestEffort
	}

	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
}
