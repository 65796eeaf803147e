package config

import (
	"net/url"
	"strings"

	dberrors "git.home.luguber.info/inful/latexbuilder/internal/errors"
)

// ValidateSource checks the fields needed to resolve nodes and content trees.
func (c *Config) ValidateSource() error {
	if strings.TrimSpace(c.ConfigSource.Owner) == "" {
		return dberrors.ConfigRequired("config_source.owner")
	}
	if strings.TrimSpace(c.ConfigSource.Repo) == "" {
		return dberrors.ConfigRequired("config_source.repo")
	}
	if _, err := url.ParseRequestURI(c.ConfigSource.APIURL); err != nil {
		return dberrors.ValidationFailed("config_source.api_url", err.Error())
	}
	return nil
}

// Validate checks the complete configuration required for a full build run.
func (c *Config) Validate() error {
	if err := c.ValidateSource(); err != nil {
		return err
	}
	switch c.Storage.Type {
	case StorageS3:
		if strings.TrimSpace(c.Storage.Endpoint) == "" {
			return dberrors.ConfigRequired("storage.endpoint")
		}
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			return dberrors.ConfigRequired("storage.bucket")
		}
	case StorageDir:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return dberrors.ConfigRequired("storage.path")
		}
	default:
		return dberrors.ValidationFailed("storage.type", "unsupported storage type "+string(c.Storage.Type))
	}
	if c.Compile.Concurrency < 0 {
		return dberrors.ValidationFailed("compile.concurrency", "must not be negative")
	}
	switch c.Trigger.Type {
	case TriggerHTTP:
		if c.Trigger.URL != "" {
			if _, err := url.ParseRequestURI(c.Trigger.URL); err != nil {
				return dberrors.ValidationFailed("trigger.url", err.Error())
			}
		}
	case TriggerNATS:
		if c.Trigger.NATSURL != "" && c.Trigger.Subject == "" {
			return dberrors.ConfigRequired("trigger.subject")
		}
	default:
		return dberrors.ValidationFailed("trigger.type", "unsupported trigger type "+string(c.Trigger.Type))
	}
	switch c.Trigger.Policy {
	case TriggerBestEffort, TriggerFailFast:
	default:
		return dberrors.ValidationFailed("trigger.policy", "must be best_effort or fail_fast")
	}
	return nil
}
