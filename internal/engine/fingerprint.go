package engine

import (
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

type fingerprintFields struct {
	RepoURL    string `yaml:"repo_url"`
	TargetFile string `yaml:"target_file"`
	Branch     string `yaml:"branch"`
	Command    string `yaml:"command"`
	Workdir    string `yaml:"workdir"`
}

// Fingerprint returns the structural identity of a compilation request.
// The five fields are serialized as YAML in a fixed order and hashed with
// mdfp, so equal inputs always produce equal fingerprints.
func Fingerprint(repoURL, targetFile, branch, command, workdir string) string {
	out, err := yaml.Marshal(fingerprintFields{
		RepoURL:    repoURL,
		TargetFile: targetFile,
		Branch:     branch,
		Command:    command,
		Workdir:    workdir,
	})
	if err != nil {
		// Plain strings always marshal; keep the identity deterministic regardless.
		out = []byte(strings.Join([]string{repoURL, targetFile, branch, command, workdir}, "\x00"))
	}
	return mdfp.CalculateFingerprintFromParts(strings.TrimSuffix(string(out), "\n"), "")
}
