// Package git clones LaTeX source repositories into a local working
// directory using go-git. Clone failures are returned as classified
// errors so callers can tell permanent problems (auth, missing repo or
// branch) from transient network failures worth retrying.
package git
