// Package urlutils resolves repository references used by the mirror.
//
// Target repositories are identified by an owner/name pair (RepoIdentifier)
// from which each credential provider derives its own remote URL. Source
// repositories are arbitrary git remotes (HTTPS, SSH, scp-like or local
// paths) and are only validated, normalized and redacted for display.
package urlutils

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepoFormat indicates that a repository reference is not
	// of the form owner/name or name.
	ErrInvalidRepoFormat = errors.New("invalid repository format")

	// ErrInvalidSource indicates that a source reference cannot be cloned.
	ErrInvalidSource = errors.New("invalid source repository")

	// ErrInvalidHost indicates that a server URL does not carry a host.
	ErrInvalidHost = errors.New("invalid server host")

	repoRegex = regexp.MustCompile(`^(?:([a-zA-Z0-9_.-]+)/)?([a-zA-Z0-9_.-]+)$`)
)

// RepoIdentifier is a validated owner/name pair. The zero value is not a
// valid identifier; construct one with ParseRepo.
type RepoIdentifier struct {
	owner string
	name  string
}

// Owner returns the repository owner.
func (r RepoIdentifier) Owner() string { return r.owner }

// Name returns the repository name without any .git suffix.
func (r RepoIdentifier) Name() string { return r.name }

// String returns owner/name.
func (r RepoIdentifier) String() string {
	return r.owner + "/" + r.name
}

// Slug returns owner-name, suitable for naming per-run temporary paths.
func (r RepoIdentifier) Slug() string {
	return r.owner + "-" + r.name
}

// IsZero reports whether r was never parsed.
func (r RepoIdentifier) IsZero() bool {
	return r.owner == "" && r.name == ""
}

// ParseRepo parses raw as owner/name or name, substituting defaultOwner when
// the owner is omitted. A full https://<host>/owner/name URL and a trailing
// .git are also accepted. ParseRepo performs no I/O.
func ParseRepo(raw, defaultOwner string) (RepoIdentifier, error) {
	ref := strings.TrimSpace(raw)
	if strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
			return RepoIdentifier{}, fmt.Errorf("%w: %q", ErrInvalidRepoFormat, sanitizeURL(ref))
		}
		ref = strings.Trim(u.Path, "/")
	}
	ref = strings.TrimSuffix(ref, ".git")

	m := repoRegex.FindStringSubmatch(ref)
	if m == nil {
		return RepoIdentifier{}, fmt.Errorf("%w: %q (expected owner/name or name)", ErrInvalidRepoFormat, raw)
	}

	owner, name := m[1], m[2]
	if owner == "" {
		owner = strings.TrimSpace(defaultOwner)
		if owner == "" {
			return RepoIdentifier{}, fmt.Errorf("%w: %q has no owner and no default owner is known", ErrInvalidRepoFormat, raw)
		}
		if !validComponent(owner) {
			return RepoIdentifier{}, fmt.Errorf("%w: default owner %q", ErrInvalidRepoFormat, owner)
		}
	}
	if isDotPath(owner) || isDotPath(name) {
		return RepoIdentifier{}, fmt.Errorf("%w: %q", ErrInvalidRepoFormat, raw)
	}

	return RepoIdentifier{owner: owner, name: name}, nil
}

func validComponent(s string) bool {
	m := repoRegex.FindStringSubmatch(s)
	return m != nil && m[1] == "" && !isDotPath(s)
}

func isDotPath(s string) bool {
	return s == "." || s == ".."
}
