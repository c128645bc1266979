package urlutils

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// DefaultHost is the git host used when no server URL is configured.
const DefaultHost = "github.com"

// HostFromServerURL extracts the host from a server URL such as
// https://github.example.com. An empty URL yields DefaultHost.
func HostFromServerURL(serverURL string) (string, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return DefaultHost, nil
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	if u.Host == "" || u.User != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, sanitizeURL(serverURL))
	}
	return u.Host, nil
}

// SSHHost returns host without its port, in the form an scp-like git remote
// accepts. Server URLs may carry the port of the web frontend, which says
// nothing about the port ssh listens on.
func SSHHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}

// SourceSSHEndpoint reports the host and port a source is cloned from when it
// is reached over ssh. Port is zero when the reference does not name one.
func SourceSSHEndpoint(source string) (host string, port int, ok bool) {
	ep, err := transport.NewEndpoint(source)
	if err != nil || ep.Host == "" {
		return "", 0, false
	}
	switch ep.Protocol {
	case "ssh", "git+ssh", "ssh+git":
		return strings.Trim(ep.Host, "[]"), ep.Port, true
	}
	return "", 0, false
}

// NormalizeSource validates a clone source and returns it in canonical
// endpoint form. An owner/name shorthand expands to an HTTPS URL on host.
// Credentials embedded in the reference are preserved so that the clone can
// use them; pass the result through Redact before displaying it.
func NormalizeSource(raw, host string) (string, error) {
	ref := strings.TrimSpace(raw)
	switch {
	case ref == "":
		return "", fmt.Errorf("%w: empty reference", ErrInvalidSource)
	case strings.HasPrefix(ref, "-"):
		return "", fmt.Errorf("%w: %q looks like an option", ErrInvalidSource, ref)
	case strings.ContainsAny(ref, "\n\r\x00"):
		return "", fmt.Errorf("%w: reference contains control characters", ErrInvalidSource)
	}

	if isShorthand(ref) {
		if host == "" {
			host = DefaultHost
		}
		ref = fmt.Sprintf("https://%s/%s", host, strings.TrimSuffix(ref, ".git")+".git")
	}

	ep, err := transport.NewEndpoint(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidSource, Redact(ref), err)
	}
	if ep.Protocol == "file" {
		if strings.HasPrefix(ref, "file://") {
			return ep.String(), nil
		}
		// Plain local paths are passed to git as written.
		return ref, nil
	}
	if ep.Host == "" {
		return "", fmt.Errorf("%w: %s has no host", ErrInvalidSource, Redact(ref))
	}
	return ep.String(), nil
}

// isShorthand reports whether ref is an owner/name pair rather than a path or
// URL. Relative paths must be written with a leading ./ to be cloned as local
// directories.
func isShorthand(ref string) bool {
	if strings.Contains(ref, ":") || filepath.IsAbs(ref) || strings.HasPrefix(ref, ".") {
		return false
	}
	m := repoRegex.FindStringSubmatch(strings.TrimSuffix(ref, ".git"))
	return m != nil && m[1] != ""
}

// Redact removes secrets from a URL-like argument for logging and output.
// HTTP(S) URLs lose their userinfo entirely since tokens are commonly passed
// as the username; other schemes keep the username but lose any password.
// Non-URL arguments are returned unchanged.
func Redact(arg string) string {
	if !strings.Contains(arg, "://") {
		return arg
	}
	u, err := url.Parse(arg)
	if err != nil {
		if strings.Contains(arg, "@") {
			return "<unparseable URL>"
		}
		return arg
	}
	if u.User == nil {
		return arg
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		u.User = nil
	default:
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.User(u.User.Username())
		}
	}
	return u.String()
}

// sanitizeURL removes any sensitive information from the URL
func sanitizeURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		u.User = nil
		return u.String()
	}
	return "<unparseable URL>"
}
