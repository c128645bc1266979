package secret

import (
	"bytes"
	"regexp"
)

// Kind describes the format of an access token, derived from its prefix.
type Kind string

const (
	KindClassicPAT     Kind = "classic personal access token"
	KindFineGrainedPAT Kind = "fine-grained personal access token"
	KindOAuth          Kind = "OAuth token"
	KindInstallation   Kind = "installation token"
	KindLegacy         Kind = "legacy token"
	KindUnknown        Kind = "unknown"
)

var legacyToken = regexp.MustCompile(`^[0-9a-f]{40}$`)

// DetectKind attempts to determine the token kind from its format. It only
// inspects the prefix, so the result is safe to log.
func DetectKind(s *Secret) Kind {
	b := s.Bytes()
	switch {
	case bytes.HasPrefix(b, []byte("ghp_")):
		return KindClassicPAT
	case bytes.HasPrefix(b, []byte("github_pat_")):
		return KindFineGrainedPAT
	case bytes.HasPrefix(b, []byte("gho_")), bytes.HasPrefix(b, []byte("ghu_")):
		return KindOAuth
	case bytes.HasPrefix(b, []byte("ghs_")):
		return KindInstallation
	case legacyToken.Match(b):
		return KindLegacy
	default:
		return KindUnknown
	}
}
