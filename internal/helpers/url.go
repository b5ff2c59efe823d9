package helpers

import (
	"net/url"
	"strings"
)

// maxNameLen bounds generated file names; captured URLs can be arbitrarily long.
const maxNameLen = 120

// CanonicalURL normalises a URL for file naming: lowercased scheme and host,
// query and fragment stripped, path defaulting to "/". Unparseable input is
// returned as-is so a capture is never lost to a malformed source URL.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "page"
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	parsed.User = nil
	return parsed.String()
}

// SafeFileName flattens a canonical URL into a filesystem-safe base name:
// URL punctuation becomes underscores, anything outside [alnum ._-] is
// dropped, and the result is truncated.
func SafeFileName(name string) string {
	if strings.TrimSpace(name) == "" {
		name = "page"
	}
	r := strings.NewReplacer("://", "_", "/", "_", "?", "_", "#", "_", "&", "_", "=", "_")
	name = r.Replace(name)

	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
		case ch == '.' || ch == '_' || ch == '-':
			b.WriteRune(ch)
		}
	}
	out := b.String()
	if out == "" {
		out = "page"
	}
	if len(out) > maxNameLen {
		out = out[:maxNameLen]
	}
	return out
}
