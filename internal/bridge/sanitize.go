package bridge

import "regexp"

// Patterns for material that must never leave the service in an error
// message: key-sized hex strings, connection URLs, and source locations.
var (
	hexSecretPattern = regexp.MustCompile(`(?:0x)?[0-9a-fA-F]{64,}`)
	urlPattern       = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"']+`)
	sourcePattern    = regexp.MustCompile(`(?:[A-Za-z]:)?[\w./\\-]+\.go:\d+`)
)

const redacted = "[redacted]"

// Sanitize rewrites msg so it is safe to return to a caller. Digests and
// rule identifiers are 32 bytes, so the hex rule also covers them; callers
// that need to echo an identifier must do so through a typed field, not the
// error string.
func Sanitize(msg string) string {
	msg = hexSecretPattern.ReplaceAllString(msg, redacted)
	msg = urlPattern.ReplaceAllString(msg, redacted)
	msg = sourcePattern.ReplaceAllString(msg, redacted)
	return msg
}
