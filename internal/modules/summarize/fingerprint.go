package summarize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/briefly-app/core/internal/modules/processing/ai"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize is the canonical form content is hashed in: surrounding
// whitespace trimmed and line endings unified to LF. Case and inner
// whitespace are preserved.
func Normalize(content string) string {
	return strings.TrimSpace(lineEndings.Replace(content))
}

// Fingerprint returns the lowercase hex SHA-256 of the normalized content
// and the style, separated by a NUL byte.
func Fingerprint(content, style string) (string, error) {
	normalized := Normalize(content)
	if normalized == "" {
		return "", invalidInput("content is empty")
	}
	resolved, ok := ai.ParseStyle(style)
	if !ok {
		return "", invalidInput("unknown summary type %q", style)
	}

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(resolved))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// scopedFingerprint partitions a fingerprint by requester so per-user caches
// never share entries.
func scopedFingerprint(userID, fp string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + fp))
	return hex.EncodeToString(sum[:])
}
