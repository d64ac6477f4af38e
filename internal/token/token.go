// Package token derives and verifies per-signup capability tokens.
//
// A token proves the bearer may edit or delete one specific signup
// without holding a login account. Tokens are derived from the signup id
// and a process-wide secret, so they never need to be stored.
package token

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"strings"
)

// tokenLength is the length of an issued token in characters.
const tokenLength = 13

// legacyTokenLength is the length of an MD5-hex token from pre-migration
// installations.
const legacyTokenLength = 32

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Codec issues and verifies capability tokens. The legacy salt is
// optional; when empty, legacy tokens are rejected outright.
type Codec struct {
	secret     []byte
	legacySalt string
}

// New constructs a Codec from the configured secret and optional legacy salt.
func New(secret, legacySalt string) *Codec {
	return &Codec{secret: []byte(secret), legacySalt: legacySalt}
}

// Issue derives the canonical token for a signup id: HMAC-SHA256 over the
// id, base32-encoded, truncated to 13 lowercase characters.
func (c *Codec) Issue(signupID string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(signupID))
	sum := encoding.EncodeToString(mac.Sum(nil))
	return strings.ToLower(sum[:tokenLength])
}

// Verify reports whether the presented token grants access to the signup.
//
// A 32-character token is checked against the legacy MD5 scheme when a
// legacy salt is configured; legacy tokens are never issued, only
// accepted. Everything else is compared against the canonical token.
// Comparison is constant-time in both branches so a caller cannot learn
// a prefix by timing.
func (c *Codec) Verify(signupID, presented string) bool {
	if len(presented) == legacyTokenLength && c.legacySalt != "" {
		sum := md5.Sum([]byte(signupID + c.legacySalt))
		want := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(want), []byte(presented)) == 1
	}
	want := c.Issue(signupID)
	return subtle.ConstantTimeCompare([]byte(want), []byte(presented)) == 1
}
