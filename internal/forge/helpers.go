package forge

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- legacy webhook signatures
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"
	"time"

	cfg "git.home.luguber.info/inful/docgate/internal/config"
)

// newHTTPClient30s returns a shared HTTP client with a 30s timeout.
func newHTTPClient30s() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// withDefaults applies default API/base URLs when empty.
func withDefaults(apiURL, baseURL, defAPI, defBase string) (string, string) {
	if apiURL == "" {
		apiURL = defAPI
	}
	if baseURL == "" {
		baseURL = defBase
	}
	return apiURL, baseURL
}

// tokenFromConfig extracts the token from a forge config. Forges without
// token auth get an anonymous client that can receive webhooks but not
// post statuses on private repositories.
func tokenFromConfig(fg *Config) string {
	if fg != nil && fg.Auth != nil && fg.Auth.Type == cfg.AuthTypeToken {
		return fg.Auth.Token
	}
	return ""
}

// validHMAC compares a hex signature with the HMAC of payload.
func validHMAC(newHash func() hash.Hash, payload []byte, secret, signature string) bool {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(payload)
	calc := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(calc))
}

// validPrefixedSignature accepts "sha256=<hex>" and the legacy "sha1=<hex>".
func validPrefixedSignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	if hexSig, ok := strings.CutPrefix(signature, "sha256="); ok {
		return validHMAC(sha256.New, payload, secret, hexSig)
	}
	if hexSig, ok := strings.CutPrefix(signature, "sha1="); ok {
		return validHMAC(sha1.New, payload, secret, hexSig)
	}
	return false
}

func firstHeader(h http.Header, names []string) string {
	for _, n := range names {
		if v := h.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// EventType returns the webhook event type header for c.
func EventType(c Client, h http.Header) string {
	return firstHeader(h, c.Headers().Event)
}

// Signature returns the webhook signature header for c.
func Signature(c Client, h http.Header) string {
	return firstHeader(h, c.Headers().Signature)
}
