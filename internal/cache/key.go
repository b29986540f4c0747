// Package cache stores dependency caches keyed by a runtime and the content
// hash of a requirements manifest.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	goruntime "runtime"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Key derives the cache key <os>-<runtime>-<version>-<sha256(manifest)>.
// The key changes if and only if one of its inputs changes.
func Key(runtimeName, runtimeVersion, manifestPath string) (string, error) {
	f, err := os.Open(manifestPath) // #nosec G304 -- manifest path comes from the check configuration
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryCache, "cannot read cache manifest").
			WithContext("path", manifestPath).
			Build()
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WrapError(err, errors.CategoryCache, "cannot hash cache manifest").
			WithContext("path", manifestPath).
			Build()
	}
	return KeyFor(goruntime.GOOS, runtimeName, runtimeVersion, hex.EncodeToString(h.Sum(nil))), nil
}

// KeyFor assembles a key from its parts.
func KeyFor(goos, runtimeName, runtimeVersion, manifestHash string) string {
	return strings.Join([]string{
		sanitize(goos),
		sanitize(runtimeName),
		sanitize(runtimeVersion),
		manifestHash,
	}, "-")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, s)
}
