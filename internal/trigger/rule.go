// Package trigger decides whether a proposed-change event starts a check run.
package trigger

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/docgate/internal/config"
)

// Decision is the outcome of evaluating a rule against an event.
type Decision struct {
	Run          bool     `json:"run"`
	Reason       string   `json:"reason"`
	MatchedPaths []string `json:"matched_paths,omitempty"`
}

type pattern struct {
	glob   string
	negate bool
}

// Rule is a compiled trigger configuration.
type Rule struct {
	events   []string
	actions  []string
	patterns []pattern
	onlyNeg  bool
}

// NewRule compiles a trigger configuration. Patterns are assumed valid;
// configuration validation rejects malformed globs.
func NewRule(cfg config.TriggerConfig) *Rule {
	r := &Rule{
		events:  cfg.Events,
		actions: cfg.Actions,
		onlyNeg: true,
	}
	for _, p := range cfg.Paths {
		pt := pattern{glob: p}
		if strings.HasPrefix(p, "!") {
			pt.negate = true
			pt.glob = p[1:]
		} else {
			r.onlyNeg = false
		}
		pt.glob = NormalizePath(pt.glob)
		r.patterns = append(r.patterns, pt)
	}
	return r
}

// Matches evaluates ev against the rule.
func (r *Rule) Matches(ev Event) Decision {
	if len(r.events) > 0 && !slices.Contains(r.events, ev.Kind) && ev.Kind != KindManual {
		return Decision{Reason: fmt.Sprintf("event kind %q not in trigger events", ev.Kind)}
	}
	if ev.Action != "" && len(r.actions) > 0 && !slices.Contains(r.actions, ev.Action) {
		return Decision{Reason: fmt.Sprintf("action %q not in trigger actions", ev.Action)}
	}
	if ev.Force {
		return Decision{Run: true, Reason: "forced"}
	}

	matched := r.MatchPaths(ev.ChangedPaths)
	if len(matched) == 0 {
		return Decision{Reason: fmt.Sprintf("none of %d changed paths match trigger paths", len(ev.ChangedPaths))}
	}
	return Decision{
		Run:          true,
		Reason:       fmt.Sprintf("%d of %d changed paths match", len(matched), len(ev.ChangedPaths)),
		MatchedPaths: matched,
	}
}

// MatchPaths returns the normalised changed paths included by the glob set.
func (r *Rule) MatchPaths(paths []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		np := NormalizePath(p)
		if np == "" {
			continue
		}
		if _, dup := seen[np]; dup {
			continue
		}
		seen[np] = struct{}{}
		if r.includes(np) {
			out = append(out, np)
		}
	}
	return out
}

// includes applies the last-match-wins rule of CI path filters.
func (r *Rule) includes(p string) bool {
	included := r.onlyNeg
	for _, pt := range r.patterns {
		ok, err := doublestar.Match(pt.glob, p)
		if err != nil || !ok {
			continue
		}
		included = !pt.negate
	}
	return included
}

// NormalizePath cleans a repository-relative path, converts it to forward
// slashes and applies Unicode NFC so decomposed file names from some
// filesystems match their composed glob.
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return norm.NFC.String(p)
}
