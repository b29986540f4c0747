package steps

import (
	"regexp"
)

// warningMatcher recognises diagnostic lines treated as warnings.
type warningMatcher struct {
	patterns []*regexp.Regexp
}

func newWarningMatcher(patterns []string) (*warningMatcher, error) {
	m := &warningMatcher{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *warningMatcher) match(line string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
