package steps

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/runtime"
	"git.home.luguber.info/inful/docgate/internal/trigger"
	"git.home.luguber.info/inful/docgate/internal/workspace"
)

// cacheSave is a dependency cache to persist once the run succeeds.
type cacheSave struct {
	key string
	dir string
}

// State is shared by the steps of one run.
type State struct {
	RunID     string
	Check     config.CheckConfig
	Event     trigger.Event
	Workspace *workspace.Workspace
	// GitAuth authenticates the checkout; nil for public repositories.
	GitAuth *config.AuthConfig

	// HeadSHA is the checked-out commit, set by the checkout step.
	HeadSHA string
	Runtime *runtime.Runtime

	exports map[string]string
	saves   []cacheSave
}

// NewState prepares the shared state for a run.
func NewState(runID string, check config.CheckConfig, ev trigger.Event, ws *workspace.Workspace) *State {
	return &State{
		RunID:     runID,
		Check:     check,
		Event:     ev,
		Workspace: ws,
		HeadSHA:   ev.HeadSHA,
		exports:   make(map[string]string),
	}
}

// Export sets a variable visible to every later step.
func (s *State) Export(key, value string) {
	s.exports[key] = value
}

// PrependPath puts dir in front of the PATH seen by later steps.
func (s *State) PrependPath(dir string) {
	s.exports["PATH"] = dir + string(os.PathListSeparator) + s.searchPath()
}

func (s *State) searchPath() string {
	if p, ok := s.exports["PATH"]; ok {
		return p
	}
	return os.Getenv("PATH")
}

// WorkDir resolves the directory a step runs in.
func (s *State) WorkDir(step config.StepConfig) string {
	rel := step.WorkingDirectory
	if rel == "" {
		rel = s.Check.Environment.WorkingDirectory
	}
	return filepath.Join(s.Workspace.SourceDir(), filepath.FromSlash(rel))
}

// inheritedEnv lists the process variables steps inherit. Everything else in
// the daemon's environment, forge tokens included, stays out of reach of the
// proposed change's build scripts.
var inheritedEnv = []string{
	"PATH", "HOME", "USER", "LOGNAME", "SHELL", "TMPDIR", "TZ", "TERM", "LANG", "LANGUAGE",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "no_proxy",
}

// inherits reports whether the process variable name is passed to steps.
func (s *State) inherits(name string) bool {
	if strings.HasPrefix(name, "LC_") {
		return true
	}
	return slices.Contains(inheritedEnv, name) || slices.Contains(s.Check.Environment.PassEnv, name)
}

// Environ builds a step's environment. Later layers win: allow-listed
// process variables, run metadata, exports from earlier steps, check env,
// step env.
func (s *State) Environ(step config.StepConfig) []string {
	vars := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := vars[k]; !ok {
			order = append(order, k)
		}
		vars[k] = v
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && s.inherits(k) {
			set(k, v)
		}
	}
	set("PWD", s.WorkDir(step))
	set("CI", "true")
	set("DOCGATE", "true")
	set("DOCGATE_RUN_ID", s.RunID)
	set("DOCGATE_CHECK", s.Check.Name)
	set("DOCGATE_CHANGE_REF", s.Event.ChangeRef)
	set("DOCGATE_HEAD_SHA", s.HeadSHA)
	set("DOCGATE_WORKSPACE", s.Workspace.SourceDir())
	for _, layer := range []map[string]string{s.exports, s.Check.Env, step.Env} {
		for k, v := range layer {
			set(k, v)
		}
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+vars[k])
	}
	return env
}
