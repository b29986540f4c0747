package forge

import (
	"sort"
	"sync"

	cfg "git.home.luguber.info/inful/docgate/internal/config"
	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// NewForgeClient creates a new forge client based on the configuration.
func NewForgeClient(config *Config) (Client, error) {
	switch config.Type {
	case cfg.ForgeGitHub:
		return NewGitHubClient(config)
	case cfg.ForgeGitLab:
		return NewGitLabClient(config)
	case cfg.ForgeForgejo:
		return NewForgejoClient(config)
	default:
		return nil, errors.ConfigError(ErrForgeUnsupported.Message()).
			WithContext("type", config.Type).
			Fatal().
			Build()
	}
}

// Manager holds the configured forge clients by name.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
	configs map[string]*Config
}

// NewForgeManager creates an empty manager.
func NewForgeManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
		configs: make(map[string]*Config),
	}
}

// AddForge registers a client under its configured name.
func (m *Manager) AddForge(config *Config, client Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[config.Name] = client
	m.configs[config.Name] = config
}

// GetForge returns the client and configuration registered under name.
func (m *Manager) GetForge(name string) (Client, *Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	if !ok {
		return nil, nil, false
	}
	return c, m.configs[name], true
}

// Names returns the registered forge names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for n := range m.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateForgeManager creates a forge manager with the provided configurations.
func CreateForgeManager(configs []*Config) (*Manager, error) {
	manager := NewForgeManager()

	for _, config := range configs {
		client, err := NewForgeClient(config)
		if err != nil {
			return nil, errors.ForgeError("failed to create forge client").
				WithCause(err).
				WithContext("name", config.Name).
				Build()
		}

		manager.AddForge(config, client)
	}

	return manager, nil
}

// Reload replaces every registered client with ones built from configs. The
// manager is left untouched when any client fails to build.
func (m *Manager) Reload(configs []*Config) error {
	next, err := CreateForgeManager(configs)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = next.clients
	m.configs = next.configs
	return nil
}
