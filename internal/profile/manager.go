package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// configFile is the on-disk shape of the profile store.
type configFile struct {
	DefaultConfig string                `yaml:"default_config"`
	Profiles      map[string]rawProfile `yaml:"profiles"`
}

// Manager loads, resolves, and persists profiles.
type Manager struct {
	path      string
	defaultID string
	profiles  map[string]Profile
	logger    *log.Logger
}

// NewManager loads the profile file at path. A missing file yields an empty
// manager; the file is created on first save.
func NewManager(path string, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		path:     path,
		profiles: make(map[string]Profile),
		logger:   logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse profile file %s: %w", path, err)
	}

	for id, raw := range cf.Profiles {
		p := raw.normalize()
		if p.Name == "" {
			p.Name = id
		}
		m.profiles[id] = p
	}
	m.defaultID = cf.DefaultConfig
	if m.defaultID == "" && len(m.profiles) > 0 {
		m.defaultID = m.IDs()[0]
	}
	return m, nil
}

// IDs returns all profile ids, sorted.
func (m *Manager) IDs() []string {
	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns all profiles keyed by id.
func (m *Manager) List() map[string]Profile {
	out := make(map[string]Profile, len(m.profiles))
	for id, p := range m.profiles {
		out[id] = p
	}
	return out
}

// Get returns the profile with the exact id.
func (m *Manager) Get(id string) (Profile, bool) {
	p, ok := m.profiles[id]
	return p, ok
}

// Resolve finds a profile by id, then by name, then by alias. The identifier
// users type on the command line goes through here.
func (m *Manager) Resolve(identifier string) (string, Profile, error) {
	if p, ok := m.profiles[identifier]; ok {
		return identifier, p, nil
	}
	for _, id := range m.IDs() {
		if m.profiles[id].Name == identifier {
			return id, m.profiles[id], nil
		}
	}
	for _, id := range m.IDs() {
		if a := m.profiles[id].Alias; a != "" && a == identifier {
			return id, m.profiles[id], nil
		}
	}
	return "", Profile{}, fmt.Errorf("no profile matches %q", identifier)
}

// Default returns the default profile.
func (m *Manager) Default() (string, Profile, error) {
	if m.defaultID == "" {
		return "", Profile{}, fmt.Errorf("no profiles configured")
	}
	p, ok := m.profiles[m.defaultID]
	if !ok {
		return "", Profile{}, fmt.Errorf("default profile %q does not exist", m.defaultID)
	}
	return m.defaultID, p, nil
}

// DefaultID returns the configured default profile id, which may be empty.
func (m *Manager) DefaultID() string { return m.defaultID }

// SetDefault marks id as the default profile and saves.
func (m *Manager) SetDefault(id string) error {
	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("no profile %q", id)
	}
	m.defaultID = id
	return m.save()
}

// Add stores a new profile under id and saves.
func (m *Manager) Add(id string, p Profile) error {
	if _, ok := m.profiles[id]; ok {
		return fmt.Errorf("profile %q already exists", id)
	}
	m.profiles[id] = p
	if m.defaultID == "" {
		m.defaultID = id
	}
	return m.save()
}

// Update replaces the profile under id and saves.
func (m *Manager) Update(id string, p Profile) error {
	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("no profile %q", id)
	}
	m.profiles[id] = p
	return m.save()
}

// Delete removes the profile under id and saves. Deleting the default
// reassigns it to the first remaining profile.
func (m *Manager) Delete(id string) error {
	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("no profile %q", id)
	}
	delete(m.profiles, id)
	if m.defaultID == id {
		m.defaultID = ""
		if ids := m.IDs(); len(ids) > 0 {
			m.defaultID = ids[0]
		}
	}
	return m.save()
}

func (m *Manager) save() error {
	cf := configFile{
		DefaultConfig: m.defaultID,
		Profiles:      make(map[string]rawProfile, len(m.profiles)),
	}
	for id, p := range m.profiles {
		cf.Profiles[id] = rawProfile{
			Name:           p.Name,
			Alias:          p.Alias,
			APIKey:         p.APIKey,
			APIEndpoint:    p.APIEndpoint,
			Model:          p.Model,
			AIName:         p.AIName,
			SystemPrompt:   p.SystemPrompt,
			WelcomeMessage: p.WelcomeMessage,
			MaxTokens:      p.MaxTokens,
			History:        &p.History,
			Summary:        &p.Summary,
			Stream:         &p.Stream,
			Markdown:       &p.Markdown,
			Language:       p.Language,
		}
	}

	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	m.logger.Debug("profiles saved", "path", m.path, "count", len(m.profiles))
	return nil
}
