// Package profile manages named model configurations. Profiles live in one
// YAML file; each names an endpoint, credentials, a model, and per-profile
// behavior toggles. A profile is addressed by its map key, its display name,
// or a short alias.
package profile

import (
	"fmt"
	"strconv"
	"strings"
)

// Profile is one named model configuration. The YAML field names follow the
// established config file format, so existing files keep working.
type Profile struct {
	Name           string `yaml:"name"`
	Alias          string `yaml:"alias,omitempty"`
	APIKey         string `yaml:"API_key"`
	APIEndpoint    string `yaml:"API_endpoint"`
	Model          string `yaml:"model"`
	AIName         string `yaml:"AI_name,omitempty"`
	SystemPrompt   string `yaml:"system_prompt,omitempty"`
	WelcomeMessage string `yaml:"welcome_message,omitempty"`

	// MaxTokens accepts plain integers and K-suffixed shorthand ("64K").
	MaxTokens string `yaml:"max_tokens,omitempty"`

	History  bool   `yaml:"history"`
	Summary  bool   `yaml:"summary"`
	Stream   bool   `yaml:"stream"`
	Markdown bool   `yaml:"markdown"`
	Language string `yaml:"language,omitempty"`
}

// rawProfile mirrors Profile with optional booleans, so "absent" and "false"
// can be told apart when applying defaults at load time.
type rawProfile struct {
	Name           string `yaml:"name"`
	Alias          string `yaml:"alias"`
	APIKey         string `yaml:"API_key"`
	APIEndpoint    string `yaml:"API_endpoint"`
	Model          string `yaml:"model"`
	AIName         string `yaml:"AI_name"`
	SystemPrompt   string `yaml:"system_prompt"`
	WelcomeMessage string `yaml:"welcome_message"`
	MaxTokens      string `yaml:"max_tokens"`
	History        *bool  `yaml:"history"`
	Summary        *bool  `yaml:"summary"`
	Stream         *bool  `yaml:"stream"`
	Markdown       *bool  `yaml:"markdown"`
	Language       string `yaml:"language"`
}

func (r rawProfile) normalize() Profile {
	b := func(v *bool, def bool) bool {
		if v == nil {
			return def
		}
		return *v
	}
	return Profile{
		Name:           r.Name,
		Alias:          r.Alias,
		APIKey:         r.APIKey,
		APIEndpoint:    r.APIEndpoint,
		Model:          r.Model,
		AIName:         r.AIName,
		SystemPrompt:   r.SystemPrompt,
		WelcomeMessage: r.WelcomeMessage,
		MaxTokens:      r.MaxTokens,
		History:        b(r.History, true),
		Summary:        b(r.Summary, true),
		Stream:         b(r.Stream, true),
		Markdown:       b(r.Markdown, true),
		Language:       r.Language,
	}
}

// TokenLimit parses the profile's max_tokens shorthand, falling back when it
// is absent or malformed.
func (p Profile) TokenLimit(fallback int) int {
	return ParseTokenLimit(p.MaxTokens, fallback)
}

// ParseTokenLimit parses a token count that may use K-suffix shorthand.
// The suffix means decimal thousands, so "64K" and "64k" are 64000. Plain
// integers pass through. Invalid or non-positive input yields the fallback.
func ParseTokenLimit(s string, fallback int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	mult := 1
	if strings.HasSuffix(strings.ToUpper(s), "K") {
		mult = 1000
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n * mult
}

// Validate reports the first configuration problem, or nil.
func (p Profile) Validate() error {
	if p.APIKey == "" {
		return fmt.Errorf("profile %q has no API key", p.Name)
	}
	if p.APIEndpoint == "" {
		return fmt.Errorf("profile %q has no API endpoint", p.Name)
	}
	if p.Model == "" {
		return fmt.Errorf("profile %q has no model", p.Name)
	}
	return nil
}
