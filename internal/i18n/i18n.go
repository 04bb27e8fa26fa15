// Package i18n provides user-facing message translation. Locale tables are
// embedded JSON; lookups fall back to en-US for keys a locale has not
// translated yet.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var supported = []language.Tag{
	language.AmericanEnglish,   // en-US, the fallback
	language.SimplifiedChinese, // zh-CN
}

var matcher = language.NewMatcher(supported)

// Translator resolves message keys in one locale.
type Translator struct {
	locale   string
	messages map[string]string
	fallback map[string]string
}

// New creates a translator for the requested locale. An empty locale reads
// LANG/LC_ALL from the environment; an unknown locale falls back to en-US.
func New(locale string) (*Translator, error) {
	if locale == "" {
		locale = envLocale()
	}

	tag, _ := language.MatchStrings(matcher, locale)
	resolved := canonical(tag)

	fallback, err := loadLocale("en-US")
	if err != nil {
		return nil, err
	}
	messages := fallback
	if resolved != "en-US" {
		if m, err := loadLocale(resolved); err == nil {
			messages = m
		} else {
			resolved = "en-US"
		}
	}

	return &Translator{locale: resolved, messages: messages, fallback: fallback}, nil
}

// Locale returns the resolved locale name.
func (t *Translator) Locale() string { return t.locale }

// T resolves key, formatting args into the message if any are given. A key
// missing from every table is returned verbatim, so untranslated strings are
// visible rather than silent.
func (t *Translator) T(key string, args ...any) string {
	msg, ok := t.messages[key]
	if !ok {
		msg, ok = t.fallback[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

func loadLocale(name string) (map[string]string, error) {
	data, err := localeFS.ReadFile("locales/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("locale %s not available: %w", name, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("locale %s is malformed: %w", name, err)
	}
	return m, nil
}

func canonical(tag language.Tag) string {
	base, _ := tag.Base()
	if base.String() == "zh" {
		return "zh-CN"
	}
	return "en-US"
}

func envLocale() string {
	for _, v := range []string{"LC_ALL", "LANG"} {
		if val := os.Getenv(v); val != "" {
			// "zh_CN.UTF-8" style values
			val = strings.SplitN(val, ".", 2)[0]
			return strings.ReplaceAll(val, "_", "-")
		}
	}
	return "en-US"
}
