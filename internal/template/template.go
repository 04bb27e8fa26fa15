// Package template substitutes {{variable}} placeholders in prompt text.
// System prompts in profiles can reference the current time and date; the
// substitution happens per request, so long-running sessions always see the
// clock at the moment the message is sent.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Processor expands template variables in text. The zero value is not usable;
// construct with NewProcessor.
type Processor struct {
	now func() time.Time
}

// NewProcessor creates a processor using the wall clock.
func NewProcessor() *Processor {
	return &Processor{now: time.Now}
}

// NewProcessorWithClock creates a processor with an injected clock.
func NewProcessorWithClock(now func() time.Time) *Processor {
	return &Processor{now: now}
}

// Expand replaces every known {{variable}} in text. Unknown variables are
// left untouched so literal double braces in prompts survive.
func (p *Processor) Expand(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	vars := p.variables()
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// HasVariables reports whether text contains at least one known variable.
func (p *Processor) HasVariables(text string) bool {
	vars := p.variables()
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if _, ok := vars[m[1]]; ok {
			return true
		}
	}
	return false
}

// EnsureDatetime appends a datetime line to a system prompt that has no time
// variable of its own, so the model always knows the current time.
func (p *Processor) EnsureDatetime(prompt string) string {
	for _, name := range []string{"time", "date", "datetime", "timestamp"} {
		if regexp.MustCompile(`\{\{\s*`+name+`\s*\}\}`).MatchString(prompt) {
			return prompt
		}
	}
	return prompt + fmt.Sprintf("\n\nCurrent datetime: %s", p.now().Format("2006-01-02 15:04:05"))
}

func (p *Processor) variables() map[string]string {
	now := p.now()
	return map[string]string{
		"time":      now.Format("15:04:05"),
		"date":      now.Format("2006-01-02"),
		"datetime":  now.Format("2006-01-02 15:04:05"),
		"timestamp": fmt.Sprintf("%d", now.Unix()),
		"weekday":   now.Weekday().String(),
		"year":      now.Format("2006"),
		"month":     now.Format("01"),
		"day":       now.Format("02"),
	}
}
