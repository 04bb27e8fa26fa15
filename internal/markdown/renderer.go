// Package markdown renders model replies as styled terminal output.
package markdown

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// RendererConfig holds configuration for markdown rendering
type RendererConfig struct {
	Width    int
	WordWrap bool
}

// DefaultConfig returns a default renderer configuration
func DefaultConfig() *RendererConfig {
	return &RendererConfig{
		Width:    100,
		WordWrap: true,
	}
}

// Renderer wraps glamour for chat replies.
type Renderer struct {
	glamourRenderer *glamour.TermRenderer
	config          *RendererConfig
}

// NewRenderer creates a new markdown renderer with the given configuration
func NewRenderer(config *RendererConfig) (*Renderer, error) {
	if config == nil {
		config = DefaultConfig()
	}

	glamourRenderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(config.Width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	return &Renderer{
		glamourRenderer: glamourRenderer,
		config:          config,
	}, nil
}

// Render renders markdown content to styled terminal output. Empty input
// renders to empty output; a render failure falls back to the raw text so a
// reply is never lost to a styling problem.
func (r *Renderer) Render(markdown string) string {
	if markdown == "" {
		return ""
	}

	processed := r.preprocessMarkdown(markdown)

	rendered, err := r.glamourRenderer.Render(processed)
	if err != nil {
		return markdown
	}

	return r.postprocessOutput(rendered)
}

// preprocessMarkdown optimizes markdown for chat display
func (r *Renderer) preprocessMarkdown(markdown string) string {
	lines := strings.Split(markdown, "\n")
	var processed []string

	for _, line := range lines {
		// Trim trailing whitespace but preserve code block fences as-is
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			processed = append(processed, line)
		} else if strings.TrimSpace(line) == "" {
			processed = append(processed, "")
		} else {
			processed = append(processed, strings.TrimRight(line, " \t"))
		}
	}

	return strings.Join(processed, "\n")
}

// postprocessOutput collapses runs of blank lines in the rendered output
func (r *Renderer) postprocessOutput(rendered string) string {
	lines := strings.Split(rendered, "\n")
	var result []string
	blankCount := 0

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, line)
			}
		} else {
			blankCount = 0
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
