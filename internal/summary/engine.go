// Package summary compresses long conversation histories. When a ledger
// approaches its token budget, the engine replaces the oldest non-system
// messages with one synthetic summary message produced by a single
// completion call. Summarization is best effort: every failure path leaves
// the caller's messages exactly as they were.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/octoolhq/octool/internal/history"
	"github.com/octoolhq/octool/internal/llm"
	"github.com/octoolhq/octool/internal/tokenizer"
)

// Marker prefixes every summary message's content so the engine can
// recognize and strip it when displaying summary text standalone.
const Marker = "[Earlier conversation summary] "

// Trigger reasons recorded in summary metadata.
const (
	ReasonTokenThreshold = "token_threshold_reached"
	ReasonManual         = "manual_request"
)

// DefaultThresholdRatio is the fraction of the budget at which
// summarization kicks in.
const DefaultThresholdRatio = 0.8

// Summarization requests favor determinism over creativity: compressing a
// transcript is a factual task.
const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 1000
)

const promptTemplate = `Summarize the following conversation concisely. Preserve key facts, decisions, open questions, and anything the assistant committed to. Write the summary as plain prose, without preamble.

Conversation:
%s`

// ShouldSummarize reports whether totalTokens has reached the threshold
// fraction of the budget. Pure; the boundary is inclusive, so a total of
// exactly budget*ratio qualifies.
func ShouldSummarize(totalTokens, budget int, thresholdRatio float64) bool {
	return float64(totalTokens) >= float64(budget)*thresholdRatio
}

// Engine produces summary messages via a completion model.
type Engine struct {
	client  llm.Handler
	model   string
	counter *tokenizer.Counter
	logger  *log.Logger
}

// NewEngine creates a summarization engine using the given completion
// handler and model.
func NewEngine(client llm.Handler, model string, counter *tokenizer.Counter, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{client: client, model: model, counter: counter, logger: logger}
}

// Summarize compresses the oldest messages, keeping the most recent
// keepRecent non-system messages verbatim. It returns the summary message
// and the resulting full sequence (system messages, then the summary, then
// the retained tail). The caller installs the result; the input slice is
// never modified.
//
// A nil summary with a nil error means there was nothing to compress or the
// model produced no content; a non-nil error means the completion call
// failed. In both cases the returned sequence is the input, unchanged.
func (e *Engine) Summarize(ctx context.Context, messages []history.Message, keepRecent int, reason string) (*history.Message, []history.Message, error) {
	var system, rest []history.Message
	for _, m := range messages {
		if m.Role == history.RoleSystem && !m.IsSummary() {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	// Prior summaries sit in rest: they are eligible for re-summarization
	// once they age out of the keep window.
	if len(rest) <= keepRecent {
		return nil, messages, nil
	}

	toSummarize := rest[:len(rest)-keepRecent]
	toKeep := rest[len(rest)-keepRecent:]

	transcript := renderTranscript(toSummarize)
	if transcript == "" {
		return nil, messages, nil
	}

	content, err := e.client.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(promptTemplate, transcript)},
		},
		MaxTokens:   summaryMaxTokens,
		Temperature: llm.Float(summaryTemperature),
	})
	if err != nil {
		return nil, messages, fmt.Errorf("summary generation failed: %w", err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		e.logger.Warn("summarization produced empty content, skipping")
		return nil, messages, nil
	}

	msg := e.buildSummaryMessage(content, toSummarize, reason)

	result := make([]history.Message, 0, len(system)+1+len(toKeep))
	result = append(result, system...)
	result = append(result, msg)
	result = append(result, toKeep...)

	e.logger.Info("conversation summarized",
		"reason", reason,
		"compressed_messages", len(toSummarize),
		"original_tokens", msg.SummaryMetadata.OriginalTokens,
		"summary_tokens", msg.SummaryMetadata.SummarizedTokens)

	return &msg, result, nil
}

func (e *Engine) buildSummaryMessage(content string, summarized []history.Message, reason string) history.Message {
	originalTokens := 0
	ids := make([]string, len(summarized))
	for i, m := range summarized {
		originalTokens += m.Tokens
		ids[i] = m.ID
	}

	full := Marker + content
	tokens := e.counter.Count(full)

	ratio := 0.0
	if originalTokens > 0 {
		ratio = float64(tokens) / float64(originalTokens)
	}

	now := time.Now()
	return history.Message{
		ID:        fmt.Sprintf("summary_%s", now.Format("20060102_150405")),
		Kind:      history.KindSummary,
		Timestamp: now,
		Role:      history.RoleSystem,
		Content:   full,
		Tokens:    tokens,
		SummaryMetadata: &history.SummaryMetadata{
			TriggerReason:        reason,
			OriginalTokens:       originalTokens,
			SummarizedTokens:     tokens,
			SummarizedMessageIDs: ids,
			SummaryModel:         e.model,
			CompressionRatio:     ratio,
		},
	}
}

// renderTranscript formats messages as a role-labeled, timestamp-prefixed
// transcript in chronological order. Prior summaries that aged out of the
// keep window are folded in with their marker stripped, so earlier context
// survives re-summarization.
func renderTranscript(messages []history.Message) string {
	var b strings.Builder
	for _, m := range messages {
		label := roleLabel(m.Role)
		content := m.Content
		if m.IsSummary() {
			label = "Earlier summary"
			content = StripMarker(content)
		}
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, "[%s] %s: %s\n\n", m.Timestamp.Format("2006-01-02 15:04:05"), label, content)
		} else {
			fmt.Fprintf(&b, "%s: %s\n\n", label, content)
		}
	}
	return strings.TrimSpace(b.String())
}

func roleLabel(role history.Role) string {
	switch role {
	case history.RoleSystem:
		return "System"
	case history.RoleUser:
		return "User"
	case history.RoleAssistant:
		return "Assistant"
	default:
		return string(role)
	}
}

// StripMarker removes the summary marker from content for standalone
// display.
func StripMarker(content string) string {
	return strings.TrimSpace(strings.TrimPrefix(content, Marker))
}

// Stats is a read-only reporting view over a message sequence. Its
// CompressionRatio aggregates across every summary present, distinct from
// the per-call ratio stored in each summary's metadata.
type Stats struct {
	SummaryCount         int
	OriginalMessageCount int
	TotalOriginalTokens  int
	TotalSummaryTokens   int
	CompressionRatio     float64
	TotalTokens          int
}

// Collect computes summary statistics for a message sequence.
func Collect(messages []history.Message) Stats {
	var s Stats
	recordedOriginal := 0
	for _, m := range messages {
		if m.IsSummary() {
			s.SummaryCount++
			s.TotalSummaryTokens += m.Tokens
			if m.SummaryMetadata != nil {
				recordedOriginal += m.SummaryMetadata.OriginalTokens
			}
		} else {
			s.OriginalMessageCount++
			s.TotalOriginalTokens += m.Tokens
		}
	}
	if recordedOriginal > 0 {
		s.CompressionRatio = float64(s.TotalSummaryTokens) / float64(recordedOriginal)
	}
	s.TotalTokens = s.TotalOriginalTokens + s.TotalSummaryTokens
	return s
}
