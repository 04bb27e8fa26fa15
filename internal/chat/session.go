// Package chat drives the interactive conversation loop. A Session owns one
// ledger, dispatches each user turn to the completion model, and runs the
// summarization check after every assistant reply. Turns are strictly
// sequential; one completes through persistence before the next begins.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/octoolhq/octool/internal/history"
	"github.com/octoolhq/octool/internal/i18n"
	"github.com/octoolhq/octool/internal/llm"
	"github.com/octoolhq/octool/internal/profile"
	"github.com/octoolhq/octool/internal/summary"
	"github.com/octoolhq/octool/internal/template"
	"github.com/octoolhq/octool/internal/tokenizer"
)

// ResponseRenderer receives the assistant's reply for display. Delta is
// called once per streamed fragment in arrival order; Complete is called
// exactly once per turn with the full reply text, in both streaming and
// batch mode.
type ResponseRenderer interface {
	Delta(text string)
	Complete(text string)
}

// Options configures a Session.
type Options struct {
	ConfigID   string
	Profile    profile.Profile
	Handler    llm.Handler
	Counter    *tokenizer.Counter
	Store      *history.Store
	Engine     *summary.Engine
	Templates  *template.Processor
	Translator *i18n.Translator
	Renderer   ResponseRenderer
	Logger     *log.Logger

	// TokenBudget is the ledger size at which summarization triggers,
	// scaled by Threshold.
	TokenBudget int
	Threshold   float64
	KeepRecent  int

	// Streaming selects delta mode for completion calls.
	Streaming bool
}

// Session is one interactive conversation. Not safe for concurrent use; the
// driver loop owns it exclusively.
type Session struct {
	opts   Options
	ledger *history.Ledger
	logger *log.Logger
}

// NewSession creates a session for the given profile. When the profile has
// history disabled no ledger is created and every turn is ephemeral.
func NewSession(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = summary.DefaultThresholdRatio
	}
	s := &Session{opts: opts, logger: opts.Logger}
	if opts.Profile.History {
		s.ledger = history.NewLedger(opts.ConfigID, opts.Profile.Model, opts.Counter)
		s.seedSystemPrompt()
	}
	return s
}

// Ledger returns the session's ledger, or nil when history is disabled.
func (s *Session) Ledger() *history.Ledger { return s.ledger }

// Streaming reports whether responses stream.
func (s *Session) Streaming() bool { return s.opts.Streaming }

// SetStreaming toggles delta mode for subsequent turns.
func (s *Session) SetStreaming(on bool) { s.opts.Streaming = on }

// seedSystemPrompt installs the profile's system prompt as the ledger's
// first message. The stored content keeps its template placeholders; they
// are expanded per turn at request-build time so the model always sees the
// current clock.
func (s *Session) seedSystemPrompt() {
	if p := s.opts.Profile.SystemPrompt; p != "" {
		s.ledger.AddMessage(history.RoleSystem, p)
	}
}

// ProcessMessage runs one full turn: append the user message, dispatch,
// append the reply, check summarization, persist. The returned string is the
// full reply text. On a completion failure the user message stays in the
// ledger unanswered and the error is returned; the conversation remains
// usable next turn.
func (s *Session) ProcessMessage(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty message")
	}

	var request []llm.Message
	if s.ledger != nil {
		s.ledger.AddMessage(history.RoleUser, input)
		request = s.requestMessages()
	} else {
		request = s.ephemeralRequest(input)
	}

	reply, err := s.dispatch(ctx, request)
	if err != nil && reply == "" {
		// The unanswered user message stays in history on purpose: failed
		// turns are visible in the transcript.
		s.persist()
		return "", err
	}

	if s.opts.Renderer != nil {
		s.opts.Renderer.Complete(reply)
	}

	if s.ledger != nil {
		s.ledger.AddMessage(history.RoleAssistant, reply)
		s.maybeSummarize(ctx)
		s.persist()
	}

	return reply, err
}

// requestMessages projects the ledger for the API call, expanding template
// variables in system-role content at turn time.
func (s *Session) requestMessages() []llm.Message {
	projected := s.ledger.MessagesForRequest()
	out := make([]llm.Message, len(projected))
	for i, m := range projected {
		content := m.Content
		if m.Role == string(history.RoleSystem) && s.opts.Templates != nil {
			content = s.opts.Templates.Expand(content)
		}
		out[i] = llm.Message{Role: m.Role, Content: content}
	}
	return out
}

// ephemeralRequest builds the history-free two-message request. The system
// prompt is freshly stamped on every turn.
func (s *Session) ephemeralRequest(input string) []llm.Message {
	var out []llm.Message
	if p := s.opts.Profile.SystemPrompt; p != "" {
		if s.opts.Templates != nil {
			p = s.opts.Templates.Expand(s.opts.Templates.EnsureDatetime(p))
		}
		out = append(out, llm.Message{Role: "system", Content: p})
	}
	return append(out, llm.Message{Role: "user", Content: input})
}

func (s *Session) dispatch(ctx context.Context, request []llm.Message) (string, error) {
	req := llm.Request{Model: s.opts.Profile.Model, Messages: request}
	if s.opts.Streaming {
		return s.dispatchStreaming(ctx, req)
	}
	return s.opts.Handler.Complete(ctx, req)
}

// dispatchStreaming accumulates deltas while forwarding each to the
// renderer. Cancellation and mid-stream errors return whatever accumulated
// so far; the partial reply is what the user actually saw and is committed
// to history by the caller.
func (s *Session) dispatchStreaming(ctx context.Context, req llm.Request) (string, error) {
	stream, err := s.opts.Handler.CreateMessage(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return b.String(), nil
			}
			switch c := chunk.(type) {
			case llm.ApiStreamTextChunk:
				b.WriteString(c.Text)
				if s.opts.Renderer != nil {
					s.opts.Renderer.Delta(c.Text)
				}
			case llm.ApiStreamUsageChunk:
				s.logger.Debug("token usage",
					"input", c.InputTokens, "output", c.OutputTokens)
			case llm.ApiStreamErrorChunk:
				return b.String(), c.Err
			}
		}
	}
}

// maybeSummarize runs the threshold check and, when it fires, compresses the
// ledger. Summarization failures are logged and ignored; the conversation
// stays usable.
func (s *Session) maybeSummarize(ctx context.Context) {
	if !s.opts.Profile.Summary || s.opts.Engine == nil || s.opts.TokenBudget <= 0 {
		return
	}
	if !summary.ShouldSummarize(s.ledger.TotalTokens(), s.opts.TokenBudget, s.opts.Threshold) {
		return
	}
	if _, err := s.Summarize(ctx, summary.ReasonTokenThreshold); err != nil {
		s.logger.Warn("automatic summarization failed", "error", err)
	}
}

// Summarize compresses the ledger now, regardless of the threshold. Returns
// the new summary message, or nil when there was nothing to compress.
func (s *Session) Summarize(ctx context.Context, reason string) (*history.Message, error) {
	if s.ledger == nil || s.opts.Engine == nil {
		return nil, errors.New("summarization is not available for this session")
	}
	msg, result, err := s.opts.Engine.Summarize(ctx, s.ledger.Messages(), s.opts.KeepRecent, reason)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	s.ledger.Replace(result)
	return msg, nil
}

// LastSummary returns the most recent summary message, or nil.
func (s *Session) LastSummary() *history.Message {
	if s.ledger == nil {
		return nil
	}
	msgs := s.ledger.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsSummary() {
			m := msgs[i]
			return &m
		}
	}
	return nil
}

// Persist flushes the ledger to storage. Used by the save-on-interrupt path
// as well as the normal end-of-turn flow.
func (s *Session) Persist() bool {
	if s.ledger == nil || s.opts.Store == nil {
		return false
	}
	return s.opts.Store.Persist(s.ledger)
}

func (s *Session) persist() {
	if s.ledger == nil || s.opts.Store == nil || s.ledger.Len() == 0 {
		return
	}
	if !s.opts.Store.Persist(s.ledger) {
		s.logger.Warn("session persist failed; state kept in memory")
	}
}

// Load restores a saved session into the ledger by id substring or path.
func (s *Session) Load(identifier string) bool {
	if s.ledger == nil || s.opts.Store == nil {
		return false
	}
	return s.opts.Store.Load(s.ledger, identifier)
}

// StartNew saves the current conversation and begins a fresh session,
// reseeding the system prompt.
func (s *Session) StartNew() (string, error) {
	if s.ledger == nil {
		return "", errors.New("history is disabled for this session")
	}
	id := s.opts.Store.StartNewSession(s.ledger)
	s.seedSystemPrompt()
	return id, nil
}

// SwitchProfile persists the current conversation and rebinds the session
// to a different profile, handler, and summarizer, starting a fresh ledger.
func (s *Session) SwitchProfile(configID string, p profile.Profile, handler llm.Handler, engine *summary.Engine, budget int) {
	s.persist()
	s.opts.ConfigID = configID
	s.opts.Profile = p
	s.opts.Handler = handler
	s.opts.Engine = engine
	s.opts.Streaming = p.Stream
	if budget > 0 {
		s.opts.TokenBudget = budget
	}
	if p.History {
		s.ledger = history.NewLedger(configID, p.Model, s.opts.Counter)
		s.seedSystemPrompt()
	} else {
		s.ledger = nil
	}
}

// Clear drops the conversation without saving, keeping the session id.
func (s *Session) Clear() {
	if s.ledger == nil {
		return
	}
	s.ledger.Reset()
	s.seedSystemPrompt()
}

// Describe returns a short human-readable description of the session state.
func (s *Session) Describe() string {
	p := s.opts.Profile
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.Name, s.opts.ConfigID)
	fmt.Fprintf(&b, "  model:    %s\n", p.Model)
	fmt.Fprintf(&b, "  endpoint: %s\n", p.APIEndpoint)
	fmt.Fprintf(&b, "  stream:   %v  markdown: %v  history: %v  summary: %v\n",
		s.opts.Streaming, p.Markdown, p.History, p.Summary)
	if s.ledger != nil {
		info := s.ledger.SessionInfo()
		fmt.Fprintf(&b, "  session:  %s (%d messages, %d tokens, budget %d)",
			info.SessionID, s.ledger.Len(), s.ledger.TotalTokens(), s.opts.TokenBudget)
	}
	return b.String()
}
