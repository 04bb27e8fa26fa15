package summary

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/octoolhq/octool/internal/history"
	"github.com/octoolhq/octool/internal/llm"
	"github.com/octoolhq/octool/internal/tokenizer"
)

// fakeCompleter scripts the completion model for engine tests.
type fakeCompleter struct {
	reply    string
	err      error
	requests []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) CreateMessage(ctx context.Context, req llm.Request) (llm.ApiStream, error) {
	ch := make(chan llm.ApiStreamChunk)
	close(ch)
	return ch, nil
}

func newTestEngine(client llm.Handler) *Engine {
	return NewEngine(client, "deepseek-chat", tokenizer.NewCounter(nil), log.New(os.Stderr))
}

func conversation(system int, exchanges int) []history.Message {
	var msgs []history.Message
	seq := 0
	add := func(role history.Role, kind history.Kind, content string) {
		msgs = append(msgs, history.Message{
			ID:        "msg_" + string(rune('0'+seq)),
			Kind:      kind,
			Timestamp: time.Date(2025, 1, 4, 10, 0, seq, 0, time.UTC),
			Role:      role,
			Content:   content,
			Tokens:    len(content)/4 + 1,
		})
		seq++
	}
	for i := 0; i < system; i++ {
		add(history.RoleSystem, history.KindOriginal, "You are a helpful assistant.")
	}
	for i := 0; i < exchanges; i++ {
		role := history.RoleUser
		if i%2 == 1 {
			role = history.RoleAssistant
		}
		add(role, history.KindOriginal, "message content number "+string(rune('0'+i)))
	}
	return msgs
}

func TestShouldSummarize(t *testing.T) {
	tests := []struct {
		total, budget int
		ratio         float64
		want          bool
	}{
		{800, 1000, 0.8, true},  // boundary is inclusive
		{799, 1000, 0.8, false},
		{801, 1000, 0.8, true},
		{0, 1000, 0.8, false},
		{1000, 1000, 0.8, true},
	}
	for _, tt := range tests {
		if got := ShouldSummarize(tt.total, tt.budget, tt.ratio); got != tt.want {
			t.Errorf("ShouldSummarize(%d, %d, %v) = %v, want %v", tt.total, tt.budget, tt.ratio, got, tt.want)
		}
	}
}

func TestEngine_SummarizeOldest(t *testing.T) {
	client := &fakeCompleter{reply: "The user asked about Go and the assistant explained goroutines."}
	e := newTestEngine(client)

	msgs := conversation(1, 5)
	summaryMsg, result, err := e.Summarize(context.Background(), msgs, 3, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if summaryMsg == nil {
		t.Fatal("Summarize() returned nil summary")
	}

	// 1 system + 1 summary + 3 kept = 5 total; exactly the oldest 2 of the
	// 5 non-system messages were compressed.
	if len(result) != 5 {
		t.Fatalf("result has %d messages, want 5", len(result))
	}
	if result[0].Role != history.RoleSystem || result[0].IsSummary() {
		t.Error("result[0] should be the original system message")
	}
	if !result[1].IsSummary() {
		t.Error("result[1] should be the summary message")
	}
	for i, m := range result[2:] {
		if m.ID != msgs[3+i].ID {
			t.Errorf("kept tail[%d] = %q, want %q", i, m.ID, msgs[3+i].ID)
		}
	}

	meta := summaryMsg.SummaryMetadata
	if meta == nil {
		t.Fatal("summary has no metadata")
	}
	if len(meta.SummarizedMessageIDs) != 2 {
		t.Errorf("summarized ids = %v, want the oldest 2", meta.SummarizedMessageIDs)
	}
	if meta.SummarizedMessageIDs[0] != msgs[1].ID || meta.SummarizedMessageIDs[1] != msgs[2].ID {
		t.Errorf("summarized ids = %v, want [%s %s]", meta.SummarizedMessageIDs, msgs[1].ID, msgs[2].ID)
	}
	if meta.TriggerReason != ReasonTokenThreshold {
		t.Errorf("trigger reason = %q", meta.TriggerReason)
	}
	if want := msgs[1].Tokens + msgs[2].Tokens; meta.OriginalTokens != want {
		t.Errorf("original tokens = %d, want %d", meta.OriginalTokens, want)
	}
	if meta.SummarizedTokens != summaryMsg.Tokens {
		t.Error("metadata token count must match the cached message count")
	}
	if !strings.HasPrefix(summaryMsg.Content, Marker) {
		t.Error("summary content must carry the marker prefix")
	}
	if summaryMsg.Role != history.RoleSystem || !summaryMsg.IsSummary() {
		t.Error("summary must be a system-role summary message")
	}
}

func TestEngine_SummarizeRequestShape(t *testing.T) {
	client := &fakeCompleter{reply: "summary text"}
	e := newTestEngine(client)

	if _, _, err := e.Summarize(context.Background(), conversation(1, 5), 3, ReasonTokenThreshold); err != nil {
		t.Fatal(err)
	}
	if len(client.requests) != 1 {
		t.Fatalf("model called %d times, want exactly 1", len(client.requests))
	}

	req := client.requests[0]
	if req.Temperature == nil || *req.Temperature != summaryTemperature {
		t.Errorf("temperature = %v, want low deterministic sampling", req.Temperature)
	}
	if req.MaxTokens != summaryMaxTokens {
		t.Errorf("max tokens = %d, want capped response", req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v, want one user message", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "message content number 0") {
		t.Error("transcript missing oldest message content")
	}
	if strings.Contains(req.Messages[0].Content, "message content number 4") {
		t.Error("transcript must not include kept-tail content")
	}
}

func TestEngine_KeepRecentCoversAllIsNoOp(t *testing.T) {
	client := &fakeCompleter{reply: "should not be called"}
	e := newTestEngine(client)

	msgs := conversation(1, 3)
	summaryMsg, result, err := e.Summarize(context.Background(), msgs, 3, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if summaryMsg != nil {
		t.Error("no-op case must return a nil summary")
	}
	if len(result) != len(msgs) {
		t.Error("no-op case must return messages unchanged")
	}
	if len(client.requests) != 0 {
		t.Error("no-op case must not call the model")
	}
}

func TestEngine_ModelFailureLeavesMessagesUnchanged(t *testing.T) {
	client := &fakeCompleter{err: errors.New("connection refused")}
	e := newTestEngine(client)

	msgs := conversation(1, 5)
	summaryMsg, result, err := e.Summarize(context.Background(), msgs, 3, ReasonTokenThreshold)
	if err == nil {
		t.Fatal("Summarize() should surface the model failure")
	}
	if summaryMsg != nil {
		t.Error("failed summarization must return a nil summary")
	}
	if len(result) != len(msgs) {
		t.Fatalf("result has %d messages, want the input's %d", len(result), len(msgs))
	}
	for i := range msgs {
		if result[i].ID != msgs[i].ID || result[i].Content != msgs[i].Content || result[i].Tokens != msgs[i].Tokens {
			t.Errorf("result[%d] differs from input after failure", i)
		}
	}
}

func TestEngine_EmptyModelOutputIsNoOp(t *testing.T) {
	client := &fakeCompleter{reply: "   \n  "}
	e := newTestEngine(client)

	msgs := conversation(1, 5)
	summaryMsg, result, err := e.Summarize(context.Background(), msgs, 3, ReasonTokenThreshold)
	if err != nil {
		t.Fatalf("empty output is normal control flow, got error: %v", err)
	}
	if summaryMsg != nil || len(result) != len(msgs) {
		t.Error("empty output must leave messages unchanged")
	}
}

func TestEngine_CompressionRatioZeroOriginals(t *testing.T) {
	client := &fakeCompleter{reply: "summary of nothing"}
	e := newTestEngine(client)

	// Two zero-token messages plus an empty keep window.
	msgs := []history.Message{
		{ID: "msg_0", Kind: history.KindOriginal, Role: history.RoleUser, Content: "x", Tokens: 0},
		{ID: "msg_1", Kind: history.KindOriginal, Role: history.RoleAssistant, Content: "y", Tokens: 0},
	}
	summaryMsg, _, err := e.Summarize(context.Background(), msgs, 0, ReasonManual)
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if summaryMsg == nil {
		t.Fatal("expected a summary")
	}
	if summaryMsg.SummaryMetadata.CompressionRatio != 0 {
		t.Errorf("ratio = %v, want 0 when original tokens are 0", summaryMsg.SummaryMetadata.CompressionRatio)
	}
}

func TestEngine_PriorSummaryFoldedIn(t *testing.T) {
	client := &fakeCompleter{reply: "combined summary"}
	e := newTestEngine(client)

	msgs := []history.Message{
		{ID: "msg_0", Kind: history.KindOriginal, Role: history.RoleSystem, Content: "sys", Tokens: 1},
		{ID: "summary_old", Kind: history.KindSummary, Role: history.RoleSystem, Content: Marker + "earlier context", Tokens: 4},
		{ID: "msg_1", Kind: history.KindOriginal, Role: history.RoleUser, Content: "old question", Tokens: 3},
		{ID: "msg_2", Kind: history.KindOriginal, Role: history.RoleAssistant, Content: "recent answer", Tokens: 3},
	}

	summaryMsg, result, err := e.Summarize(context.Background(), msgs, 1, ReasonTokenThreshold)
	if err != nil {
		t.Fatal(err)
	}
	if summaryMsg == nil {
		t.Fatal("expected a summary")
	}
	// The old summary and old question were compressed together.
	if len(summaryMsg.SummaryMetadata.SummarizedMessageIDs) != 2 {
		t.Errorf("summarized ids = %v", summaryMsg.SummaryMetadata.SummarizedMessageIDs)
	}
	transcript := client.requests[0].Messages[0].Content
	if !strings.Contains(transcript, "earlier context") {
		t.Error("prior summary content must survive into the transcript")
	}
	if strings.Contains(transcript, Marker) {
		t.Error("marker must be stripped before re-summarization")
	}
	if len(result) != 3 { // system + new summary + 1 kept
		t.Errorf("result has %d messages, want 3", len(result))
	}
}

func TestStripMarker(t *testing.T) {
	if got := StripMarker(Marker + "the gist"); got != "the gist" {
		t.Errorf("StripMarker() = %q", got)
	}
	if got := StripMarker("no marker here"); got != "no marker here" {
		t.Errorf("StripMarker() without marker = %q", got)
	}
}

func TestCollect(t *testing.T) {
	msgs := []history.Message{
		{ID: "msg_0", Kind: history.KindOriginal, Role: history.RoleSystem, Tokens: 10},
		{ID: "summary_a", Kind: history.KindSummary, Role: history.RoleSystem, Tokens: 20,
			SummaryMetadata: &history.SummaryMetadata{OriginalTokens: 100}},
		{ID: "summary_b", Kind: history.KindSummary, Role: history.RoleSystem, Tokens: 30,
			SummaryMetadata: &history.SummaryMetadata{OriginalTokens: 100}},
		{ID: "msg_1", Kind: history.KindOriginal, Role: history.RoleUser, Tokens: 5},
	}

	s := Collect(msgs)
	if s.SummaryCount != 2 {
		t.Errorf("SummaryCount = %d", s.SummaryCount)
	}
	if s.OriginalMessageCount != 2 {
		t.Errorf("OriginalMessageCount = %d", s.OriginalMessageCount)
	}
	if s.TotalOriginalTokens != 15 || s.TotalSummaryTokens != 50 {
		t.Errorf("token totals = %d/%d", s.TotalOriginalTokens, s.TotalSummaryTokens)
	}
	// Aggregate ratio: 50 summary tokens over 200 recorded original tokens.
	if s.CompressionRatio != 0.25 {
		t.Errorf("CompressionRatio = %v, want 0.25", s.CompressionRatio)
	}
	if s.TotalTokens != 65 {
		t.Errorf("TotalTokens = %v", s.TotalTokens)
	}

	empty := Collect(nil)
	if empty.CompressionRatio != 0 {
		t.Error("empty sequence must report a zero ratio, not divide")
	}
}
