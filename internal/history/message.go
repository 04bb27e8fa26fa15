package history

import (
	"time"
)

// Kind distinguishes ordinary conversation messages from synthetic summary
// messages produced by compaction.
type Kind string

const (
	KindOriginal Kind = "original"
	KindSummary  Kind = "summary"
)

// Role is the conversation role of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SummaryMetadata records how a summary message came to be. It is the only
// surviving reference to the messages the summary replaced.
type SummaryMetadata struct {
	TriggerReason        string   `json:"trigger_reason"`
	OriginalTokens       int      `json:"original_tokens"`
	SummarizedTokens     int      `json:"summarized_tokens"`
	SummarizedMessageIDs []string `json:"summarized_message_ids"`
	SummaryModel         string   `json:"summary_model"`
	CompressionRatio     float64  `json:"compression_ratio"`
}

// Message is one entry in a conversation ledger. Messages are immutable once
// created; compaction removes and replaces whole messages, it never edits
// them in place. Tokens is computed once at creation via the tokenizer
// adapter and cached here.
type Message struct {
	ID              string           `json:"id"`
	Kind            Kind             `json:"type"`
	Timestamp       time.Time        `json:"timestamp"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	Tokens          int              `json:"tokens"`
	SummaryMetadata *SummaryMetadata `json:"summary_metadata,omitempty"`
}

// IsSummary reports whether the message is a synthetic summary record.
func (m Message) IsSummary() bool {
	return m.Kind == KindSummary
}

// RequestMessage is the minimal projection of a message for a completion API
// call: role and content, nothing else.
type RequestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
