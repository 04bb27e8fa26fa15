package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/octoolhq/octool/internal/tokenizer"
)

// ErrNotInLedger reports a Compact call that named a message the ledger does
// not hold. It indicates a caller bug, not an environment failure.
var ErrNotInLedger = errors.New("message not present in ledger")

// Ledger is the ordered record of one conversation session's messages plus
// the cached aggregate token count. It is exclusively owned by the active
// conversation driver: no internal locking, mutations must not be issued
// concurrently.
//
// Invariant: after every mutating operation, TotalTokens equals the exact
// sum of the cached per-message token counts.
type Ledger struct {
	SessionID string
	ConfigID  string
	Model     string
	CreatedAt time.Time

	messages    []Message
	totalTokens int
	nextSeq     int

	counter *tokenizer.Counter
}

// NewLedger creates an empty ledger for a new session.
func NewLedger(configID, model string, counter *tokenizer.Counter) *Ledger {
	return &Ledger{
		SessionID: newSessionID(),
		ConfigID:  configID,
		Model:     model,
		CreatedAt: time.Now(),
		counter:   counter,
	}
}

func newSessionID() string {
	stamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("sess_%s_%s", stamp, uuid.NewString()[:8])
}

// AddMessage appends an original message, computing and caching its token
// count. It returns the new message's id. Ids reflect append order at
// creation time; compaction leaves gaps in the sequence, which is fine
// because ids are opaque references.
func (l *Ledger) AddMessage(role Role, content string) string {
	msg := Message{
		ID:        fmt.Sprintf("msg_%03d", l.nextSeq),
		Kind:      KindOriginal,
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
		Tokens:    l.counter.Count(content),
	}
	l.nextSeq++
	l.messages = append(l.messages, msg)
	l.totalTokens += msg.Tokens
	return msg.ID
}

// Messages returns a copy of the message sequence in conversation order.
func (l *Ledger) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the ledger.
func (l *Ledger) Len() int {
	return len(l.messages)
}

// MessagesForRequest projects the ledger into the role/content pairs a
// completion API call needs, stripping all bookkeeping fields.
func (l *Ledger) MessagesForRequest() []RequestMessage {
	out := make([]RequestMessage, len(l.messages))
	for i, m := range l.messages {
		out[i] = RequestMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// TotalTokens returns the cached aggregate token count. O(1).
func (l *Ledger) TotalTokens() int {
	return l.totalTokens
}

// OverBudget reports whether the ledger has grown past the given token
// limit.
func (l *Ledger) OverBudget(limit int) bool {
	return l.totalTokens > limit
}

// Compact removes exactly the given messages and inserts the replacement
// immediately after the last system message (or at the head if there is
// none). Every member of remove must be present; a missing member returns
// ErrNotInLedger and leaves the ledger untouched. The aggregate is
// re-established by full resummation rather than incremental arithmetic so
// that structural changes cannot accumulate drift.
func (l *Ledger) Compact(remove []Message, insert Message) error {
	doomed := make(map[string]bool, len(remove))
	for _, m := range remove {
		doomed[m.ID] = true
	}
	found := 0
	for _, m := range l.messages {
		if doomed[m.ID] {
			found++
		}
	}
	if found != len(doomed) {
		return fmt.Errorf("compact: %w", ErrNotInLedger)
	}

	kept := make([]Message, 0, len(l.messages)-found+1)
	for _, m := range l.messages {
		if !doomed[m.ID] {
			kept = append(kept, m)
		}
	}

	pos := 0
	for i, m := range kept {
		if m.Role == RoleSystem && !m.IsSummary() {
			pos = i + 1
		}
	}
	kept = append(kept, Message{})
	copy(kept[pos+1:], kept[pos:])
	kept[pos] = insert

	l.messages = kept
	l.resum()
	return nil
}

// Replace installs a new message sequence wholesale, as produced by the
// summarization engine, and resums the aggregate.
func (l *Ledger) Replace(messages []Message) {
	l.messages = make([]Message, len(messages))
	copy(l.messages, messages)
	l.resum()
}

func (l *Ledger) resum() {
	total := 0
	for _, m := range l.messages {
		total += m.Tokens
	}
	l.totalTokens = total
}

// Reset clears the ledger for a fresh session: new session id, empty message
// sequence, zeroed aggregate, refreshed creation time. Callers wanting the
// prior session preserved must persist before resetting; Store.StartNewSession
// does both.
func (l *Ledger) Reset() string {
	l.SessionID = newSessionID()
	l.messages = nil
	l.totalTokens = 0
	l.nextSeq = 0
	l.CreatedAt = time.Now()
	return l.SessionID
}

// restore installs persisted state. The aggregate is recomputed from the
// message sequence rather than trusted from the file, and the id sequence
// resumes past the highest persisted original id.
func (l *Ledger) restore(snap sessionSnapshot) {
	l.Model = snap.Model
	l.CreatedAt = snap.CreatedAt
	l.SessionID = snap.SessionID
	if snap.ConfigID != "" {
		l.ConfigID = snap.ConfigID
	}
	l.messages = snap.Messages
	l.resum()

	l.nextSeq = 0
	for _, m := range l.messages {
		if seq, ok := parseSeq(m.ID); ok && seq >= l.nextSeq {
			l.nextSeq = seq + 1
		}
	}
}

func parseSeq(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "msg_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Info is a read-only snapshot of session-level state for display.
type Info struct {
	SessionID    string
	ConfigID     string
	Model        string
	CreatedAt    time.Time
	MessageCount int
	TotalTokens  int
}

// SessionInfo returns display-oriented session state.
func (l *Ledger) SessionInfo() Info {
	return Info{
		SessionID:    l.SessionID,
		ConfigID:     l.ConfigID,
		Model:        l.Model,
		CreatedAt:    l.CreatedAt,
		MessageCount: len(l.messages),
		TotalTokens:  l.totalTokens,
	}
}
