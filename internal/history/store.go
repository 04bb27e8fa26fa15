package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// sessionSnapshot is the on-disk shape of one session file.
type sessionSnapshot struct {
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
	SessionID   string    `json:"session_id"`
	ConfigID    string    `json:"config_id"`
	TotalTokens int       `json:"total_tokens"`
	Messages    []Message `json:"messages"`
}

// Store persists session ledgers as JSON files, one per session, named
// <YYMMDD>-<config_id>-<session_id>.json. Persistence failures are reported
// and returned as false; the in-memory ledger stays authoritative and the
// next persist call retries naturally.
type Store struct {
	dir    string
	logger *log.Logger
}

// NewStore creates a store rooted at dir, creating the directory if needed.
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory session files are written to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) filename(l *Ledger) string {
	date := time.Now().Format("060102")
	return fmt.Sprintf("%s-%s-%s.json", date, l.ConfigID, l.SessionID)
}

// Persist writes the ledger to its session file. It never raises: on
// failure it logs the cause and returns false, leaving the in-memory state
// untouched.
func (s *Store) Persist(l *Ledger) bool {
	snap := sessionSnapshot{
		Model:       l.Model,
		CreatedAt:   l.CreatedAt,
		SessionID:   l.SessionID,
		ConfigID:    l.ConfigID,
		TotalTokens: l.TotalTokens(),
		Messages:    l.Messages(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode session", "session", l.SessionID, "error", err)
		return false
	}

	path := filepath.Join(s.dir, s.filename(l))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("failed to save session", "path", path, "error", err)
		return false
	}
	return true
}

// Load restores a session into the ledger. The identifier may be a fully
// qualified path to a .json file, an exact session id, or a partial session
// id resolved by substring match against stored filenames. When several
// files match a partial id the first match in directory enumeration order
// wins; ambiguity is not disambiguated further.
func (s *Store) Load(l *Ledger, identifier string) bool {
	path := identifier
	if !strings.HasSuffix(identifier, ".json") {
		found, ok := s.findByID(identifier)
		if !ok {
			s.logger.Warn("no session file matches identifier", "identifier", identifier)
			return false
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to read session file", "path", path, "error", err)
		return false
	}

	var snap sessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Error("failed to decode session file", "path", path, "error", err)
		return false
	}

	l.restore(snap)
	return true
}

func (s *Store) findByID(id string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".json") && strings.Contains(name, id) {
			return filepath.Join(s.dir, name), true
		}
	}
	return "", false
}

// FileInfo describes one stored session file.
type FileInfo struct {
	Path      string
	SessionID string
	ModTime   time.Time
}

// ListRecent returns up to limit session files for the given config id,
// most recently modified first. An empty config id matches every file.
func (s *Store) ListRecent(configID string, limit int) []FileInfo {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("failed to list history directory", "dir", s.dir, "error", err)
		return nil
	}

	var files []FileInfo
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if configID != "" && !strings.Contains(name, configID) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:      filepath.Join(s.dir, name),
			SessionID: sessionIDFromFilename(name),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}

// sessionIDFromFilename extracts the session id from a
// <date>-<config>-<session> filename; filenames that do not follow the
// pattern are returned whole, minus the extension.
func sessionIDFromFilename(name string) string {
	base := strings.TrimSuffix(name, ".json")
	parts := strings.Split(base, "-")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return base
}

// StartNewSession rotates the ledger to a fresh session: the current state,
// if any, is persisted first, then the ledger is reset. The new session id
// is returned.
func (s *Store) StartNewSession(l *Ledger) string {
	if l.Len() > 0 {
		s.Persist(l)
	}
	return l.Reset()
}
