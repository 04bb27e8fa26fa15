package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/octoolhq/octool/internal/profile"
	"github.com/octoolhq/octool/internal/summary"
)

// CommandResult tells the loop what to do after a slash command.
type CommandResult int

const (
	// NotCommand means the input was not a command and should go to the model.
	NotCommand CommandResult = iota
	// Handled means the command ran and the loop continues.
	Handled
	// Quit means the user asked to exit.
	Quit
)

// Commands dispatches slash commands against a session.
type Commands struct {
	Session *Session
	Out     io.Writer

	// OnMarkdownToggle lets the loop rebuild its renderer when the user
	// flips markdown mode.
	OnMarkdownToggle func(enabled bool)
	// OnStreamToggle keeps the renderer's delta mode in step with the
	// session's.
	OnStreamToggle func(enabled bool)

	// Profiles enables /config list and /config switch when set.
	Profiles *profile.Manager
	// OnProfileSwitch rebinds the session to the chosen profile.
	OnProfileSwitch func(configID string, p profile.Profile)

	markdownOn bool
}

// NewCommands creates a dispatcher. markdownOn seeds the /markdown toggle
// with the profile's setting.
func NewCommands(session *Session, out io.Writer, markdownOn bool) *Commands {
	return &Commands{Session: session, Out: out, markdownOn: markdownOn}
}

// Dispatch runs input as a command when it starts with a slash. Every
// command failure prints a message and returns Handled; commands never
// terminate the loop except /exit.
func (c *Commands) Dispatch(ctx context.Context, input string) CommandResult {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return NotCommand
	}

	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]
	t := c.Session.opts.Translator

	switch cmd {
	case "/exit", "/quit":
		c.Session.Persist()
		fmt.Fprintln(c.Out, t.T("app.goodbye"))
		return Quit

	case "/help":
		fmt.Fprintln(c.Out, t.T("commands.help"))

	case "/clear":
		c.Session.Clear()
		fmt.Fprintln(c.Out, t.T("commands.cleared"))

	case "/new":
		if _, err := c.Session.StartNew(); err != nil {
			fmt.Fprintln(c.Out, t.T("history.save_failed"))
		} else {
			fmt.Fprintln(c.Out, t.T("history.new_session"))
		}

	case "/config":
		c.configCmd(args)

	case "/history":
		c.history(args)

	case "/summary":
		c.summarize(ctx)

	case "/last_summary":
		c.lastSummary()

	case "/stream":
		on := toggle(args, !c.Session.Streaming())
		c.Session.SetStreaming(on)
		if c.OnStreamToggle != nil {
			c.OnStreamToggle(on)
		}
		if on {
			fmt.Fprintln(c.Out, t.T("commands.stream_on"))
		} else {
			fmt.Fprintln(c.Out, t.T("commands.stream_off"))
		}

	case "/markdown":
		c.markdownOn = toggle(args, !c.markdownOn)
		if c.OnMarkdownToggle != nil {
			c.OnMarkdownToggle(c.markdownOn)
		}
		if c.markdownOn {
			fmt.Fprintln(c.Out, t.T("commands.markdown_on"))
		} else {
			fmt.Fprintln(c.Out, t.T("commands.markdown_off"))
		}

	default:
		fmt.Fprintln(c.Out, t.T("commands.unknown", cmd))
	}
	return Handled
}

// toggle interprets an optional explicit "on"/"off" argument, defaulting to
// the flipped value.
func toggle(args []string, flipped bool) bool {
	if len(args) == 0 {
		return flipped
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}
	return flipped
}

func (c *Commands) configCmd(args []string) {
	t := c.Session.opts.Translator

	if len(args) == 0 || args[0] == "current" {
		fmt.Fprintln(c.Out, c.Session.Describe())
		return
	}

	switch args[0] {
	case "list":
		if c.Profiles == nil {
			fmt.Fprintln(c.Out, c.Session.Describe())
			return
		}
		fmt.Fprintln(c.Out, t.T("config.list_header"))
		for _, id := range c.Profiles.IDs() {
			p, _ := c.Profiles.Get(id)
			marker := ""
			if id == c.Profiles.DefaultID() {
				marker = " " + t.T("config.default_marker")
			}
			fmt.Fprintf(c.Out, "  %-16s %s / %s%s\n", id, p.Name, p.Model, marker)
		}

	case "switch":
		if len(args) < 2 || c.Profiles == nil || c.OnProfileSwitch == nil {
			fmt.Fprintln(c.Out, t.T("commands.unknown", "/config switch"))
			return
		}
		id, p, err := c.Profiles.Resolve(args[1])
		if err != nil {
			fmt.Fprintln(c.Out, t.T("config.not_found", args[1]))
			return
		}
		c.OnProfileSwitch(id, p)
		fmt.Fprintln(c.Out, t.T("config.loaded", p.Name, id))

	default:
		fmt.Fprintln(c.Out, t.T("commands.unknown", "/config "+args[0]))
	}
}

func (c *Commands) history(args []string) {
	t := c.Session.opts.Translator
	store := c.Session.opts.Store
	if store == nil || c.Session.Ledger() == nil {
		fmt.Fprintln(c.Out, t.T("history.none"))
		return
	}

	if len(args) > 0 {
		id := args[0]
		if !c.Session.Load(id) {
			fmt.Fprintln(c.Out, t.T("history.load_failed", id))
			return
		}
		info := c.Session.Ledger().SessionInfo()
		fmt.Fprintln(c.Out, t.T("history.loaded", info.SessionID, info.MessageCount))
		return
	}

	files := store.ListRecent(c.Session.opts.ConfigID, 0)
	if len(files) == 0 {
		fmt.Fprintln(c.Out, t.T("history.none"))
		return
	}
	for _, f := range files {
		fmt.Fprintf(c.Out, "  %s  %s\n", f.ModTime.Format("2006-01-02 15:04"), f.SessionID)
	}
}

func (c *Commands) summarize(ctx context.Context) {
	t := c.Session.opts.Translator
	fmt.Fprintln(c.Out, t.T("summary.generating"))

	msg, err := c.Session.Summarize(ctx, summary.ReasonManual)
	if err != nil {
		fmt.Fprintln(c.Out, t.T("summary.failed", err))
		return
	}
	if msg == nil {
		fmt.Fprintln(c.Out, t.T("summary.nothing_to_do"))
		return
	}
	meta := msg.SummaryMetadata
	fmt.Fprintln(c.Out, t.T("summary.done",
		len(meta.SummarizedMessageIDs), meta.OriginalTokens, meta.SummarizedTokens))
}

func (c *Commands) lastSummary() {
	t := c.Session.opts.Translator
	msg := c.Session.LastSummary()
	if msg == nil {
		fmt.Fprintln(c.Out, t.T("summary.none"))
		return
	}
	fmt.Fprintln(c.Out, t.T("summary.latest_header"))
	fmt.Fprintln(c.Out, summary.StripMarker(msg.Content))

	stats := summary.Collect(c.Session.Ledger().Messages())
	fmt.Fprintln(c.Out, t.T("summary.stats",
		stats.SummaryCount, stats.TotalTokens, stats.CompressionRatio))
}
