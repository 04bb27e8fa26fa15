package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/octoolhq/octool/internal/chat"
	"github.com/octoolhq/octool/internal/config"
	"github.com/octoolhq/octool/internal/history"
	"github.com/octoolhq/octool/internal/i18n"
	"github.com/octoolhq/octool/internal/markdown"
	"github.com/octoolhq/octool/internal/profile"
	"github.com/octoolhq/octool/internal/spinner"
	"github.com/octoolhq/octool/internal/summary"
	"github.com/octoolhq/octool/internal/template"
	"github.com/octoolhq/octool/internal/tokenizer"
)

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)

// spinnerRenderer stops the progress spinner as soon as output starts, then
// forwards to the real renderer.
type spinnerRenderer struct {
	inner *chat.ConsoleRenderer
	spin  *spinner.Spinner
}

func (r *spinnerRenderer) Delta(text string) {
	r.spin.Stop()
	r.inner.Delta(text)
}

func (r *spinnerRenderer) Complete(text string) {
	r.spin.Stop()
	r.inner.Complete(text)
}

func runInteractive(cfg *config.Config, configID string, prof profile.Profile, manager *profile.Manager, tr *i18n.Translator) error {
	counter := tokenizer.NewCounter(nil)

	store, err := history.NewStore(cfg.History.Directory, logger)
	if err != nil {
		return err
	}

	handler := newHandler(prof)
	engine := summary.NewEngine(handler, prof.Model, counter, logger)

	var md *markdown.Renderer
	if prof.Markdown {
		if md, err = markdown.NewRenderer(nil); err != nil {
			logger.Warn("markdown renderer unavailable", "error", err)
		}
	}

	spin := spinner.New(os.Stderr)
	console := &chat.ConsoleRenderer{Out: os.Stdout, Markdown: md, Streaming: prof.Stream}

	session := chat.NewSession(chat.Options{
		ConfigID:    configID,
		Profile:     prof,
		Handler:     handler,
		Counter:     counter,
		Store:       store,
		Engine:      engine,
		Templates:   template.NewProcessor(),
		Translator:  tr,
		Renderer:    &spinnerRenderer{inner: console, spin: spin},
		Logger:      logger,
		TokenBudget: prof.TokenLimit(cfg.DefaultMaxTokens),
		Threshold:   cfg.Summary.Threshold,
		KeepRecent:  cfg.Summary.KeepRecent,
		Streaming:   prof.Stream,
	})

	commands := chat.NewCommands(session, os.Stdout, prof.Markdown)
	commands.Profiles = manager
	commands.OnProfileSwitch = func(id string, p profile.Profile) {
		h := newHandler(p)
		e := summary.NewEngine(h, p.Model, counter, logger)
		session.SwitchProfile(id, p, h, e, p.TokenLimit(cfg.DefaultMaxTokens))
		console.Streaming = p.Stream
	}
	commands.OnStreamToggle = func(enabled bool) {
		console.Streaming = enabled
	}
	commands.OnMarkdownToggle = func(enabled bool) {
		console.Markdown = nil
		if enabled {
			if r, rerr := markdown.NewRenderer(nil); rerr == nil {
				console.Markdown = r
			}
		}
	}

	// SIGTERM flushes in-memory state before the process dies. Ctrl+C is
	// handled per turn so it only interrupts the in-flight response.
	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM)
	go func() {
		<-term
		fmt.Fprintln(os.Stderr, tr.T("app.interrupted"))
		session.Persist()
		os.Exit(0)
	}()

	fmt.Println(tr.T("config.loaded", prof.Name, configID))
	if prof.WelcomeMessage != "" {
		fmt.Println(prof.WelcomeMessage)
	} else {
		fmt.Println(tr.T("app.welcome"))
	}

	prompt := promptStyle.Render(tr.T("chat.prompt") + "> ")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			session.Persist()
			fmt.Println()
			fmt.Println(tr.T("app.goodbye"))
			return scanner.Err()
		}
		input := scanner.Text()
		if input == "" {
			continue
		}

		switch commands.Dispatch(context.Background(), input) {
		case chat.Quit:
			return nil
		case chat.Handled:
			continue
		}

		if err := runTurn(session, spin, tr, input); err != nil {
			fmt.Println(tr.T("chat.response_failed", err))
		}
	}
}

// runTurn executes one turn under an interrupt-scoped context. Ctrl+C stops
// the stream; the accumulated partial is already committed by the session.
func runTurn(session *chat.Session, spin *spinner.Spinner, tr *i18n.Translator, input string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spin.Start(tr.T("chat.thinking"))
	_, err := session.ProcessMessage(ctx, input)
	spin.Stop()

	if errors.Is(err, context.Canceled) {
		fmt.Println()
		fmt.Println(tr.T("chat.response_interrupted"))
		return nil
	}
	return err
}
