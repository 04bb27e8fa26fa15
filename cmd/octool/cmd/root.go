package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/octoolhq/octool/internal/chat"
	"github.com/octoolhq/octool/internal/config"
	"github.com/octoolhq/octool/internal/i18n"
	"github.com/octoolhq/octool/internal/llm"
	"github.com/octoolhq/octool/internal/llm/providers"
	"github.com/octoolhq/octool/internal/profile"
	"github.com/octoolhq/octool/internal/template"
	"github.com/octoolhq/octool/internal/tokenizer"
)

var (
	debug      bool
	configName string
	promptFlag string
	listOnly   bool
	modelFlag  string
	keyFlag    string
	endpoint   string
	language   string
	noMarkdown bool
	noStream   bool

	logFile *os.File // For cleanup
)

var logger = log.Default()

// setupLogging redirects structured log output to a file so it never
// interleaves with the chat transcript. Debug mode keeps stderr.
func setupLogging(cfg *config.Config) error {
	logger.SetLevel(log.InfoLevel)
	if debug {
		logger.SetLevel(log.DebugLevel)
		return nil
	}

	if err := os.MkdirAll(cfg.Data.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.Data.Directory, "octool.log")
	var err error
	logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logger.SetOutput(logFile)
	return nil
}

func cleanupLogging() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "octool [prompt]",
	Short: "Chat with hosted AI models from the terminal",
	Long: `octool is a command-line chat client for OpenAI-compatible APIs.

Usage:
  octool                     # Start interactive chat with the default profile
  octool -c work             # Chat using a named profile
  octool "your question"     # One-shot answer, no history
  echo "question" | octool   # Pipe input

Profiles live in a YAML file and carry the endpoint, credentials, model,
and per-profile behavior (history, summarization, streaming, markdown).
Long conversations are compressed automatically to stay inside the
model's token budget.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     false,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(debug)
		if err != nil {
			return err
		}
		return setupLogging(cfg)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		manager, err := profile.NewManager(cfg.ProfilePath, logger)
		if err != nil {
			return err
		}

		tr, err := i18n.New(pick(language, cfg.Language))
		if err != nil {
			return err
		}

		if listOnly {
			listProfiles(manager, tr)
			return nil
		}

		configID, prof, err := resolveProfile(manager)
		if err != nil {
			return err
		}
		applyOverrides(&prof)
		if err := prof.Validate(); err != nil {
			return err
		}
		if prof.Language != "" && language == "" {
			if ltr, lerr := i18n.New(prof.Language); lerr == nil {
				tr = ltr
			}
		}

		if promptFlag != "" {
			return runDirectPrompt(cfg, configID, prof, promptFlag)
		}
		if len(args) > 0 {
			return runDirectPrompt(cfg, configID, prof, strings.Join(args, " "))
		}
		if hasStdinInput() {
			input, rerr := readAllStdin()
			if rerr != nil {
				return rerr
			}
			return runDirectPrompt(cfg, configID, prof, input)
		}
		return runInteractive(cfg, configID, prof, manager, tr)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug mode")
	rootCmd.Flags().StringVarP(&configName, "config", "c", "", "Profile to use (id, name, or alias)")
	rootCmd.Flags().BoolVarP(&listOnly, "list", "l", false, "List available profiles and exit")
	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "One-shot prompt, print the answer and exit")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Override the profile's model")
	rootCmd.Flags().StringVar(&keyFlag, "key", "", "Override the profile's API key")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "Override the profile's API endpoint")
	rootCmd.Flags().StringVar(&language, "language", "", "Interface language (en-US, zh-CN)")
	rootCmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "Disable markdown rendering")
	rootCmd.Flags().BoolVar(&noStream, "no-stream", false, "Disable streaming output")
}

func Execute() {
	defer cleanupLogging()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolveProfile(manager *profile.Manager) (string, profile.Profile, error) {
	if configName != "" {
		return manager.Resolve(configName)
	}
	return manager.Default()
}

// applyOverrides folds command-line overrides into the resolved profile.
func applyOverrides(p *profile.Profile) {
	if modelFlag != "" {
		p.Model = modelFlag
	}
	if keyFlag != "" {
		p.APIKey = keyFlag
	}
	if endpoint != "" {
		p.APIEndpoint = endpoint
	}
	if noMarkdown {
		p.Markdown = false
	}
	if noStream {
		p.Stream = false
	}
}

func listProfiles(manager *profile.Manager, tr *i18n.Translator) {
	profiles := manager.List()
	if len(profiles) == 0 {
		fmt.Println(tr.T("history.none"))
		return
	}
	fmt.Println(tr.T("config.list_header"))
	for _, id := range manager.IDs() {
		p := profiles[id]
		marker := ""
		if id == manager.DefaultID() {
			marker = " " + tr.T("config.default_marker")
		}
		alias := ""
		if p.Alias != "" {
			alias = fmt.Sprintf(" (alias: %s)", p.Alias)
		}
		fmt.Printf("  %-16s %s / %s%s%s\n", id, p.Name, p.Model, alias, marker)
	}
}

func newHandler(prof profile.Profile) llm.Handler {
	return providers.NewOpenAIHandler(llm.HandlerOptions{
		APIKey:  prof.APIKey,
		BaseURL: prof.APIEndpoint,
		ModelID: prof.Model,
	})
}

// runDirectPrompt answers one prompt without history or a ledger: plain
// question in, plain answer out, suitable for scripting.
func runDirectPrompt(cfg *config.Config, configID string, prof profile.Profile, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return fmt.Errorf("empty prompt")
	}

	prof.History = false
	prof.Summary = false

	session := chat.NewSession(chat.Options{
		ConfigID:  configID,
		Profile:   prof,
		Handler:   newHandler(prof),
		Counter:   tokenizer.NewCounter(nil),
		Templates: template.NewProcessor(),
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reply, err := session.ProcessMessage(ctx, prompt)
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return nil
}

func hasStdinInput() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func readAllStdin() (string, error) {
	var b strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), scanner.Err()
}
