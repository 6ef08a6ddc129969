package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chatfront/cmd/chatfront/chat"
	"chatfront/internal/api"
	"chatfront/internal/config"
	"chatfront/internal/session"
	"chatfront/internal/state"
	"chatfront/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	serverURL  string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatfront",
	Short: "chatfront - terminal client for streaming chat backends",
	Long: `chatfront is a terminal chat client.

It talks to an HTTP chat backend, streams assistant replies over
server-sent events, and mirrors finished conversations into a local
SQLite history database.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The interactive TUI owns the terminal; zap's stderr output
		// would corrupt it, so the root command gets a nop logger.
		if cmd.CalledAs() == "chatfront" {
			logger = zap.NewNop()
			return nil
		}

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// sessionsCmd groups session management subcommands
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions on the server",
	RunE:  runSessionsList,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new session",
	RunE:  runSessionsNew,
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm [session-id]",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRm,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename [session-id] [title]",
	Short: "Rename a session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSessionsRename,
}

// sendCmd sends a single message and prints the reply
var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message and print the assistant reply",
	Long: `Sends a message to a session and prints the complete reply.
With --session the message goes to that session, otherwise a new
session is created first. Streaming is used when the server supports
it; the reply is printed once it is complete.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

// historyCmd reads the local SQLite mirror
var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Show locally mirrored messages for a session",
	Long: `Reads the local history database without contacting the server.
Without an argument, lists the session ids present in the mirror.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	sendSessionID string
	sendNoStream  bool
	historyLimit  int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.chatfront/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Request timeout for non-streaming calls")

	sendCmd.Flags().StringVarP(&sendSessionID, "session", "s", "", "Target session id")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "Request a plain response instead of a stream")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Maximum number of messages to show")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)

	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration with flag overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if timeout > 0 {
		cfg.Server.Timeout = timeout.String()
	}
	return cfg, nil
}

// buildManager wires the client, the optional history mirror, and the
// session manager. The returned closer releases the history database.
func buildManager(cfg *config.Config) (*session.Manager, func(), error) {
	tokens := api.TokenFunc(cfg.BearerToken)
	client := api.NewClient(cfg.Server.BaseURL, cfg.RequestTimeout(), tokens, logger)

	var history session.HistoryStore
	closer := func() {}
	if cfg.History.Enabled {
		h, err := store.NewHistory(cfg.History.DatabasePath, logger)
		if err != nil {
			// History is best-effort. Run without the mirror.
			logger.Warn("history database unavailable", zap.Error(err))
		} else {
			history = h
			closer = func() { _ = h.Close() }
		}
	}

	mgr := session.NewManager(state.NewStore(), client, history, logger)
	return mgr, closer, nil
}

func runInteractiveChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()
	defer mgr.Store().Close()

	theme := chat.DarkTheme()
	if strings.EqualFold(cfg.UI.Theme, "light") {
		theme = chat.LightTheme()
	}

	model := chat.New(mgr, logger, theme)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface error: %w", err)
	}
	return nil
}

// opContext returns a context cancelled on SIGINT/SIGTERM.
func opContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, cancel := opContext()
	defer cancel()

	if err := mgr.LoadSessions(ctx); err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	snap := mgr.Store().Snapshot()
	if len(snap.Order) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range snap.SessionList() {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-12s  %s  %s\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), title)
	}
	return nil
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, cancel := opContext()
	defer cancel()

	id, err := mgr.CreateSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	fmt.Println(id)
	return nil
}

func runSessionsRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, cancel := opContext()
	defer cancel()

	if err := mgr.LoadSessions(ctx); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	if err := mgr.DeleteSession(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Println("deleted", args[0])
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, cancel := opContext()
	defer cancel()

	if err := mgr.LoadSessions(ctx); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	title := strings.Join(args[1:], " ")
	if err := mgr.RenameSession(ctx, args[0], title); err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, closeHistory, err := buildManager(cfg)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, cancel := opContext()
	defer cancel()

	sessionID := sendSessionID
	if sessionID != "" {
		if err := mgr.LoadSessions(ctx); err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}
	} else {
		logger.Debug("no target session, creating one")
		id, err := mgr.CreateSession(ctx)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		sessionID = id
		fmt.Fprintln(os.Stderr, "session:", id)
	}

	content := strings.Join(args, " ")
	if err := mgr.SendMessage(ctx, content, sessionID, !sendNoStream); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	snap := mgr.Store().Snapshot()
	sess, ok := snap.Get(sessionID)
	if !ok || len(sess.Messages) == 0 {
		return fmt.Errorf("no reply recorded for session %s", sessionID)
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != state.RoleAssistant {
		return fmt.Errorf("no assistant reply in session %s", sessionID)
	}
	fmt.Println(last.Content)
	if lastErr := snap.LastError; lastErr != nil {
		return fmt.Errorf("%s failed: %s", lastErr.Op, lastErr.Message)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history mirror is disabled in config")
	}
	h, err := store.NewHistory(cfg.History.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer h.Close()

	if len(args) == 0 {
		ids, err := h.SessionIDs()
		if err != nil {
			return fmt.Errorf("failed to list history sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("history is empty")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	msgs, err := h.Messages(args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	for _, msg := range msgs {
		fmt.Printf("[%s] %s:\n%s\n\n", msg.CreatedAt.Format("2006-01-02 15:04"), msg.Role, msg.Content)
	}
	return nil
}
