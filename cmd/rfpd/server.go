package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/rfpd/internal/api"
	"github.com/kalambet/rfpd/internal/config"
	"github.com/kalambet/rfpd/internal/dispatch"
	"github.com/kalambet/rfpd/internal/events"
	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/mailer"
	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/rfp"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/textgen"
	"github.com/kalambet/rfpd/internal/viewcache"
	"github.com/kalambet/rfpd/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the rfpd HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running rfpd server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rfpd system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "rfpd.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// app holds the wired domain services shared by serve and mcp.
type app struct {
	store       *storage.Store
	views       *viewcache.Cache
	publisher   events.Publisher
	mail        *mailer.Client
	creator     *rfp.Creator
	dispatcher  *dispatch.Dispatcher
	extractor   *proposal.Extractor
	recommender *proposal.Recommender
	closers     []func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{publisher: events.Nop{}, views: viewcache.New()}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	gen, err := textgen.New(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating %s text generator: %w", cfg.LLM.Provider, err)
	}

	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		a.publisher = nc
		a.closers = append(a.closers, nc.Close)
		slog.Info("publishing domain events", "url", cfg.Events.NATSURL)
	}

	a.mail = mailer.NewClient(cfg.Mail.APIKey, cfg.Mail.BaseURL)
	a.creator = rfp.NewCreator(gen, store, a.publisher, a.views)
	a.dispatcher = dispatch.NewDispatcher(store, a.mail, cfg.Mail.From, cfg.Mail.ReplyTo,
		dispatch.WithPublisher(a.publisher),
		dispatch.WithViews(a.views),
	)
	a.extractor = proposal.NewExtractor(gen, store, a.publisher, a.views)
	a.recommender = proposal.NewRecommender(gen, store)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing resource: %v\n", err)
		}
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "rfpd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("rfpd is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("rfpd is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	correlator := inbound.NewCorrelator(a.store,
		inbound.WithFetcher(a.mail),
		inbound.WithPublisher(a.publisher),
		inbound.WithViews(a.views),
		inbound.WithAutoParse(cfg.Extraction.AutoParse),
	)
	verifier := inbound.NewVerifier(cfg.Mail.WebhookSecret)
	if !verifier.Enabled() {
		slog.Warn("webhook signature verification disabled")
	}
	if cfg.Server.APIToken == "" {
		slog.Warn("API bearer token not set; /api routes are unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Store:       a.store,
		Creator:     a.creator,
		Dispatcher:  a.dispatcher,
		Parser:      a.extractor,
		Recommender: a.recommender,
		Inbound:     correlator,
		Verifier:    verifier,
		Views:       a.views,
		Token:       cfg.Server.APIToken,
	})

	if cfg.Extraction.AutoParse {
		w := worker.NewWorker(a.store, a.extractor, 500*time.Millisecond)
		go w.Run(ctx)
		slog.Info("automatic proposal extraction enabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("rfpd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// parse_proposal writes; route it through a running server so its view
	// cache sees the new proposal.
	parser := &serverParser{
		client: &apiClient{
			baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
			token:      cfg.Server.APIToken,
			httpClient: &http.Client{Timeout: 2 * time.Minute},
		},
		local: a.extractor,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:       a.store,
		Parser:      parser,
		Recommender: a.recommender,
	}, version)

	slog.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.LoadUnchecked()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("rfpd is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop rfpd (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to rfpd (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.LoadUnchecked()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	ctx := context.Background()

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	model := cfg.LLM.Model
	if model == "" {
		model = "(provider default)"
	}
	printStatus("LLM", "%s %s", cfg.LLM.Provider, model)
	printStatus("Mail from", "%s", cfg.Mail.From)
	printStatus("Webhook signing", "%s", onOff(cfg.Mail.WebhookSecret != ""))
	printStatus("Auto-parse", "%s", onOff(cfg.Extraction.AutoParse))

	if running {
		if counts, err := fetchCounts(ctx, client); err == nil {
			printStatus("Vendors", "%d", counts.vendors)
			printStatus("RFPs", "%s", countsByStatus(counts.rfpsByStatus))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
