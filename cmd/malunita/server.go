package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
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
	"golang.org/x/sync/errgroup"

	"github.com/Jay-Tejada/malunita/internal/api"
	"github.com/Jay-Tejada/malunita/internal/clarify"
	"github.com/Jay-Tejada/malunita/internal/config"
	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/inference"
	"github.com/Jay-Tejada/malunita/internal/ingest"
	"github.com/Jay-Tejada/malunita/internal/learning"
	"github.com/Jay-Tejada/malunita/internal/pipeline"
	"github.com/Jay-Tejada/malunita/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the malunita server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running malunita server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show malunita system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "malunita.pid")
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

// newChatter picks the model backend from config. The local provider is
// checked for readiness but never blocks startup; the pipeline degrades to
// heuristics while the model is down.
func newChatter(ctx context.Context, cfg config.Config) inference.Chatter {
	if cfg.Inference.Provider == "cloud" {
		slog.Info("using cloud inference", "model", cfg.Inference.CloudModel)
		return inference.NewCloudClient(cfg.Inference.CloudAPIKey)
	}

	client := inference.NewClient(cfg.Inference.BaseURL)
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	switch {
	case !client.IsRunning(checkCtx):
		slog.Warn("local inference server not reachable, captures fall back to heuristics",
			"base_url", cfg.Inference.BaseURL)
	case !client.HasModel(checkCtx, cfg.Inference.Model):
		slog.Warn("model not pulled, captures fall back to heuristics",
			"model", cfg.Inference.Model)
	default:
		slog.Info("local inference ready", "model", cfg.Inference.Model)
	}
	return client
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "malunita version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("malunita is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("malunita is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the capture pipeline.
	chatter := newChatter(ctx, cfg)
	model := cfg.Inference.Model
	if cfg.Inference.Provider == "cloud" {
		model = cfg.Inference.CloudModel
	}
	gateway := inference.NewGateway(chatter, model, time.Duration(cfg.Inference.TimeoutSeconds)*time.Second)

	matcher := heuristic.New(store, heuristic.WithConfidenceThreshold(cfg.Pipeline.ConfidenceThreshold))
	prefsMgr := learning.NewManager(store)
	aggregator := learning.NewAggregator(cfg.Learning.MinSignals, cfg.Learning.HalfLifeDays, cfg.Learning.WindowDays)
	learner := learning.NewService(store, store, aggregator)
	prompter := clarify.New(cfg.Pipeline.MaxQuestions, rand.New(rand.NewSource(time.Now().UnixNano())))
	runner := pipeline.NewRunner(pipeline.Config{
		Matcher:             matcher,
		Gateway:             gateway,
		Store:               store,
		Prefs:               prefsMgr,
		Prompter:            prompter,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		RelevanceThreshold:  cfg.Pipeline.RelevanceThreshold,
		MaxCaptureRunes:     cfg.Pipeline.MaxCaptureRunes,
	})

	// Runs are shared so MCP clients see clarifications from HTTP captures
	// and vice versa.
	runs := api.NewRunCache()

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:      store,
		Runner:     runner,
		Matcher:    matcher,
		Learner:    learner,
		Prefs:      prefsMgr,
		Runs:       runs,
		Token:      apiToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:   store,
		Runner:  runner,
		Learner: learner,
		Prefs:   prefsMgr,
		Runs:    runs,
	})
	sseAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	sseSrv := server.NewSSEServer(mcpSrv)

	worker := ingest.NewWorker(store, runner, learner, prefsMgr, ingest.Options{
		LearnEvery:    time.Duration(cfg.Learning.IntervalMinutes) * time.Minute,
		RetentionDays: 3 * cfg.Learning.WindowDays,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "malunita listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server listening (sse transport)", "addr", sseAddr)
		if err := sseSrv.Start(sseAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp sse server: %w", err)
		}
		return nil
	})

	// MCP stdio transport for editor/agent integrations launched as a child
	// process.
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()

	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("mcp sse shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("malunita is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop malunita (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to malunita (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Inference.Provider == "cloud" {
		printStatus("Inference", "cloud (%s)", cfg.Inference.CloudModel)
	} else {
		infResp, err := client.Get(cfg.Inference.BaseURL + "/api/version")
		if err != nil {
			printStatus("Inference", "local, not running (heuristics only)")
		} else {
			infResp.Body.Close()
			printStatus("Inference", "local at %s (%s)", cfg.Inference.BaseURL, cfg.Inference.Model)
		}
	}

	// Show task counts if server is running.
	apiToken, tokenErr := config.GetAPIToken()
	if tokenErr == nil && resp != nil && resp.StatusCode == 200 {
		tasksResp, err := apiGet(client, serverURL+"/tasks?limit=100", apiToken)
		if err == nil {
			var tasks []struct {
				ID string `json:"ID"`
			}
			if decodeJSON(tasksResp, &tasks) == nil {
				printStatus("Tasks", "%s", countLabel(len(tasks), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
