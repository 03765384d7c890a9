package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagesmith/internal/config"
	"git.home.luguber.info/inful/pagesmith/internal/forge"
	"git.home.luguber.info/inful/pagesmith/internal/generator"
	"git.home.luguber.info/inful/pagesmith/internal/git"
	"git.home.luguber.info/inful/pagesmith/internal/metrics"
	"git.home.luguber.info/inful/pagesmith/internal/notify"
	"git.home.luguber.info/inful/pagesmith/internal/orchestrator"
	"git.home.luguber.info/inful/pagesmith/internal/pages"
	"git.home.luguber.info/inful/pagesmith/internal/retry"
	"git.home.luguber.info/inful/pagesmith/internal/server/httpserver"
	"git.home.luguber.info/inful/pagesmith/internal/task"
	"git.home.luguber.info/inful/pagesmith/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the task intake server"`

	Process struct {
		File string `short:"f" required:"" help:"Task payload JSON file"`
	} `cmd:"" help:"Process a single task payload from a file and exit"`
}

func main() {
	ctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	switch ctx.Command() {
	case "serve":
		if err := runServe(cfg); err != nil {
			slog.Error("Serve failed", "error", err)
			os.Exit(1)
		}
	case "process":
		if err := runProcess(cfg, CLI.Process.File); err != nil {
			slog.Error("Process failed", "error", err)
			os.Exit(1)
		}
	}
}

func setupLogging(cfg *config.Config) {
	level := config.NormalizeLogLevel(cfg.Log.Level).SlogLevel()
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if config.NormalizeLogFormat(cfg.Log.Format) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildPipeline wires the orchestrator and its collaborators from config.
func buildPipeline(cfg *config.Config) (*orchestrator.Orchestrator, *metrics.PrometheusRecorder, error) {
	forgeClient, err := forge.NewClient(cfg.Forge, cfg.GitHubUser, cfg.GitHubToken)
	if err != nil {
		return nil, nil, err
	}
	recorder := metrics.NewPrometheusRecorder(nil)
	policy := retry.FromConfig(cfg.Retry)
	policy.OnRetry = func(op string, _ int) { recorder.IncRetry(op) }

	gen, err := generator.NewClient(cfg.Model, cfg.ModelAPIKey, policy)
	if err != nil {
		return nil, nil, err
	}
	orch := orchestrator.New(orchestrator.Deps{
		Generator:  gen,
		Repos:      git.NewManager(forgeClient, cfg.Git, policy),
		Publisher:  pages.NewPublisher(forgeClient, policy),
		Notifier:   notify.NewNotifier(policy),
		Links:      forgeClient,
		Workspaces: workspace.NewManager(cfg.Git.WorkspaceDir),
		Recorder:   recorder,
	})
	return orch, recorder, nil
}

func runServe(cfg *config.Config) error {
	slog.Info("Starting pagesmith", "addr", cfg.Server.ListenAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	orch, recorder, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg, orch, httpserver.Options{MetricsHandler: recorder.Handler()})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start intake server: %w", err)
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// runProcess handles one payload from disk, bypassing the HTTP intake. Meant
// for local runs and debugging; the shared secret is not checked.
func runProcess(cfg *config.Config, file string) error {
	body, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("cannot read task file: %w", err)
	}
	payload, err := task.ParsePayload(body)
	if err != nil {
		return err
	}
	t, dropped, err := task.FromPayload(payload)
	if err != nil {
		return err
	}
	for _, name := range dropped {
		slog.Warn("dropping undecodable attachment", "attachment", name)
	}

	orch, _, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	state, err := orch.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("task ended in %s: %w", state, err)
	}
	slog.Info("Task finished", "state", string(state))
	return nil
}
