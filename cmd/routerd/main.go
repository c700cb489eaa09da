// Command routerd runs the Registry/Router Service: the central process
// agents register with, discover teammates through, and relay messages
// through. Command-tree style grounded on the teacher's
// cmd/picoclaw/internal/gateway/command.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentmesh/mesh/pkg/meshconfig"
	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshrouter"
	"github.com/agentmesh/mesh/pkg/store"
	"github.com/agentmesh/mesh/pkg/vectordir"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		meshlog.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var dataDir string
	var debug bool

	cmd := &cobra.Command{
		Use:   "routerd",
		Short: "Run the agent mesh registry/router service",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if debug {
				meshlog.SetLevel(meshlog.DEBUG)
			}
			return runRouter(configPath, dataDir)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for the router's sqlite store and vector directory")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}

func runRouter(configPath, dataDir string) error {
	cfg, err := meshconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	s, err := store.Open(filepath.Join(dataDir, "router.db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder := vectordir.NewHTTPEmbedder(cfg.Comm.LLM.BaseURL, cfg.Comm.LLM.APIKey, "text-embedding-3-small")
	dir, err := vectordir.Open(filepath.Join(dataDir, "vectors"), "agent_registry", embedder)
	if err != nil {
		return fmt.Errorf("opening vector directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := meshrouter.NewRegistry(ctx, s, dir)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}
	sessions, err := meshrouter.NewSessionStore(ctx, s)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
	srv := meshrouter.NewServer(addr, registry, sessions)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting router: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	meshlog.Info("shutting down router")
	return srv.Stop(context.Background())
}
