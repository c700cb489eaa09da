// Command agentd runs one agent's Coordination Engine: it registers with
// the Registry/Router Service, maintains the duplex connection the engine's
// discussion loop runs over, and exposes a small HTTP surface a human or an
// upstream automation uses to kick off a goal. Command-tree style grounded
// on the teacher's cmd/picoclaw/internal/gateway/command.go, same as
// cmd/routerd.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmesh/mesh/pkg/connmgr"
	"github.com/agentmesh/mesh/pkg/coordengine"
	"github.com/agentmesh/mesh/pkg/llmgateway"
	"github.com/agentmesh/mesh/pkg/llmgateway/anthropicprovider"
	"github.com/agentmesh/mesh/pkg/meshconfig"
	"github.com/agentmesh/mesh/pkg/meshlog"
	"github.com/agentmesh/mesh/pkg/meshtypes"
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
	var listenAddr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "agentd",
		Short: "Run one agent's coordination engine",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if debug {
				meshlog.SetLevel(meshlog.DEBUG)
			}
			return runAgent(configPath, dataDir, listenAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "directory for this agent's sqlite store and contact book")
	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8801", "address the /launch_goal HTTP endpoint binds to")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}

func parseAgentType(s string) meshtypes.AgentType {
	if s == "Thing" || s == "ThingAssistant" {
		return meshtypes.ThingAssistant
	}
	return meshtypes.HumanAssistant
}

func runAgent(configPath, dataDir, listenAddr string) error {
	cfg, err := meshconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Comm.Name == "" {
		return fmt.Errorf("comm.name must be set")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	s, err := store.Open(filepath.Join(dataDir, cfg.Comm.Name+".db"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	embedder := vectordir.NewHTTPEmbedder(cfg.Comm.LLM.BaseURL, cfg.Comm.LLM.APIKey, "text-embedding-3-small")
	contactsDir, err := vectordir.Open(filepath.Join(dataDir, "contacts"), "contact_book_"+meshtypes.SanitizeName(cfg.Comm.Name), embedder)
	if err != nil {
		return fmt.Errorf("opening contact book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionStore, err := coordengine.NewSessionStore(ctx, s)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	provider := anthropicprovider.New(cfg.Comm.LLM.APIKey, cfg.Comm.LLM.BaseURL, cfg.Comm.LLM.Model)
	gateway := llmgateway.New(provider)

	conn, err := connmgr.Dial(ctx, cfg.Comm.RouterURL, cfg.Comm.Name)
	if err != nil {
		return fmt.Errorf("dialing router: %w", err)
	}
	defer conn.Close()

	self := meshtypes.AgentInfo{
		Name: cfg.Comm.Name,
		Desc: cfg.Comm.Desc,
		Type: parseAgentType(cfg.Comm.Type),
	}
	router := coordengine.NewRouterClient(cfg.Comm.RouterURL)
	contacts := coordengine.NewContactBook(contactsDir)

	engine := coordengine.New(self, cfg.Comm, gateway, conn, router, contacts, sessionStore)
	if err := engine.Register(ctx); err != nil {
		return fmt.Errorf("registering with router: %w", err)
	}

	go func() {
		if err := engine.Run(ctx); err != nil {
			meshlog.ErrorCF("agentd", "engine run loop exited", map[string]any{"error": err.Error()})
		}
	}()

	srv := newLaunchServer(listenAddr, engine)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting launch server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	meshlog.InfoCF("agentd", "shutting down agent", map[string]any{"name": cfg.Comm.Name})
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// launchServer exposes the HTTP surface an upstream caller uses to kick off
// (or resume) a goal on this engine, mirroring meshrouter.Server's
// net/http.ServeMux + gorilla-free JSON handler style.
type launchServer struct {
	engine *coordengine.Engine
	http   *http.Server
}

func newLaunchServer(addr string, engine *coordengine.Engine) *launchServer {
	s := &launchServer{engine: engine}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /launch_goal", s.handleLaunchGoal)
	mux.HandleFunc("GET /health_check", s.handleHealthCheck)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // launch_goal blocks until the session concludes
	}
	return s
}

func (s *launchServer) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("starting launch server: %w", err)
	case <-time.After(100 * time.Millisecond):
		meshlog.InfoCF("agentd", "launch server started", map[string]any{"address": s.http.Addr})
		return nil
	}
}

func (s *launchServer) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *launchServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type launchGoalRequest struct {
	Goal                           string         `json:"goal"`
	TeamMemberNames                []string       `json:"team_member_names,omitempty"`
	TeamUpDepth                    *int           `json:"team_up_depth,omitempty"`
	IsCollaborativePlanningEnabled bool           `json:"is_collaborative_planning_enabled,omitempty"`
	CommID                         string         `json:"comm_id,omitempty"`
	ContInput                      string         `json:"cont_input,omitempty"`
	ObsKwargs                      map[string]any `json:"obs_kwargs,omitempty"`
	MaxTurns                       *int           `json:"max_turns,omitempty"`
	SkipNaming                     bool           `json:"skip_naming,omitempty"`
}

type launchGoalResponse struct {
	CommID     string `json:"comm_id"`
	Conclusion string `json:"conclusion"`
}

// handleLaunchGoal blocks for the lifetime of the session, so callers should
// expect a long-held connection; LaunchGoal's own polling interval bounds
// how promptly it returns after the discussion actually concludes.
func (s *launchServer) handleLaunchGoal(w http.ResponseWriter, r *http.Request) {
	var req launchGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding launch_goal request: %w", err))
		return
	}
	if req.Goal == "" && req.CommID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("goal or comm_id must be set"))
		return
	}

	commID, conclusion, err := s.engine.LaunchGoal(r.Context(), coordengine.LaunchGoalOptions{
		Goal:                           req.Goal,
		TeamMemberNames:                req.TeamMemberNames,
		TeamUpDepth:                    req.TeamUpDepth,
		IsCollaborativePlanningEnabled: req.IsCollaborativePlanningEnabled,
		CommID:                         req.CommID,
		ContInput:                      req.ContInput,
		ObsKwargs:                      req.ObsKwargs,
		MaxTurns:                       req.MaxTurns,
		SkipNaming:                     req.SkipNaming,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, launchGoalResponse{CommID: commID, Conclusion: conclusion})
}
