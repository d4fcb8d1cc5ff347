// Package app wires the integrity service runtime: storage, the match
// registry, the websocket gateway, and the operational surfaces.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	platformcmd "github.com/strikeline/arena/internal/platform/cmd"
	platformgrpc "github.com/strikeline/arena/internal/platform/grpc"
	"github.com/strikeline/arena/internal/services/integrity/api/ws"
	"github.com/strikeline/arena/internal/services/integrity/storage"
	"github.com/strikeline/arena/internal/services/integrity/storage/sqlite"
	"github.com/strikeline/arena/internal/telemetry"
)

// RuntimeConfig controls integrity service startup.
type RuntimeConfig struct {
	HTTPPort int
	GRPCPort int
	DBPath   string
}

const (
	defaultHTTPPort = 8090
	defaultGRPCPort = 8091
	defaultDBPath   = "data/integrity.db"

	shutdownTimeout = 5 * time.Second
)

// Run starts the integrity service and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.GRPCPort <= 0 {
		cfg.GRPCPort = defaultGRPCPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open integrity store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close integrity store: %v", closeErr)
		}
	}()

	emitter := telemetry.NewEmitter(store)
	registry := NewRegistry(store, emitter, log.Default())
	defer registry.Shutdown()

	gateway := ws.NewGateway(registry, log.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.Handle)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/matches", handleCreateMatch(ctx, registry))
	mux.HandleFunc("/verdicts/", handleGetVerdict(store))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("integrity http listening on :%d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("integrity grpc health on :%d", cfg.GRPCPort)
		return platformgrpc.ServeHealth(groupCtx, fmt.Sprintf(":%d", cfg.GRPCPort), platformcmd.ServiceIntegrity)
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// createMatchRequest is the POST /matches payload.
type createMatchRequest struct {
	MatchID string `json:"match_id,omitempty"`
}

type createMatchResponse struct {
	MatchID string `json:"match_id"`
}

func handleCreateMatch(ctx context.Context, registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// The body is optional; an empty or malformed one creates a match
		// with a generated id.
		var req createMatchRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		matchID, err := registry.Create(ctx, req.MatchID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createMatchResponse{MatchID: matchID})
	}
}

func handleGetVerdict(store storage.VerdictStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		matchID := strings.TrimPrefix(r.URL.Path, "/verdicts/")
		if matchID == "" {
			http.Error(w, "match id is required", http.StatusBadRequest)
			return
		}

		v, err := store.GetVerdict(r.Context(), matchID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "verdict not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}
