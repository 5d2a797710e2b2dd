package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kingmotro/pexel-platform/internal/game"
	"github.com/Kingmotro/pexel-platform/internal/network"
)

// PeerLister is the part of the registry the status API reads.
type PeerLister interface {
	Peers() []*network.PeerInfo
}

// Server exposes a read-only view of connected slaves and their games.
type Server struct {
	log   *zap.Logger
	addr  string
	peers PeerLister
	index *game.Index

	srv      *http.Server
	listener net.Listener
}

func NewServer(log *zap.Logger, addr string, peers PeerLister, index *game.Index) *Server {
	s := &Server{log: log.Named("api"), addr: addr, peers: peers, index: index}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/slaves", s.GetSlaves)
	mux.HandleFunc("/api/games", s.GetGames)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) Name() string { return "status-api" }

func (s *Server) GetSlaves(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slaveList := make(map[string]map[string]string)
	for _, p := range s.peers.Peers() {
		slaveList[p.Name()] = p.Attrs()
	}
	s.writeJSON(w, slaveList)
}

func (s *Server) GetGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var games []game.Game
	if minigame := r.URL.Query().Get("minigame"); minigame != "" {
		games = s.index.Joinable(minigame)
	} else {
		games = s.index.Games()
	}
	if games == nil {
		games = []game.Game{}
	}
	s.writeJSON(w, games)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to write response", zap.Error(err))
	}
}

func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.log.Info("API server listening", zap.Stringer("addr", listener.Addr()))

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("API server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
