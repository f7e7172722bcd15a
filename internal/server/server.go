package server

import (
	_ "embed"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Hemraj183/LLMChatbot/internal/cache"
	"github.com/Hemraj183/LLMChatbot/internal/chatbot"
	"github.com/Hemraj183/LLMChatbot/internal/config"
)

//go:embed index.html
var indexHTML []byte

const modelCacheTTL = 30 * time.Second

// Server exposes the chat relay over HTTP.
type Server struct {
	config config.Config
	bot    *chatbot.ChatBot
	logger *slog.Logger

	mu     sync.Mutex
	models cache.CachedModels
}

// New creates the HTTP server around a chat bot
func New(cfg config.Config, bot *chatbot.ChatBot, logger *slog.Logger) *Server {
	return &Server{
		config: cfg,
		bot:    bot,
		logger: logger,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	return mux
}

// ListenAndServe blocks serving HTTP on the configured address
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":           "ok",
		"ollama_connected": s.bot.Connected(r.Context()),
	})
}

type chatRequest struct {
	Message   string         `json:"message"`
	Model     string         `json:"model"`
	RoleMode  string         `json:"role_mode"`
	SessionID string         `json:"session_id"`
	Images    []string       `json:"images"`
	Options   map[string]any `json:"options"`
}

// handleChat streams one chat turn as chunked text/plain. Fragments
// are written in arrival order; the trailing __METADATA__ fragment
// carries the turn's performance stats.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = s.config.Ollama.DefaultModel
	}

	sessionID, fragments := s.bot.StreamTurn(r.Context(), chatbot.TurnRequest{
		SessionID: req.SessionID,
		Model:     req.Model,
		RoleMode:  req.RoleMode,
		Message:   req.Message,
		Images:    req.Images,
		Options:   req.Options,
	})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Session-Id", sessionID)

	flusher, _ := w.(http.Flusher)
	for fragment := range fragments {
		if _, err := io.WriteString(w, fragment); err != nil {
			// Client went away; r.Context() cancellation stops the
			// relay, which flushes the partial reply on its own.
			s.logger.Warn("client disconnected mid-stream", "session_id", sessionID)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.bot.Reset(req.SessionID)
	s.writeJSON(w, map[string]any{"status": "reset"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cached := s.models
	s.mu.Unlock()

	if !cached.Fresh(modelCacheTTL) {
		cached = cache.CachedModels{
			Models:    s.bot.Models(r.Context()),
			Timestamp: time.Now(),
		}
		s.mu.Lock()
		s.models = cached
		s.mu.Unlock()
	}

	models := cached.Models
	if models == nil {
		models = []string{}
	}
	s.writeJSON(w, map[string]any{"models": models})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"is_cloud":      s.config.Cloud,
		"default_model": s.config.Ollama.DefaultModel,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
