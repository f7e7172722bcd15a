package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Hemraj183/LLMChatbot/internal/config"
	"github.com/Hemraj183/LLMChatbot/internal/ollama"
	"github.com/Hemraj183/LLMChatbot/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Streamer is the minimal subset of the ollama client used by the bot;
// it is easy to mock in tests.
type Streamer interface {
	StreamChat(ctx context.Context, req ollama.ChatRequest, images []string) <-chan ollama.Chunk
	ListModels(ctx context.Context) []string
	CheckConnection(ctx context.Context) bool
}

// ChatBot relays chat turns between browser clients and Ollama,
// multiplexing concurrent conversations through one shared session
// store.
type ChatBot struct {
	config config.Config
	client Streamer
	store  *session.Store
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

// New creates a ChatBot. Tracing and metrics go through the global
// OpenTelemetry providers, so constructing a bot before telemetry is
// initialized simply produces no-op instruments.
func New(cfg config.Config, client Streamer, store *session.Store, logger *slog.Logger) *ChatBot {
	return &ChatBot{
		config: cfg,
		client: client,
		store:  store,
		logger: logger,
		tracer: otel.Tracer("chatbot"),
		meter:  otel.Meter("chatbot"),
	}
}

// TurnRequest is one inbound chat turn.
type TurnRequest struct {
	SessionID string
	Model     string
	RoleMode  string
	Message   string
	Images    []string
	Options   map[string]any
}

// StreamTurn runs one chat turn: it resolves the session, appends the
// user message, replays the recent history to Ollama with the
// role-mode instruction prepended, and relays decoded fragments to the
// returned channel in arrival order. The accumulated assistant reply
// is committed to the session only after the stream ends; if the
// caller cancels mid-stream, whatever text already arrived is flushed
// as the assistant message best-effort. A torn message is never
// persisted.
func (cb *ChatBot) StreamTurn(ctx context.Context, req TurnRequest) (string, <-chan string) {
	sessionID, _ := cb.store.GetOrCreate(req.SessionID)

	if err := cb.store.Append(sessionID, session.Message{
		Role:      session.RoleUser,
		Content:   req.Message,
		Images:    req.Images,
		Timestamp: time.Now(),
	}); err != nil {
		cb.logger.Error("failed to record user message", "session_id", sessionID, "error", err)
	}

	history := cb.store.Recent(sessionID, cb.config.ContextWindow)
	messages := make([]ollama.ChatMessage, 0, len(history)+1)
	messages = append(messages, ollama.ChatMessage{
		Role:    session.RoleSystem,
		Content: systemPrompt(req.RoleMode),
	})
	for _, msg := range history {
		messages = append(messages, ollama.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	out := make(chan string, 1)
	go cb.relay(ctx, sessionID, req, messages, out)
	return sessionID, out
}

func (cb *ChatBot) relay(ctx context.Context, sessionID string, req TurnRequest, messages []ollama.ChatMessage, out chan<- string) {
	defer close(out)

	ctx, span := cb.tracer.Start(ctx, "chat_turn")
	defer span.End()
	start := time.Now()

	chunks := cb.client.StreamChat(ctx, ollama.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  req.Options,
	}, req.Images)

	var reply strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil && ctx.Err() != nil {
			// Caller is gone; the terminal error only reflects the
			// cancellation.
			break
		}

		text := chunk.Content
		if chunk.Err != nil {
			cb.logger.Error("upstream stream failed", "session_id", sessionID, "error", chunk.Err)
			text = userFacingError(chunk.Err)
		}
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, ollama.MetadataMarker) {
			cb.recordEvalStats(ctx, text)
		} else {
			reply.WriteString(text)
		}

		select {
		case out <- text:
		case <-ctx.Done():
			cb.logger.Warn("caller disconnected mid-stream", "session_id", sessionID)
			cb.commit(sessionID, reply.String())
			return
		}
	}

	cb.recordTurnDuration(ctx, time.Since(start))
	cb.commit(sessionID, reply.String())
}

// commit appends the accumulated reply as one whole assistant message.
// Error fragments are persisted like any other content; the relay does
// not distinguish a failed stream from a successful one.
func (cb *ChatBot) commit(sessionID, reply string) {
	if reply == "" {
		return
	}
	if err := cb.store.Append(sessionID, session.Message{
		Role:      session.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	}); err != nil {
		cb.logger.Error("failed to record assistant reply", "session_id", sessionID, "error", err)
	}
}

// userFacingError reduces an upstream failure to the single text
// fragment shown in the chat stream. Failures flow through the normal
// content channel so the browser only ever renders one stream.
func userFacingError(err error) string {
	var streamErr *ollama.StreamError
	if !errors.As(err, &streamErr) {
		return "Error: " + err.Error()
	}
	switch streamErr.Kind {
	case ollama.KindUnreachable:
		return "Error: Could not connect to Ollama. Is it running?"
	case ollama.KindTimeout:
		return "Error: The request to Ollama timed out."
	case ollama.KindUnauthorized:
		return "Error: Ollama rejected the request (401 unauthorized). Check the API token."
	case ollama.KindForbidden:
		return "Error: Ollama rejected the request (403 forbidden)."
	case ollama.KindStatus:
		return fmt.Sprintf("Error: Ollama returned status %d.", streamErr.Status)
	default:
		return "Error: " + streamErr.Err.Error()
	}
}

// Reset clears a session's history. Unknown ids are a no-op.
func (cb *ChatBot) Reset(sessionID string) {
	cb.store.Reset(sessionID)
}

// Models lists the models available upstream.
func (cb *ChatBot) Models(ctx context.Context) []string {
	return cb.client.ListModels(ctx)
}

// Connected reports whether Ollama answers its liveness probe.
func (cb *ChatBot) Connected(ctx context.Context) bool {
	return cb.client.CheckConnection(ctx)
}

func (cb *ChatBot) recordTurnDuration(ctx context.Context, d time.Duration) {
	histogram, err := cb.meter.Float64Histogram(
		"chat.turn.duration",
		metric.WithDescription("Chat turn duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()))
	}
}

func (cb *ChatBot) recordEvalStats(ctx context.Context, fragment string) {
	var md ollama.Metadata
	if err := json.Unmarshal([]byte(strings.TrimPrefix(fragment, ollama.MetadataMarker)), &md); err != nil {
		return
	}

	counter, err := cb.meter.Int64Counter(
		"llm.eval.tokens",
		metric.WithDescription("Tokens generated by the model"),
	)
	if err == nil {
		counter.Add(ctx, md.Tokens)
	}

	histogram, err := cb.meter.Float64Histogram(
		"llm.eval.tokens_per_second",
		metric.WithDescription("Model generation speed"),
	)
	if err == nil {
		histogram.Record(ctx, md.TPS)
	}
}
