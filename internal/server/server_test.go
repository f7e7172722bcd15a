package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Hemraj183/LLMChatbot/internal/chatbot"
	"github.com/Hemraj183/LLMChatbot/internal/config"
	"github.com/Hemraj183/LLMChatbot/internal/ollama"
	"github.com/Hemraj183/LLMChatbot/internal/session"

	"github.com/stretchr/testify/require"
)

// fakeOllama is an httptest upstream speaking the Ollama wire protocol.
func fakeOllama(t *testing.T, gotRequests *[]ollama.ChatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/api/tags":
			json.NewEncoder(w).Encode(ollama.TagsResponse{Models: []ollama.Model{
				{Name: "mistral:latest"},
				{Name: "llama3.1:8b"},
			}})
		case "/api/chat":
			var req ollama.ChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if gotRequests != nil {
				*gotRequests = append(*gotRequests, req)
			}
			flusher := w.(http.Flusher)
			for _, text := range []string{"Hel", "lo", " there"} {
				fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q}}`+"\n", text)
				flusher.Flush()
			}
			fmt.Fprintln(w, `{"done":true,"eval_count":100,"eval_duration":2000000000}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{ContextWindow: 20}
	cfg.Ollama.Host = upstreamURL
	cfg.Ollama.DefaultModel = "llama3.1:8b"

	client := ollama.NewClient(upstreamURL, "", logger)
	store := session.NewStore(logger)
	bot := chatbot.New(cfg, client, store, logger)
	return New(cfg, bot, logger)
}

func TestHandleChat_StreamsAndTracksSession(t *testing.T) {
	var upstreamReqs []ollama.ChatRequest
	upstream := fakeOllama(t, &upstreamReqs)
	defer upstream.Close()

	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message":"greet me","model":"llama3.1:8b"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	sessionID := resp.Header.Get("X-Session-Id")
	require.NotEmpty(t, sessionID)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text, metadata, found := strings.Cut(string(body), ollama.MetadataMarker)
	require.Equal(t, "Hello there", text)
	require.True(t, found)

	var md ollama.Metadata
	require.NoError(t, json.Unmarshal([]byte(metadata), &md))
	require.Equal(t, int64(100), md.Tokens)
	require.Equal(t, 50.0, md.TPS)

	// Second turn on the same session replays the accumulated history.
	resp2, err := http.Post(srv.URL+"/api/chat", "application/json",
		strings.NewReader(fmt.Sprintf(`{"message":"again","session_id":%q}`, sessionID)))
	require.NoError(t, err)
	io.Copy(io.Discard, resp2.Body)
	resp2.Body.Close()
	require.Equal(t, sessionID, resp2.Header.Get("X-Session-Id"))

	require.Len(t, upstreamReqs, 2)
	// system + (user, assistant, user)
	require.Len(t, upstreamReqs[1].Messages, 4)
	require.Equal(t, "system", upstreamReqs[1].Messages[0].Role)
	require.Equal(t, "Hello there", upstreamReqs[1].Messages[2].Content)
}

func TestHandleChat_BadRequests(t *testing.T) {
	upstream := fakeOllama(t, nil)
	defer upstream.Close()
	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"model":"m"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	upstream := fakeOllama(t, nil)
	defer upstream.Close()
	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health struct {
		Status          string `json:"status"`
		OllamaConnected bool   `json:"ollama_connected"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "ok", health.Status)
	require.True(t, health.OllamaConnected)
}

func TestHandleReset_AlwaysOK(t *testing.T) {
	upstream := fakeOllama(t, nil)
	defer upstream.Close()
	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/reset", "application/json",
		strings.NewReader(`{"session_id":"does-not-exist"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "reset", body["status"])
}

func TestHandleModels_SortedAndCached(t *testing.T) {
	var tagCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		tagCalls.Add(1)
		json.NewEncoder(w).Encode(ollama.TagsResponse{Models: []ollama.Model{
			{Name: "mistral:latest"},
			{Name: "llama3.1:8b"},
		}})
	}))
	defer upstream.Close()

	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/api/models")
		require.NoError(t, err)
		var body struct {
			Models []string `json:"models"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		require.Equal(t, []string{"llama3.1:8b", "mistral:latest"}, body.Models)
	}

	require.Equal(t, int32(1), tagCalls.Load(), "repeated polls should hit the cache")
}

func TestHandleModels_EmptyWhenUpstreamDown(t *testing.T) {
	upstream := fakeOllama(t, nil)
	url := upstream.URL
	upstream.Close()

	srv := httptest.NewServer(newTestServer(t, url).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Empty(t, body.Models)
}

func TestHandleConfig(t *testing.T) {
	upstream := fakeOllama(t, nil)
	defer upstream.Close()
	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		IsCloud      bool   `json:"is_cloud"`
		DefaultModel string `json:"default_model"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.IsCloud)
	require.Equal(t, "llama3.1:8b", body.DefaultModel)
}

func TestHandleIndex(t *testing.T) {
	upstream := fakeOllama(t, nil)
	defer upstream.Close()
	srv := httptest.NewServer(newTestServer(t, upstream.URL).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(body), "<html")
}
