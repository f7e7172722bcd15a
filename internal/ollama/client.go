package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"
)

const (
	pingTimeout = 2 * time.Second
	tagsTimeout = 5 * time.Second

	// NDJSON lines are small, but a model can emit long fragments.
	maxLineSize = 1024 * 1024
)

// Client talks to the Ollama HTTP API. Chat streams carry no timeout
// since generation is long-running by nature; the probe and tag calls
// use short fixed timeouts instead.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given base endpoint. token, when
// non-empty, is sent as a bearer credential on every request.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// StreamChat issues a streaming chat request and returns a channel of
// decoded fragments. The channel holds at most one fragment; it closes
// after the upstream reports completion or after the terminal error
// chunk. If images are supplied they are attached to the final message
// before sending (vision-capable models only). The stream is not
// restartable.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, images []string) <-chan Chunk {
	if len(images) > 0 && len(req.Messages) > 0 {
		req.Messages[len(req.Messages)-1].Images = images
	}
	req.Stream = true

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		c.stream(ctx, req, out)
	}()
	return out
}

func (c *Client) stream(ctx context.Context, chatReq ChatRequest, out chan<- Chunk) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		c.send(ctx, out, Chunk{Err: &StreamError{Kind: KindInternal, Err: err}})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		c.send(ctx, out, Chunk{Err: &StreamError{Kind: KindInternal, Err: err}})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	c.logger.Info("connecting to ollama", "url", req.URL.String(), "model", chatReq.Model)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("chat request failed", "error", err)
		c.send(ctx, out, Chunk{Err: classify(err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("chat request rejected", "status", resp.StatusCode)
		c.send(ctx, out, Chunk{Err: classifyStatus(resp.StatusCode)})
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Recoverable: drop the line, keep decoding.
			c.logger.Error("failed to decode stream line", "error", err, "line", string(line))
			continue
		}

		if chunk.Message.Content != "" {
			if !c.send(ctx, out, Chunk{Content: chunk.Message.Content}) {
				return
			}
		}
		if chunk.Done {
			if md, ok := formatMetadata(chunk); ok {
				c.send(ctx, out, Chunk{Content: md})
			}
			c.logger.Info("stream done", "model", chatReq.Model, "eval_count", chunk.EvalCount)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("stream read failed", "error", err)
		c.send(ctx, out, Chunk{Err: classify(err)})
	}
}

func (c *Client) send(ctx context.Context, out chan<- Chunk, chunk Chunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// formatMetadata renders the trailing performance fragment from the
// final stream object. Streams without eval stats produce none.
func formatMetadata(chunk ChatResponse) (string, bool) {
	if chunk.EvalCount == 0 || chunk.EvalDuration == 0 {
		return "", false
	}
	seconds := float64(chunk.EvalDuration) / float64(time.Second)
	md := Metadata{
		TPS:       round2(float64(chunk.EvalCount) / seconds),
		Tokens:    chunk.EvalCount,
		DurationS: round2(seconds),
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", false
	}
	return MetadataMarker + string(b), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ListModels fetches the available model names, sorted
// lexicographically. Any failure yields an empty list rather than an
// error; the caller treats "no models" as a valid result.
func (c *Client) ListModels(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return []string{}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("failed to fetch models", "error", err)
		return []string{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("failed to fetch models", "status", resp.StatusCode)
		return []string{}
	}

	var tags TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		c.logger.Error("failed to decode tags response", "error", err)
		return []string{}
	}

	names := make([]string, 0, len(tags.Models))
	for _, model := range tags.Models {
		names = append(names, model.Name)
	}
	sort.Strings(names)
	return names
}

// CheckConnection reports whether Ollama answers its liveness probe.
func (c *Client) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
