package cache

import "time"

// CachedModels is a cached Ollama model listing. The frontend polls
// for models alongside its health checks, and the tag list changes
// rarely, so a short-lived cache keeps those polls off the upstream.
type CachedModels struct {
	Models    []string
	Timestamp time.Time
}

// Fresh reports whether the listing is still usable. An empty listing
// is never fresh; a failed fetch should be retried on the next poll.
func (c CachedModels) Fresh(ttl time.Duration) bool {
	return len(c.Models) > 0 && time.Since(c.Timestamp) < ttl
}
