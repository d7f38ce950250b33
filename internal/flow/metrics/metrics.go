// Package metrics collects business counters for the chatbot-flow service.
package metrics

import (
	"sync"
	"sync/atomic"
)

// FlowMetrics holds service counters. All fields are updated atomically and
// read without locks; the snapshot is therefore only loosely consistent,
// which is fine for a stats endpoint.
type FlowMetrics struct {
	chatTurnsTotal  uint64
	chatErrors      uint64
	promptTokens    uint64
	candidateTokens uint64

	embeddingCalls     uint64
	embeddingCacheHits uint64
	embeddingErrors    uint64

	retrievalTotal  uint64
	retrievalErrors uint64

	sessionsAppended      uint64
	sessionAppendFailures uint64
}

var (
	instance *FlowMetrics
	once     sync.Once
)

// Get returns the process-wide metrics instance.
func Get() *FlowMetrics {
	once.Do(func() {
		instance = &FlowMetrics{}
	})
	return instance
}

// RecordChatTurn counts a completed chat turn and its token usage.
func (m *FlowMetrics) RecordChatTurn(promptTokens, candidateTokens int, err error) {
	atomic.AddUint64(&m.chatTurnsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.chatErrors, 1)
		return
	}
	atomic.AddUint64(&m.promptTokens, uint64(promptTokens))
	atomic.AddUint64(&m.candidateTokens, uint64(candidateTokens))
}

// RecordEmbedding counts one embedding resolution.
func (m *FlowMetrics) RecordEmbedding(cacheHit bool, err error) {
	atomic.AddUint64(&m.embeddingCalls, 1)
	if cacheHit {
		atomic.AddUint64(&m.embeddingCacheHits, 1)
	}
	if err != nil {
		atomic.AddUint64(&m.embeddingErrors, 1)
	}
}

// RecordRetrieval counts one retrieval query.
func (m *FlowMetrics) RecordRetrieval(err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
	}
}

// RecordSessionAppend counts a best-effort session append.
func (m *FlowMetrics) RecordSessionAppend(err error) {
	atomic.AddUint64(&m.sessionsAppended, 1)
	if err != nil {
		atomic.AddUint64(&m.sessionAppendFailures, 1)
	}
}

// Snapshot returns the current counters for the stats endpoint.
func (m *FlowMetrics) Snapshot() map[string]any {
	return map[string]any{
		"chat": map[string]any{
			"turns_total":      atomic.LoadUint64(&m.chatTurnsTotal),
			"errors":           atomic.LoadUint64(&m.chatErrors),
			"prompt_tokens":    atomic.LoadUint64(&m.promptTokens),
			"candidate_tokens": atomic.LoadUint64(&m.candidateTokens),
		},
		"embedding": map[string]any{
			"calls_total": atomic.LoadUint64(&m.embeddingCalls),
			"cache_hits":  atomic.LoadUint64(&m.embeddingCacheHits),
			"errors":      atomic.LoadUint64(&m.embeddingErrors),
		},
		"retrieval": map[string]any{
			"queries_total": atomic.LoadUint64(&m.retrievalTotal),
			"errors":        atomic.LoadUint64(&m.retrievalErrors),
		},
		"sessions": map[string]any{
			"appends_total":   atomic.LoadUint64(&m.sessionsAppended),
			"append_failures": atomic.LoadUint64(&m.sessionAppendFailures),
		},
	}
}

// Reset zeroes all counters. Test helper.
func (m *FlowMetrics) Reset() {
	*m = FlowMetrics{}
}
