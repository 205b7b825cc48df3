package contextstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/token"
)

// subjectPrefix is the NATS subject prefix for context diff broadcast.
const subjectPrefix = "swarmd.context."

// historyLimit bounds the retained optimization records.
const historyLimit = 100

// subscriberBuffer is the per-subscriber channel depth. A slow subscriber
// misses diffs rather than blocking the store; on a rejected diff it
// refetches the full context.
const subscriberBuffer = 16

// Stats is the aggregate counter snapshot served at GET /metrics.
type Stats struct {
	TotalRequests         int64          `json:"totalRequests"`
	CacheHits             int64          `json:"cacheHits"`
	ActiveConnections     int            `json:"activeConnections"`
	CompressionSavedBytes int64          `json:"compressionSavedBytes"`
	TokensSaved           int64          `json:"tokensSaved"`
	MemoryUsage           int64          `json:"memoryUsage"`
	ContextSizes          map[string]int `json:"contextSizes"`
}

// contextState is the mutable state behind one project's SharedContext.
type contextState struct {
	payload   map[string]any
	version   int64
	updatedAt time.Time
	subs      map[int]chan Diff
	nextSub   int
}

// Store holds every live SharedContext in process memory.
//
// When constructed with a NATS connection, diffs are additionally
// published to swarmd.context.<projectID> so out-of-process subscribers
// share the same fan-out path as in-process ones.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*contextState

	logger  *zap.Logger
	nc      *nats.Conn
	metrics *Metrics

	totalRequests  int64
	cacheHits      int64
	tokensSaved    int64
	bytesSaved     int64
	subscribers    int
	savedByProject map[string]int64

	history []OptimizationRecord
}

// Option configures a Store.
type Option func(*Store)

// WithNATS enables diff broadcast over the given connection. nil is
// allowed and leaves broadcast in-process only.
func WithNATS(nc *nats.Conn) Option {
	return func(s *Store) { s.nc = nc }
}

// NewStore creates an empty shared context store.
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		contexts:       make(map[string]*contextState),
		savedByProject: make(map[string]int64),
		logger:         logger,
		metrics:        NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a snapshot of the project's context.
func (s *Store) Get(projectID string) (*SharedContext, error) {
	s.metrics.RequestsTotal.WithLabelValues("get").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	state, ok := s.contexts[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	s.cacheHits++
	s.metrics.CacheHitsTotal.Inc()

	return &SharedContext{
		ProjectID: projectID,
		Version:   state.version,
		Payload:   copyPayload(state.payload),
		UpdatedAt: state.updatedAt,
	}, nil
}

// Update shallow-merges a partial context into the project's payload.
//
// Merge is by top-level key, last writer wins; an explicit nil value
// removes its key. Every successful update increments the version by
// exactly 1. With CreateDiff set, the diff (not the full payload) is what
// subscribers receive, and TokensSaved reports the estimated cost of the
// full payload minus the cost of the diff actually transmitted.
func (s *Store) Update(projectID, agentID string, partial map[string]any, opts UpdateOptions) (*UpdateResult, error) {
	if agentID == "" {
		return nil, ErrEmptyAgentID
	}

	s.metrics.RequestsTotal.WithLabelValues("update").Inc()

	s.mu.Lock()
	s.totalRequests++

	state, ok := s.contexts[projectID]
	if !ok {
		state = &contextState{
			payload: make(map[string]any),
			subs:    make(map[int]chan Diff),
		}
		s.contexts[projectID] = state
		s.metrics.ActiveContexts.Set(float64(len(s.contexts)))
	}

	var diff *Diff
	if opts.CreateDiff {
		diff = &Diff{
			ProjectID:   projectID,
			BaseVersion: state.version,
			Values:      make(map[string]any),
		}
	}

	for key, value := range partial {
		if value == nil {
			if _, exists := state.payload[key]; exists {
				delete(state.payload, key)
				if diff != nil {
					diff.Removed = append(diff.Removed, key)
				}
			}
			continue
		}
		if diff != nil && !sameValue(state.payload[key], value) {
			diff.Changed = append(diff.Changed, key)
			diff.Values[key] = value
		}
		state.payload[key] = value
	}

	state.version++
	state.updatedAt = time.Now().UTC()

	result := &UpdateResult{NewVersion: state.version}

	if diff != nil {
		sort.Strings(diff.Changed)
		sort.Strings(diff.Removed)
		diff.TargetVersion = state.version
		result.Diff = diff

		fullBytes := payloadBytes(state.payload)
		diffBytes := diffPayloadBytes(diff)
		baseline := token.Estimate(string(fullBytes))
		optimized := token.Estimate(string(diffBytes))
		if saved := baseline - optimized; saved > 0 {
			result.TokensSaved = saved
		}

		s.tokensSaved += int64(result.TokensSaved)
		s.savedByProject[projectID] += int64(result.TokensSaved)
		if saved := int64(len(fullBytes) - len(diffBytes)); saved > 0 {
			s.bytesSaved += saved
			s.metrics.BytesSavedTotal.Add(float64(saved))
		}
		s.appendRecord(OptimizationRecord{
			ID:        uuid.New().String(),
			ProjectID: projectID,
			AgentID:   agentID,
			Baseline:  baseline,
			Optimized: optimized,
			Saved:     result.TokensSaved,
			Timestamp: state.updatedAt,
		})

		s.metrics.TokensSavedTotal.Add(float64(result.TokensSaved))
		s.metrics.ContextSizeBytes.WithLabelValues(projectID).Set(float64(len(fullBytes)))
	}
	s.metrics.ContextVersions.WithLabelValues(projectID).Set(float64(state.version))

	// In-process sends happen under the lock so a concurrent cancel
	// cannot close a channel mid-send. Sends never block.
	if opts.Broadcast && diff != nil {
		for _, ch := range state.subs {
			select {
			case ch <- *diff:
			default:
				s.logger.Warn("Dropping diff for slow subscriber",
					zap.String("project", projectID),
					zap.Int64("version", diff.TargetVersion))
			}
		}
	}
	s.mu.Unlock()

	if opts.Broadcast && diff != nil {
		s.publish(projectID, *diff)
	}

	s.logger.Debug("Shared context updated",
		zap.String("project", projectID),
		zap.String("agent", agentID),
		zap.Int64("version", result.NewVersion),
		zap.Int("tokens_saved", result.TokensSaved))

	return result, nil
}

// Subscribe registers a diff subscriber for a project. The returned
// cancel function removes the subscription and closes the channel.
func (s *Store) Subscribe(projectID string) (<-chan Diff, func()) {
	s.mu.Lock()
	state, ok := s.contexts[projectID]
	if !ok {
		state = &contextState{
			payload: make(map[string]any),
			subs:    make(map[int]chan Diff),
		}
		s.contexts[projectID] = state
		s.metrics.ActiveContexts.Set(float64(len(s.contexts)))
	}
	id := state.nextSub
	state.nextSub++
	ch := make(chan Diff, subscriberBuffer)
	state.subs[id] = ch
	s.subscribers++
	s.metrics.Subscribers.Set(float64(s.subscribers))
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if st, ok := s.contexts[projectID]; ok {
			if _, live := st.subs[id]; live {
				delete(st.subs, id)
				close(ch)
				s.subscribers--
				s.metrics.Subscribers.Set(float64(s.subscribers))
			}
		}
	}
	return ch, cancel
}

// Remove tears down a project's context at cleanup, closing all
// subscriber channels.
func (s *Store) Remove(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.contexts[projectID]
	if !ok {
		return
	}
	for _, ch := range state.subs {
		close(ch)
		s.subscribers--
	}
	delete(s.contexts, projectID)
	s.metrics.Subscribers.Set(float64(s.subscribers))
	s.metrics.ActiveContexts.Set(float64(len(s.contexts)))
	s.metrics.ContextVersions.DeleteLabelValues(projectID)
	s.metrics.ContextSizeBytes.DeleteLabelValues(projectID)
}

// Records returns the retained optimization records, newest last.
func (s *Store) Records() []OptimizationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OptimizationRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Stats returns the aggregate counter snapshot.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalRequests:         s.totalRequests,
		CacheHits:             s.cacheHits,
		ActiveConnections:     s.subscribers,
		CompressionSavedBytes: s.bytesSaved,
		TokensSaved:           s.tokensSaved,
		ContextSizes:          make(map[string]int, len(s.contexts)),
	}
	for id, state := range s.contexts {
		size := len(payloadBytes(state.payload))
		stats.ContextSizes[id] = size
		stats.MemoryUsage += int64(size)
	}
	return stats
}

// TokensSavedFor returns the cumulative tokens saved for one project.
func (s *Store) TokensSavedFor(projectID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.savedByProject[projectID]
}

// ActiveContextCount returns the number of live project contexts.
func (s *Store) ActiveContextCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// SubscriberCount returns the number of active subscribers.
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribers
}

// publish sends a diff to NATS when a connection is configured.
func (s *Store) publish(projectID string, d Diff) {
	if s.nc == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn("Failed to marshal diff for broadcast", zap.Error(err))
		return
	}
	if err := s.nc.Publish(subjectPrefix+projectID, data); err != nil {
		s.logger.Warn("Failed to publish diff",
			zap.String("project", projectID),
			zap.Error(err))
	}
}

func (s *Store) appendRecord(rec OptimizationRecord) {
	s.history = append(s.history, rec)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func payloadBytes(payload map[string]any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

func diffPayloadBytes(d *Diff) []byte {
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return data
}

// sameValue compares two payload values by their JSON serialization.
// Top-level values are small; exactness matters less than stability.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
