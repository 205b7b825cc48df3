package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Registry discovers agent definitions from a directory.
//
// Re-scans are debounced: filesystem events tend to arrive in bursts, so
// a scan is performed at most once per debounce interval and the cached
// roster is served in between. The cache also survives transient read
// failures; a roster is only replaced by a successful scan.
type Registry struct {
	dir      string
	limiter  *rate.Limiter
	logger   *zap.Logger
	fallback []Agent

	mu     sync.RWMutex
	cached []Agent
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDebounce sets the minimum interval between directory scans.
// A non-positive interval disables debouncing (useful in tests).
func WithDebounce(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithFallbackRoster overrides the built-in roster used when no
// definitions are discovered.
func WithFallbackRoster(agents []Agent) RegistryOption {
	return func(r *Registry) { r.fallback = agents }
}

// DefaultDebounce is the minimum interval between directory re-scans.
const DefaultDebounce = 5 * time.Second

// NewRegistry creates a registry scanning dir for *.yaml definitions.
func NewRegistry(dir string, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		dir:      dir,
		limiter:  rate.NewLimiter(rate.Every(DefaultDebounce), 1),
		logger:   logger,
		fallback: FallbackRoster(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scan returns the current agent roster.
//
// If the debounce interval has not elapsed since the previous scan, the
// cached roster is returned without touching the filesystem. A malformed
// definition is logged and skipped, never fatal to the scan. When zero
// agents are discovered the fallback roster is returned so the system is
// never left without workers.
func (r *Registry) Scan(ctx context.Context) []Agent {
	if !r.limiter.Allow() {
		r.mu.RLock()
		cached := r.cached
		r.mu.RUnlock()
		if cached != nil {
			return cached
		}
		// First scan has not happened yet; fall through.
	}

	agents := r.scanDir(ctx)
	if len(agents) == 0 {
		r.logger.Info("No agent definitions discovered, using fallback roster",
			zap.String("dir", r.dir),
			zap.Int("fallback_agents", len(r.fallback)))
		agents = append([]Agent(nil), r.fallback...)
	}
	sortAgents(agents)

	r.mu.Lock()
	r.cached = agents
	r.mu.Unlock()

	return agents
}

// Cached returns the roster from the last scan, or nil before any scan.
func (r *Registry) Cached() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cached
}

func (r *Registry) scanDir(ctx context.Context) []Agent {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("Failed to read agent directory",
				zap.String("dir", r.dir),
				zap.Error(err))
		}
		return nil
	}

	var agents []Agent
	for _, entry := range entries {
		if ctx.Err() != nil {
			return agents
		}
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		a, err := Load(path)
		if err != nil {
			// One malformed entry never blocks the rest.
			r.logger.Warn("Skipping malformed agent definition",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		agents = append(agents, a)
	}
	return agents
}

func isDefinitionFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
