// Package cache is a memory-bounded TTL/LRU store of secret maps keyed by
// environment name.
//
// Secrets never touch durable storage: entries live in process memory only,
// under a configurable ceiling so long-lived multi-environment processes
// cannot grow without bound. TTL bounds staleness without requiring explicit
// invalidation by every caller, and the separate GetStale path makes stale
// reads an opt-in fallback rather than something Get can silently return.
// Clear overwrites every owned value buffer with random bytes before
// releasing entries.
package cache

import (
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/systmms/envsecrets/internal/logging"
	"github.com/systmms/envsecrets/internal/metrics"
	"github.com/systmms/envsecrets/internal/secure"
)

const (
	// Memory-pressure warning hysteresis: warn once above the high mark,
	// re-arm below the low mark.
	pressureHighMark = 0.75
	pressureLowMark  = 0.5

	criticalMark = 0.9

	// SweepInterval is how often the background sweeper runs.
	SweepInterval = 60 * time.Second
)

// Config configures a SecretCache.
type Config struct {
	TTL         time.Duration
	MaxMemoryMB int
	Logger      *logging.Logger
	Metrics     *metrics.Recorder

	// Now overrides the clock. Tests only; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the cache defaults: 5 minute TTL, 50 MB ceiling.
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MaxMemoryMB: 50,
	}
}

// entry owns a copied secret map. Values are byte slices rather than
// strings so Clear can overwrite them in place.
type entry struct {
	data      map[string][]byte
	expiresAt time.Time
	checksum  uint64
	size      int64
}

// SecretCache stores one entry per environment name. A single mutex covers
// the entry map, the access-order map, and the running memory total so
// size accounting, eviction, and insertion are one atomic transition.
type SecretCache struct {
	mu           sync.Mutex
	entries      map[string]*entry
	access       map[string]time.Time
	memoryUsage  int64
	maxBytes     int64
	ttl          time.Duration
	evictions    uint64
	memoryWarned bool

	logger  *logging.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
	hookOnce  sync.Once
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	Entries       int        `json:"entries"`
	MemoryUsageMB float64    `json:"memoryUsageMB"`
	MaxMemoryMB   float64    `json:"maxMemoryMB"`
	PercentUsed   float64    `json:"percentUsed"`
	TTLSeconds    int        `json:"ttlSeconds"`
	Environments  []string   `json:"environments"`
	OldestEntry   *time.Time `json:"oldestEntry,omitempty"`
	NewestEntry   *time.Time `json:"newestEntry,omitempty"`
	EvictionCount uint64     `json:"evictionCount"`
	HealthStatus  string     `json:"healthStatus"`
}

// New creates a SecretCache from cfg, filling zero fields from
// DefaultConfig.
func New(cfg Config) *SecretCache {
	defaults := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MaxMemoryMB <= 0 {
		cfg.MaxMemoryMB = defaults.MaxMemoryMB
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(false, true)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SecretCache{
		entries:  make(map[string]*entry),
		access:   make(map[string]time.Time),
		maxBytes: int64(cfg.MaxMemoryMB) * 1024 * 1024,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// Get returns a deep copy of the entry for env, or (nil, false) when the
// entry is absent or expired. Expired entries are removed on the spot.
// A hit refreshes the entry's LRU position.
func (c *SecretCache) Get(env string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[env]
	if !ok {
		c.metrics.CacheMiss()
		return nil, false
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		c.removeLocked(env)
		c.metrics.CacheMiss()
		return nil, false
	}

	c.access[env] = now
	c.metrics.CacheHit()
	return copyOut(e.data), true
}

// GetStale returns a deep copy of the entry for env regardless of expiry.
// It does not refresh the LRU position, so a stale entry cannot keep
// itself alive through fallback reads.
func (c *SecretCache) GetStale(env string) (map[string]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[env]
	if !ok {
		return nil, false
	}
	return copyOut(e.data), true
}

// Set stores a copy of data under env, replacing any previous entry
// wholesale and evicting least-recently-used entries until the new total
// fits under the ceiling. A single entry larger than the whole ceiling is
// still stored; the overrun lasts until the next set or sweep.
func (c *SecretCache) Set(env string, data map[string]string) {
	entrySize := estimateSize(data)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacement: retire the old entry before the ceiling check so its
	// size is not counted and it cannot be double-evicted below.
	if _, ok := c.entries[env]; ok {
		c.removeLocked(env)
	}

	for c.memoryUsage+entrySize > c.maxBytes && len(c.entries) > 0 {
		c.evictOldestLocked()
	}

	now := c.now()
	c.entries[env] = &entry{
		data:      copyIn(data),
		expiresAt: now.Add(c.ttl),
		checksum:  checksum(data),
		size:      entrySize,
	}
	c.access[env] = now
	c.memoryUsage += entrySize

	c.updatePressureLocked()
	c.metrics.SetMemoryBytes(c.memoryUsage)
}

// Delete removes the entry for env if present.
func (c *SecretCache) Delete(env string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(env)
	c.updatePressureLocked()
	c.metrics.SetMemoryBytes(c.memoryUsage)
}

// Clear securely erases and removes every entry. Each value buffer is
// overwritten with cryptographically random bytes before the maps are
// dropped. Idempotent and safe under repeated invocation, including from
// signal handlers.
func (c *SecretCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		for _, buf := range e.data {
			secure.Scramble(buf)
		}
	}

	c.entries = make(map[string]*entry)
	c.access = make(map[string]time.Time)
	c.memoryUsage = 0
	c.memoryWarned = false
	c.metrics.SetMemoryBytes(0)
}

// Validate recomputes the checksum of the stored entry and compares it to
// the checksum recorded at set time. Returns false for missing entries and
// for entries whose data no longer matches (out-of-band corruption).
// Advisory only; it never removes the entry.
func (c *SecretCache) Validate(env string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[env]
	if !ok {
		return false
	}
	return checksumBytes(e.data) == e.checksum
}

// Stats returns a snapshot of cache usage and health.
func (c *SecretCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	envs := make([]string, 0, len(c.entries))
	for env := range c.entries {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	var oldest, newest *time.Time
	for _, ts := range c.access {
		ts := ts
		if oldest == nil || ts.Before(*oldest) {
			oldest = &ts
		}
		if newest == nil || ts.After(*newest) {
			newest = &ts
		}
	}

	percent := 0.0
	if c.maxBytes > 0 {
		percent = float64(c.memoryUsage) / float64(c.maxBytes) * 100
	}

	health := "healthy"
	switch {
	case percent >= criticalMark*100:
		health = "critical"
	case percent >= pressureHighMark*100:
		health = "warning"
	}

	return Stats{
		Entries:       len(c.entries),
		MemoryUsageMB: float64(c.memoryUsage) / (1024 * 1024),
		MaxMemoryMB:   float64(c.maxBytes) / (1024 * 1024),
		PercentUsed:   percent,
		TTLSeconds:    int(c.ttl / time.Second),
		Environments:  envs,
		OldestEntry:   oldest,
		NewestEntry:   newest,
		EvictionCount: c.evictions,
		HealthStatus:  health,
	}
}

// StartSweeper launches the background sweep loop. The goroutine wakes
// every interval (SweepInterval when zero), drops expired entries,
// re-enforces the ceiling, and warns at critical usage. It never keeps the
// process alive; call Stop for an orderly shutdown.
func (c *SecretCache) StartSweeper(interval time.Duration) {
	c.sweepOnce.Do(func() {
		if interval <= 0 {
			interval = SweepInterval
		}
		stop := make(chan struct{})
		c.mu.Lock()
		c.sweepStop = stop
		c.mu.Unlock()

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.Sweep()
				case <-stop:
					return
				}
			}
		}()
	})
}

// Stop terminates the background sweeper if it is running.
func (c *SecretCache) Stop() {
	c.mu.Lock()
	stop := c.sweepStop
	c.sweepStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// Sweep removes expired entries and re-enforces the memory ceiling (the
// ceiling can drop at runtime when a cache is reconfigured). Exposed so
// tests and the CLI can trigger a pass without waiting for the ticker.
func (c *SecretCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for env, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.removeLocked(env)
		}
	}

	for c.memoryUsage > c.maxBytes && len(c.entries) > 0 {
		c.evictOldestLocked()
	}

	if c.maxBytes > 0 && float64(c.memoryUsage) >= criticalMark*float64(c.maxBytes) {
		c.logger.Error("Secret cache at critical memory usage: %.1f%% of %.0f MB",
			float64(c.memoryUsage)/float64(c.maxBytes)*100, float64(c.maxBytes)/(1024*1024))
	}

	c.updatePressureLocked()
	c.metrics.SetMemoryBytes(c.memoryUsage)
}

// RegisterShutdownHooks arranges for Clear to run when the process receives
// SIGINT or SIGTERM, then re-delivers the signal so default termination
// behavior is preserved. Idempotent; the handler goroutine never keeps the
// process alive.
func (c *SecretCache) RegisterShutdownHooks() {
	c.hookOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-ch
			c.Clear()
			signal.Stop(ch)
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				_ = p.Signal(sig)
			}
		}()
	})
}

// removeLocked deletes env and keeps the memory total consistent. Caller
// holds the mutex.
func (c *SecretCache) removeLocked(env string) {
	e, ok := c.entries[env]
	if !ok {
		return
	}
	c.memoryUsage -= e.size
	delete(c.entries, env)
	delete(c.access, env)
}

// evictOldestLocked drops the entry with the oldest access timestamp.
// Caller holds the mutex and has checked the map is non-empty.
func (c *SecretCache) evictOldestLocked() {
	var oldestEnv string
	var oldestTime time.Time
	first := true
	for env, ts := range c.access {
		if first || ts.Before(oldestTime) {
			oldestEnv = env
			oldestTime = ts
			first = false
		}
	}
	if first {
		return
	}

	c.removeLocked(oldestEnv)
	c.evictions++
	c.metrics.Eviction()

	// Evictions are normal under memory pressure; log the first so the
	// operator knows it started, then sample.
	if c.evictions == 1 || c.evictions%10 == 0 {
		c.logger.Warn("Secret cache evicted entry for environment '%s' (%d evictions total)",
			oldestEnv, c.evictions)
	}
}

// updatePressureLocked emits one memory-pressure warning above the high
// mark and re-arms below the low mark. Caller holds the mutex.
func (c *SecretCache) updatePressureLocked() {
	if c.maxBytes <= 0 {
		return
	}
	usage := float64(c.memoryUsage) / float64(c.maxBytes)
	switch {
	case usage > pressureHighMark && !c.memoryWarned:
		c.memoryWarned = true
		c.logger.Warn("Secret cache memory usage at %.1f%% of %.0f MB ceiling",
			usage*100, float64(c.maxBytes)/(1024*1024))
	case usage < pressureLowMark:
		c.memoryWarned = false
	}
}

// estimateSize approximates an entry's memory footprint: two bytes per
// character of every key and value.
func estimateSize(data map[string]string) int64 {
	var total int64
	for k, v := range data {
		total += 2 * int64(len(k)+len(v))
	}
	return total
}

// checksum hashes the key-sorted canonical form of a secret map.
func checksum(data map[string]string) uint64 {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(data[k])
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

func checksumBytes(data map[string][]byte) uint64 {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		_, _ = d.Write(data[k])
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

func copyIn(data map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(data))
	for k, v := range data {
		out[k] = []byte(v)
	}
	return out
}

func copyOut(data map[string][]byte) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = string(v)
	}
	return out
}
