package policy

import "sync"

const (
	// DefaultMaxRelayHops caps how many hops a relay frame may traverse
	// before the engine drops it as ttl_exceeded. The source test suites
	// disagree on this default (10 vs 3); this implementation picks 10,
	// the more permissive bound, and treats it as a deployment-tunable
	// value rather than a hardcoded limit.
	DefaultMaxRelayHops = 10
	// DefaultBatteryThreshold is the minimum battery percentage at
	// which a node continues to relay for others.
	DefaultBatteryThreshold = 20
)

// RelayConfigSummary is the read-only snapshot returned by GetSummary.
type RelayConfigSummary struct {
	Enabled          bool `json:"enabled"`
	MaxRelayHops     int  `json:"max_relay_hops"`
	BatteryThreshold int  `json:"battery_threshold"`
}

// RelayConfig is the process-wide tunable the mesh relay engine
// consults on every incoming frame. It is constructed once at process
// start and injected into every subsystem that needs it, rather than
// reached for as a global.
type RelayConfig struct {
	mu               sync.RWMutex
	enabled          bool
	maxRelayHops     int
	batteryThreshold int
}

// NewRelayConfig creates a config at its documented defaults.
func NewRelayConfig() *RelayConfig {
	rc := &RelayConfig{}
	rc.ResetToDefaults()
	return rc
}

// Enable turns relaying on.
func (rc *RelayConfig) Enable() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.enabled = true
}

// Disable turns relaying off; incoming relay frames not addressed to this
// node are then dropped no_route by the engine before a hop is attempted.
// Frames whose final recipient is this node are still delivered.
func (rc *RelayConfig) Disable() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.enabled = false
}

// Enabled reports whether relaying is currently on.
func (rc *RelayConfig) Enabled() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.enabled
}

// SetMaxRelayHops sets the hop ceiling. Values below 1 are clamped to 1.
func (rc *RelayConfig) SetMaxRelayHops(n int) {
	if n < 1 {
		n = 1
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.maxRelayHops = n
}

// MaxRelayHops returns the current hop ceiling.
func (rc *RelayConfig) MaxRelayHops() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.maxRelayHops
}

// SetBatteryThreshold sets the minimum battery percentage required to relay.
func (rc *RelayConfig) SetBatteryThreshold(level int) {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.batteryThreshold = level
}

// BatteryThreshold returns the current minimum battery percentage.
func (rc *RelayConfig) BatteryThreshold() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.batteryThreshold
}

// ShouldRelayWithBatteryLevel reports whether a node at the given
// battery level should still participate in relaying.
func (rc *RelayConfig) ShouldRelayWithBatteryLevel(level int) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return level >= rc.batteryThreshold
}

// GetConfigSummary returns a snapshot of the current tunables.
func (rc *RelayConfig) GetConfigSummary() RelayConfigSummary {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return RelayConfigSummary{
		Enabled:          rc.enabled,
		MaxRelayHops:     rc.maxRelayHops,
		BatteryThreshold: rc.batteryThreshold,
	}
}

// ResetToDefaults restores the documented defaults, used between test
// cases so the config never leaks state across them.
func (rc *RelayConfig) ResetToDefaults() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.enabled = true
	rc.maxRelayHops = DefaultMaxRelayHops
	rc.batteryThreshold = DefaultBatteryThreshold
}
