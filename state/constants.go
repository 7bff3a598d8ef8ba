package state

import "time"

// FragmentSize is the number of payload bytes carried by one fragment. It is part of the wire protocol.
const FragmentSize = 128

var (
	AckTimeout        = time.Millisecond * 400
	RequestTimeout    = time.Second * 10
	ReassemblyTimeout = time.Second * 15
	DiscoveryTimeout  = time.Second * 2
	DiscoveryCooldown = time.Millisecond * 250
	CompletedTTL      = time.Second * 30
	FloodSeenTTL      = time.Second * 30
	DocumentCacheTTL  = time.Minute * 5
	MaxRetries        = 32
	// MaxRouteAttempts bounds how often one transmission recomputes a route after losing its first hop
	MaxRouteAttempts = 8

	GcDelay = time.Millisecond * 100

	// LinkBuffer is the capacity of each in-memory link channel
	LinkBuffer = 1024
	// DispatchBuffer is the capacity of an actor's dispatch channel
	DispatchBuffer = 128
)

// Tunables are the protocol timers of a single endpoint. Zero fields fall back to the package defaults.
type Tunables struct {
	AckTimeout        time.Duration `yaml:"ackTimeout,omitempty"`
	RequestTimeout    time.Duration `yaml:"requestTimeout,omitempty"`
	ReassemblyTimeout time.Duration `yaml:"reassemblyTimeout,omitempty"`
	DiscoveryTimeout  time.Duration `yaml:"discoveryTimeout,omitempty"`
	DiscoveryCooldown time.Duration `yaml:"discoveryCooldown,omitempty"`
	MaxRetries        int           `yaml:"maxRetries,omitempty"`
	GcDelay           time.Duration `yaml:"gcDelay,omitempty"`
}

func DefaultTunables() Tunables {
	return Tunables{
		AckTimeout:        AckTimeout,
		RequestTimeout:    RequestTimeout,
		ReassemblyTimeout: ReassemblyTimeout,
		DiscoveryTimeout:  DiscoveryTimeout,
		DiscoveryCooldown: DiscoveryCooldown,
		MaxRetries:        MaxRetries,
		GcDelay:           GcDelay,
	}
}

// WithDefaults fills every unset field from DefaultTunables
func (t Tunables) WithDefaults() Tunables {
	d := DefaultTunables()
	if t.AckTimeout == 0 {
		t.AckTimeout = d.AckTimeout
	}
	if t.RequestTimeout == 0 {
		t.RequestTimeout = d.RequestTimeout
	}
	if t.ReassemblyTimeout == 0 {
		t.ReassemblyTimeout = d.ReassemblyTimeout
	}
	if t.DiscoveryTimeout == 0 {
		t.DiscoveryTimeout = d.DiscoveryTimeout
	}
	if t.DiscoveryCooldown == 0 {
		t.DiscoveryCooldown = d.DiscoveryCooldown
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = d.MaxRetries
	}
	if t.GcDelay == 0 {
		t.GcDelay = d.GcDelay
	}
	return t
}
