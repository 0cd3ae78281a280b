package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Signal is one raw connectivity observation.
type Signal struct {
	Online         bool
	ConnectionType string
	EffectiveType  string // slow-2g, 2g, 3g, 4g, unknown
	DownlinkMbps   float64
	RTT            time.Duration
	SaveData       bool
}

// Source is the connectivity capability the monitor consumes. It
// abstracts the platform's online/offline and connection-quality
// signals so the monitor is testable without a real network.
type Source interface {
	// Current returns the latest observation.
	Current() Signal

	// Events delivers observations as they change. The channel is
	// closed when the source is closed.
	Events() <-chan Signal

	// Close releases the source's resources.
	Close() error
}

// ProbeConfig configures the HTTP probe source.
type ProbeConfig struct {
	// URL receives a HEAD request each interval (default:
	// https://www.google.com/generate_204).
	URL string

	// Interval between probes (default: 15s).
	Interval time.Duration

	// Timeout for one probe (default: 5s). A timed-out probe counts as
	// offline.
	Timeout time.Duration

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// probeSource derives connectivity signals from a periodic HTTP HEAD
// probe: reachability gives the online flag and the measured round trip
// classifies the effective connection class.
type probeSource struct {
	config ProbeConfig
	client *http.Client

	mu      sync.Mutex
	current Signal

	events chan Signal
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProbeSource starts a probing signal source.
func NewProbeSource(config ProbeConfig) Source {
	if config.URL == "" {
		config.URL = "https://www.google.com/generate_204"
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &probeSource{
		config: config,
		client: client,
		events: make(chan Signal, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.current = p.probe(ctx)
	go p.loop(ctx)
	return p
}

func (p *probeSource) loop(ctx context.Context) {
	defer close(p.done)
	defer close(p.events)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			sig := p.probe(ctx)

			p.mu.Lock()
			changed := sig.Online != p.current.Online || sig.EffectiveType != p.current.EffectiveType
			p.current = sig
			p.mu.Unlock()

			if !changed {
				continue
			}
			select {
			case p.events <- sig:
			case <-ctx.Done():
				return
			}
		}
	}
}

// probe issues one HEAD request and classifies the result.
func (p *probeSource) probe(ctx context.Context) Signal {
	reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, p.config.URL, nil)
	if err != nil {
		return Signal{Online: false}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	rtt := time.Since(start)
	if err != nil {
		return Signal{Online: false}
	}
	_ = resp.Body.Close()

	return Signal{
		Online:        true,
		EffectiveType: classifyRTT(rtt),
		RTT:           rtt,
	}
}

// classifyRTT maps a measured round trip to the effective connection
// classes the verdict policy understands.
func classifyRTT(rtt time.Duration) string {
	switch {
	case rtt < 100*time.Millisecond:
		return "4g"
	case rtt < 300*time.Millisecond:
		return "3g"
	case rtt < 700*time.Millisecond:
		return "2g"
	default:
		return "slow-2g"
	}
}

func (p *probeSource) Current() Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *probeSource) Events() <-chan Signal {
	return p.events
}

func (p *probeSource) Close() error {
	p.cancel()
	<-p.done
	return nil
}

// StaticSource is a hand-driven Source for tests and composition roots
// that have their own connectivity knowledge.
type StaticSource struct {
	mu      sync.Mutex
	current Signal
	events  chan Signal
	closed  bool
}

// NewStaticSource creates a source seeded with the given signal.
func NewStaticSource(initial Signal) *StaticSource {
	return &StaticSource{
		current: initial,
		events:  make(chan Signal, 16),
	}
}

// Set publishes a new signal.
func (s *StaticSource) Set(sig Signal) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = sig
	s.mu.Unlock()
	s.events <- sig
}

func (s *StaticSource) Current() Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *StaticSource) Events() <-chan Signal {
	return s.events
}

func (s *StaticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
