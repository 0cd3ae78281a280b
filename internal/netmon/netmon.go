// Package netmon maintains a single source of truth for connectivity
// and connection quality, and translates raw signals into an actionable
// sync recommendation.
//
// The monitor is an explicitly constructed instance: the composition
// root creates one per running app and hands it to consumers, which
// keeps tests deterministic (fresh monitor per test, fake signal
// source).
package netmon

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Quality buckets a connection for sync decisions.
type Quality string

const (
	QualityOffline   Quality = "offline"
	QualityPoor      Quality = "poor"
	QualityGood      Quality = "good"
	QualityExcellent Quality = "excellent"
)

// Action is the recommended behavior for the sync layer.
type Action string

const (
	ActionOfflineMode Action = "offline-mode"
	ActionWait        Action = "wait"
	ActionSyncNow     Action = "sync-now"
)

// Quality override thresholds. A round trip slower than maxUsableRTT or
// a measured downlink under minUsableDownlink forces the poor/no-sync
// verdict regardless of the connection class.
const (
	maxUsableRTT      = 200 * time.Millisecond
	minUsableDownlink = 1.0 // Mbps
)

// State is a connectivity snapshot.
type State struct {
	Online         bool          `json:"online"`
	ConnectionType string        `json:"connection_type,omitempty"`
	EffectiveType  string        `json:"effective_type,omitempty"` // slow-2g, 2g, 3g, 4g, unknown
	DownlinkMbps   float64       `json:"downlink_mbps,omitempty"`  // 0 = unmeasured
	RTT            time.Duration `json:"rtt,omitempty"`            // 0 = unmeasured
	SaveData       bool          `json:"save_data,omitempty"`
	LastOnline     time.Time     `json:"last_online,omitempty"`
	LastOffline    time.Time     `json:"last_offline,omitempty"`
}

// OfflineDuration returns how long the connection has been down, or 0
// when online.
func (s State) OfflineDuration() time.Duration {
	if s.Online || s.LastOffline.IsZero() {
		return 0
	}
	return time.Since(s.LastOffline)
}

// Info is the derived sync-eligibility verdict.
type Info struct {
	IsOnline          bool    `json:"is_online"`
	ConnectionQuality Quality `json:"connection_quality"`
	CanSync           bool    `json:"can_sync"`
	RecommendedAction Action  `json:"recommended_action"`
	Message           string  `json:"message"`
}

// Monitor tracks connectivity signals and notifies subscribers of every
// state change, in order.
type Monitor struct {
	src    Source
	logger *log.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int
	started   bool
	destroyed bool
	stop      chan struct{}
	done      chan struct{}
}

// New creates a Monitor over the given signal source. The event pump is
// started lazily on the first subscription; until then the monitor
// answers queries from the source's current signal.
func New(src Source, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}

	m := &Monitor{
		src:       src,
		logger:    logger,
		listeners: make(map[int]func(State)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.state = stateFromSignal(src.Current(), State{})
	return m
}

func stateFromSignal(sig Signal, prev State) State {
	s := State{
		Online:         sig.Online,
		ConnectionType: sig.ConnectionType,
		EffectiveType:  sig.EffectiveType,
		DownlinkMbps:   sig.DownlinkMbps,
		RTT:            sig.RTT,
		SaveData:       sig.SaveData,
		LastOnline:     prev.LastOnline,
		LastOffline:    prev.LastOffline,
	}
	if sig.Online && !prev.Online {
		s.LastOnline = time.Now()
	}
	if !sig.Online && prev.Online {
		s.LastOffline = time.Now()
	}
	return s
}

// GetState returns the current snapshot.
func (m *Monitor) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener that is invoked immediately with the
// current state and then on every subsequent change. The returned
// function removes the listener. A panicking listener is logged and
// does not block delivery to the others.
func (m *Monitor) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	if !m.started {
		m.started = true
		go m.pump()
	}
	current := m.state
	m.mu.Unlock()

	m.deliver(fn, current)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// pump forwards source events to listeners until Destroy.
func (m *Monitor) pump() {
	defer close(m.done)

	for {
		select {
		case <-m.stop:
			return

		case sig, ok := <-m.src.Events():
			if !ok {
				return
			}
			m.apply(sig)
		}
	}
}

func (m *Monitor) apply(sig Signal) {
	m.mu.Lock()
	next := stateFromSignal(sig, m.state)
	m.state = next

	fns := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		m.deliver(fn, next)
	}
}

// deliver invokes one listener, isolating panics.
func (m *Monitor) deliver(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("WARNING: listener panicked: %v", r)
		}
	}()
	fn(s)
}

// Destroy stops the event pump, closes the signal source, and removes
// all listeners. Safe to call more than once.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	started := m.started
	m.listeners = make(map[int]func(State))
	close(m.stop)
	m.mu.Unlock()

	if started {
		<-m.done
	}
	if err := m.src.Close(); err != nil {
		m.logger.Printf("WARNING: failed to close signal source: %v", err)
	}
}

// GetNetworkInfo derives the sync verdict from the current state.
//
// Class-based defaults are applied first (offline, 2g and slower, 3g,
// 4g/unknown), then the RTT and downlink overrides; the last applicable
// rule wins.
func (m *Monitor) GetNetworkInfo() Info {
	return DeriveInfo(m.GetState())
}

// DeriveInfo computes the sync verdict for a given state snapshot.
func DeriveInfo(s State) Info {
	if !s.Online {
		return Info{
			IsOnline:          false,
			ConnectionQuality: QualityOffline,
			CanSync:           false,
			RecommendedAction: ActionOfflineMode,
			Message:           "You're offline. Changes will be saved locally.",
		}
	}

	info := Info{IsOnline: true}
	switch s.EffectiveType {
	case "slow-2g", "2g":
		info.ConnectionQuality = QualityPoor
		info.CanSync = false
		info.RecommendedAction = ActionWait
	case "3g":
		info.ConnectionQuality = QualityGood
		info.CanSync = true
		info.RecommendedAction = ActionSyncNow
	default: // 4g or unclassifiable-but-online
		info.ConnectionQuality = QualityExcellent
		info.CanSync = true
		info.RecommendedAction = ActionSyncNow
	}

	// Measured-signal overrides replace the class-based verdict.
	if s.RTT > maxUsableRTT {
		info.ConnectionQuality = QualityPoor
		info.CanSync = false
		info.RecommendedAction = ActionWait
	}
	if s.DownlinkMbps > 0 && s.DownlinkMbps < minUsableDownlink {
		info.ConnectionQuality = QualityPoor
		info.CanSync = false
		info.RecommendedAction = ActionWait
	}

	switch info.ConnectionQuality {
	case QualityPoor:
		info.Message = "Connection is slow. Sync will wait for a better connection."
	default:
		info.Message = "Connected. Ready to sync."
	}
	return info
}

// ShouldSync reports whether a sync pass is advisable right now.
func (m *Monitor) ShouldSync() bool {
	return m.GetNetworkInfo().CanSync
}

// IsConnectionStable reports whether the connection is good enough that
// a sync pass is unlikely to be interrupted.
func (m *Monitor) IsConnectionStable() bool {
	q := m.GetNetworkInfo().ConnectionQuality
	return q == QualityGood || q == QualityExcellent
}

// GetOfflineDuration returns how long the connection has been down.
func (m *Monitor) GetOfflineDuration() time.Duration {
	return m.GetState().OfflineDuration()
}

// GetConnectionSummary renders a one-line description of the connection.
func (m *Monitor) GetConnectionSummary() string {
	s := m.GetState()
	if !s.Online {
		if d := s.OfflineDuration(); d > 0 {
			return fmt.Sprintf("Offline for %s", d.Round(time.Second))
		}
		return "Offline"
	}

	class := s.EffectiveType
	if class == "" {
		class = "unknown"
	}
	summary := fmt.Sprintf("Online (%s", class)
	if s.DownlinkMbps > 0 {
		summary += fmt.Sprintf(", %.1f Mbps", s.DownlinkMbps)
	}
	if s.RTT > 0 {
		summary += fmt.Sprintf(", %dms RTT", s.RTT.Milliseconds())
	}
	return summary + ")"
}
