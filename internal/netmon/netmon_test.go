package netmon

import (
	"log"
	"os"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func onlineSignal(effectiveType string) Signal {
	return Signal{Online: true, EffectiveType: effectiveType}
}

func waitForState(t *testing.T, ch <-chan State, want func(State) bool) State {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			if want(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for state change")
		}
	}
}

func TestDeriveInfo_Policy(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		quality Quality
		canSync bool
		action  Action
	}{
		{"offline", State{Online: false}, QualityOffline, false, ActionOfflineMode},
		{"slow-2g", State{Online: true, EffectiveType: "slow-2g"}, QualityPoor, false, ActionWait},
		{"2g", State{Online: true, EffectiveType: "2g"}, QualityPoor, false, ActionWait},
		{"3g", State{Online: true, EffectiveType: "3g"}, QualityGood, true, ActionSyncNow},
		{"4g", State{Online: true, EffectiveType: "4g"}, QualityExcellent, true, ActionSyncNow},
		{"unclassified online", State{Online: true}, QualityExcellent, true, ActionSyncNow},
		{"rtt override", State{Online: true, EffectiveType: "4g", RTT: 250 * time.Millisecond}, QualityPoor, false, ActionWait},
		{"downlink override", State{Online: true, EffectiveType: "4g", DownlinkMbps: 0.5}, QualityPoor, false, ActionWait},
		{"unmeasured downlink no override", State{Online: true, EffectiveType: "4g"}, QualityExcellent, true, ActionSyncNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := DeriveInfo(tt.state)
			if info.ConnectionQuality != tt.quality {
				t.Errorf("quality: expected %s, got %s", tt.quality, info.ConnectionQuality)
			}
			if info.CanSync != tt.canSync {
				t.Errorf("canSync: expected %v, got %v", tt.canSync, info.CanSync)
			}
			if info.RecommendedAction != tt.action {
				t.Errorf("action: expected %s, got %s", tt.action, info.RecommendedAction)
			}
			if info.Message == "" {
				t.Error("expected a user-facing message")
			}
		})
	}
}

func TestDeriveInfo_OfflineNeverSyncs(t *testing.T) {
	// canSync must be false whenever offline, regardless of any
	// quality measurements still present in the snapshot.
	states := []State{
		{Online: false},
		{Online: false, EffectiveType: "4g", DownlinkMbps: 100, RTT: 10 * time.Millisecond},
	}
	for _, s := range states {
		if DeriveInfo(s).CanSync {
			t.Errorf("canSync must be false while offline: %+v", s)
		}
	}
}

func TestMonitor_SubscribeDeliversCurrentStateImmediately(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())
	defer m.Destroy()

	ch := make(chan State, 1)
	unsub := m.Subscribe(func(s State) { ch <- s })
	defer unsub()

	select {
	case s := <-ch:
		if !s.Online || s.EffectiveType != "4g" {
			t.Errorf("unexpected initial state: %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("listener not invoked immediately")
	}
}

func TestMonitor_DeliversChanges(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())
	defer m.Destroy()

	ch := make(chan State, 16)
	unsub := m.Subscribe(func(s State) { ch <- s })
	defer unsub()

	<-ch // initial delivery

	src.Set(Signal{Online: false})
	got := waitForState(t, ch, func(s State) bool { return !s.Online })
	if got.LastOffline.IsZero() {
		t.Error("expected LastOffline to be stamped on the transition")
	}

	src.Set(onlineSignal("3g"))
	got = waitForState(t, ch, func(s State) bool { return s.Online })
	if got.EffectiveType != "3g" {
		t.Errorf("expected 3g state, got %+v", got)
	}
	if got.LastOnline.IsZero() {
		t.Error("expected LastOnline to be stamped on the transition")
	}
}

func TestMonitor_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())
	defer m.Destroy()

	unsub1 := m.Subscribe(func(State) { panic("listener bug") })
	defer unsub1()

	ch := make(chan State, 16)
	unsub2 := m.Subscribe(func(s State) { ch <- s })
	defer unsub2()

	<-ch // initial delivery

	src.Set(Signal{Online: false})
	waitForState(t, ch, func(s State) bool { return !s.Online })
}

func TestMonitor_Unsubscribe(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())
	defer m.Destroy()

	ch := make(chan State, 16)
	unsub := m.Subscribe(func(s State) { ch <- s })
	<-ch

	unsub()
	src.Set(Signal{Online: false})

	// Give the pump a moment; nothing should arrive.
	select {
	case s := <-ch:
		t.Errorf("unsubscribed listener still invoked: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMonitor_DestroyStopsDelivery(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())

	ch := make(chan State, 16)
	m.Subscribe(func(s State) { ch <- s })
	<-ch

	m.Destroy()
	m.Destroy() // idempotent

	if m.GetState().Online != true {
		t.Error("state snapshot should remain readable after destroy")
	}
}

func TestMonitor_ShouldSyncAndStability(t *testing.T) {
	src := NewStaticSource(onlineSignal("4g"))
	m := New(src, testLogger())
	defer m.Destroy()

	if !m.ShouldSync() {
		t.Error("expected ShouldSync on 4g")
	}
	if !m.IsConnectionStable() {
		t.Error("expected stable connection on 4g")
	}
}

func TestMonitor_ConnectionSummary(t *testing.T) {
	src := NewStaticSource(Signal{
		Online:        true,
		EffectiveType: "4g",
		DownlinkMbps:  12.5,
		RTT:           80 * time.Millisecond,
	})
	m := New(src, testLogger())
	defer m.Destroy()

	want := "Online (4g, 12.5 Mbps, 80ms RTT)"
	if got := m.GetConnectionSummary(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestClassifyRTT(t *testing.T) {
	tests := []struct {
		rtt  time.Duration
		want string
	}{
		{50 * time.Millisecond, "4g"},
		{200 * time.Millisecond, "3g"},
		{500 * time.Millisecond, "2g"},
		{900 * time.Millisecond, "slow-2g"},
	}
	for _, tt := range tests {
		if got := classifyRTT(tt.rtt); got != tt.want {
			t.Errorf("classifyRTT(%v): expected %s, got %s", tt.rtt, tt.want, got)
		}
	}
}
