package idle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mockConnection counts disconnect calls.
type mockConnection struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockConnection) Disconnect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func (m *mockConnection) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newTestSupervisor uses an hour-long tick so the background goroutine
// stays quiet and tests drive the countdown through step directly.
func newTestSupervisor(cfg Config, conn Connection) *Supervisor {
	return NewSupervisor(Opts{Config: cfg, Connection: conn, TickInterval: time.Hour})
}

// advance applies n deterministic ticks.
func advance(s *Supervisor, n int) {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop == nil {
			return
		}
		s.step(stop)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{"valid", Config{DurationSeconds: 300, WarningThresholdSeconds: 60, Enabled: true}, ""},
		{"min bounds", Config{DurationSeconds: 30, WarningThresholdSeconds: 5, Enabled: true}, ""},
		{"duration too short", Config{DurationSeconds: 20, WarningThresholdSeconds: 10}, "durationSeconds"},
		{"duration too long", Config{DurationSeconds: 3601, WarningThresholdSeconds: 60}, "durationSeconds"},
		{"warning too small", Config{DurationSeconds: 300, WarningThresholdSeconds: 4}, "warningThresholdSeconds"},
		{"warning equals duration", Config{DurationSeconds: 60, WarningThresholdSeconds: 60}, "warningThresholdSeconds"},
		{"warning above duration", Config{DurationSeconds: 60, WarningThresholdSeconds: 90}, "warningThresholdSeconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error on %s", tt.wantField)
			}
			if err.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", err.Field, tt.wantField)
			}
			if err.Reason == "" {
				t.Error("Reason must be populated")
			}
		})
	}
}

func TestSupervisor_CountdownAndExpiry(t *testing.T) {
	conn := &mockConnection{}
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, conn)

	s.Start()
	st := s.State()
	if !st.IsActive || st.TimeRemaining != 30 || st.IsWarning {
		t.Fatalf("state after start = %+v", st)
	}

	advance(s, 20)
	st = s.State()
	if st.TimeRemaining != 10 {
		t.Errorf("timeRemaining after 20 ticks = %d, want 10", st.TimeRemaining)
	}
	if !st.IsWarning {
		t.Error("isWarning should be true at the threshold")
	}

	advance(s, 10)
	st = s.State()
	if st.IsActive {
		t.Error("supervisor should be inactive after expiry")
	}
	if st.TimeRemaining != 0 {
		t.Errorf("timeRemaining after expiry = %d, want 0", st.TimeRemaining)
	}
	if got := conn.count(); got != 1 {
		t.Errorf("disconnect calls = %d, want exactly 1", got)
	}

	// Further ticks after expiry must not fire again.
	advance(s, 5)
	if got := conn.count(); got != 1 {
		t.Errorf("disconnect calls after extra ticks = %d, want 1", got)
	}
}

func TestSupervisor_ResetRestoresFullDuration(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})
	s.Start()
	advance(s, 25)

	st := s.State()
	if !st.IsWarning {
		t.Fatal("expected warning before reset")
	}

	s.Reset()
	st = s.State()
	if st.TimeRemaining != 30 {
		t.Errorf("timeRemaining after reset = %d, want full duration", st.TimeRemaining)
	}
	if st.IsWarning {
		t.Error("reset should clear the warning when duration > threshold")
	}
	if st.LastActivity == nil {
		t.Error("reset should record lastActivity")
	}
}

func TestSupervisor_ResetInactiveNoOp(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})
	s.Reset()
	if st := s.State(); st.IsActive {
		t.Error("reset while inactive must be a no-op")
	}
}

func TestSupervisor_Stop(t *testing.T) {
	conn := &mockConnection{}
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, conn)
	s.Start()
	advance(s, 5)
	s.Stop()

	st := s.State()
	if st.IsActive || st.TimeRemaining != 0 || st.IsWarning {
		t.Errorf("state after stop = %+v, want inactive zero state", st)
	}
	if conn.count() != 0 {
		t.Error("stop must not call disconnect")
	}
}

func TestSupervisor_TouchGuard(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})
	s.Start()
	advance(s, 12)

	ts := time.Now()
	s.Touch(ts)
	if st := s.State(); st.TimeRemaining != 30 {
		t.Fatalf("timeRemaining after activity = %d, want reset to 30", st.TimeRemaining)
	}

	advance(s, 3)
	// Re-observing the same timestamp must not reset again.
	s.Touch(ts)
	if st := s.State(); st.TimeRemaining != 27 {
		t.Errorf("timeRemaining after duplicate touch = %d, want 27", st.TimeRemaining)
	}

	// A distinct timestamp resets once more.
	s.Touch(ts.Add(time.Second))
	if st := s.State(); st.TimeRemaining != 30 {
		t.Errorf("timeRemaining after new activity = %d, want 30", st.TimeRemaining)
	}
}

func TestSupervisor_TouchWhileInactive(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})
	s.Touch(time.Now())
	if st := s.State(); st.IsActive {
		t.Error("activity while inactive must not start the timer")
	}
}

func TestSupervisor_UpdateConfig(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})

	if err := s.UpdateConfig(Config{DurationSeconds: 20, WarningThresholdSeconds: 10, Enabled: true}); err == nil {
		t.Fatal("expected rejection of durationSeconds=20")
	} else if err.Field != "durationSeconds" {
		t.Errorf("Field = %q, want durationSeconds", err.Field)
	}
	if got := s.Config().DurationSeconds; got != 30 {
		t.Errorf("config after rejected update = %d, want unchanged 30", got)
	}

	var saved []Config
	s.OnConfigChanged(func(c Config) { saved = append(saved, c) })
	if err := s.UpdateConfig(Config{DurationSeconds: 60, WarningThresholdSeconds: 15, Enabled: true}); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}
	if len(saved) != 1 || saved[0].DurationSeconds != 60 {
		t.Errorf("saved configs = %v, want the accepted config once", saved)
	}
}

func TestSupervisor_ConfigAppliesNextCycle(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, &mockConnection{})
	s.Start()
	advance(s, 5)

	if err := s.UpdateConfig(Config{DurationSeconds: 120, WarningThresholdSeconds: 20, Enabled: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// The in-flight countdown keeps its snapshot.
	if st := s.State(); st.TimeRemaining != 25 {
		t.Errorf("timeRemaining = %d, want in-flight countdown unchanged", st.TimeRemaining)
	}

	s.Reset()
	if st := s.State(); st.TimeRemaining != 120 {
		t.Errorf("timeRemaining after reset = %d, want new duration 120", st.TimeRemaining)
	}
}

func TestSupervisor_DisabledConfigStaysInactive(t *testing.T) {
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: false}, &mockConnection{})
	s.Start()
	if st := s.State(); st.IsActive {
		t.Error("disabled supervisor must not start")
	}
}

func TestSupervisor_DisconnectFailureSwallowed(t *testing.T) {
	conn := &mockConnection{err: fmt.Errorf("socket already closed")}
	s := newTestSupervisor(Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true}, conn)
	s.Start()
	advance(s, 30)

	st := s.State()
	if st.IsActive {
		t.Error("failed disconnect must not reopen the timer")
	}
	if conn.count() != 1 {
		t.Errorf("disconnect calls = %d, want 1 (no retry)", conn.count())
	}
}

func TestSupervisor_WarningAtStartWithBadThreshold(t *testing.T) {
	// Misconfiguration that validation rejects; the countdown must still
	// not crash if it carries one.
	s := NewSupervisor(Opts{
		Config:       Config{DurationSeconds: 30, WarningThresholdSeconds: 45, Enabled: true},
		TickInterval: time.Hour,
	})
	s.Start()
	if st := s.State(); !st.IsWarning {
		t.Error("isWarning should be computed immediately at start")
	}
}

func TestSupervisor_TickerExpiry(t *testing.T) {
	// End-to-end with a real ticker: verifies the goroutine path and that
	// exactly one expiry fires.
	conn := &mockConnection{}
	s := NewSupervisor(Opts{
		Config:       Config{DurationSeconds: 30, WarningThresholdSeconds: 10, Enabled: true},
		Connection:   conn,
		TickInterval: time.Millisecond,
	})

	done := make(chan struct{})
	s.OnExpired(func() { close(done) })
	s.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown did not expire")
	}
	// Give the disconnect call a moment to land.
	deadline := time.Now().Add(time.Second)
	for conn.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := conn.count(); got != 1 {
		t.Errorf("disconnect calls = %d, want 1", got)
	}
}
