package idle

import (
	"context"
	"log"
	"sync"
	"time"
)

// disconnectTimeout bounds the expiry disconnect call.
const disconnectTimeout = 10 * time.Second

// Connection is the external collaborator torn down on expiry.
type Connection interface {
	Disconnect(ctx context.Context) error
}

// State is a snapshot of the countdown for display.
type State struct {
	IsActive      bool       `json:"isActive"`
	TimeRemaining int        `json:"timeRemaining"`
	IsWarning     bool       `json:"isWarning"`
	LastActivity  *time.Time `json:"lastActivity,omitempty"`
}

// Supervisor runs the idle countdown. At most one ticker goroutine is live
// per instance; Start, Reset and Stop cancel it deterministically so no
// handles leak across session boundaries.
type Supervisor struct {
	mu   sync.Mutex
	cfg  Config
	conn Connection

	// tick defaults to one second; tests shorten it.
	tick time.Duration

	active    bool
	remaining int
	warning   bool
	runCfg    Config // config snapshot taken at Start; in-flight countdowns never resize

	lastActivity    time.Time
	hasActivity     bool
	lastSeenTouch   time.Time // activity-reset guard
	hasSeenTouch    bool
	stop            chan struct{} // owned by the live ticker goroutine
	onState         func(State)
	onConfigChanged func(Config)
	onExpired       func()
}

// Opts holds parameters for creating a Supervisor.
type Opts struct {
	Config       Config
	Connection   Connection
	TickInterval time.Duration // defaults to one second
}

// NewSupervisor creates an inactive Supervisor.
func NewSupervisor(opts Opts) *Supervisor {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Supervisor{
		cfg:  cfg,
		conn: opts.Connection,
		tick: tick,
	}
}

// OnState registers a callback fired after every state change.
func (s *Supervisor) OnState(fn func(State)) { s.onState = fn }

// OnConfigChanged registers a callback fired after UpdateConfig accepts a
// new configuration. Used to persist it.
func (s *Supervisor) OnConfigChanged(fn func(Config)) { s.onConfigChanged = fn }

// OnExpired registers a callback fired exactly once per expiry, before the
// disconnect call.
func (s *Supervisor) OnExpired(fn func()) { s.onExpired = fn }

// Config returns the current configuration.
func (s *Supervisor) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns a snapshot of the countdown.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Supervisor) stateLocked() State {
	st := State{
		IsActive:      s.active,
		TimeRemaining: s.remaining,
		IsWarning:     s.warning,
	}
	if s.hasActivity {
		ts := s.lastActivity
		st.LastActivity = &ts
	}
	return st
}

// Start cancels any running countdown and begins a new one at the full
// configured duration. Disabled configurations leave the supervisor
// inactive.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.cancelLocked()
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	s.runCfg = s.cfg
	s.active = true
	s.remaining = s.runCfg.DurationSeconds
	// Computed immediately: a warning threshold at or above the duration
	// is a misconfiguration that validation rejects, but it must not
	// crash a countdown that already carries it.
	s.warning = s.remaining <= s.runCfg.WarningThresholdSeconds

	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(stop)
	s.emitState()
}

// Reset restarts a running countdown at the full duration and records the
// reset as activity. No-op while inactive.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.lastActivity = time.Now()
	s.hasActivity = true
	s.mu.Unlock()
	s.Start()
}

// Stop cancels the countdown and returns all state to inactive.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.cancelLocked()
	s.active = false
	s.remaining = 0
	s.warning = false
	s.mu.Unlock()
	s.emitState()
}

// Touch feeds the conversation's lastActivity signal. A new, distinct
// timestamp while active triggers exactly one reset; re-observing the same
// timestamp is a no-op, which prevents a feedback loop between state
// re-evaluation and timer restarts.
func (s *Supervisor) Touch(ts time.Time) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	if s.hasSeenTouch && ts.Equal(s.lastSeenTouch) {
		s.mu.Unlock()
		return
	}
	s.lastSeenTouch = ts
	s.hasSeenTouch = true
	s.mu.Unlock()
	s.Reset()
}

// UpdateConfig validates and applies cfg. A rejected config returns the
// structured validation error and leaves the current config untouched. An
// accepted config takes effect on the next Start or Reset cycle; a
// countdown already in flight keeps its snapshot.
func (s *Supervisor) UpdateConfig(cfg Config) *ValidationError {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	fn := s.onConfigChanged
	s.mu.Unlock()
	if fn != nil {
		fn(cfg)
	}
	return nil
}

// cancelLocked closes the live ticker goroutine, if any. Caller holds s.mu.
func (s *Supervisor) cancelLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// run is the countdown loop. It exits when its stop channel closes or the
// countdown expires.
func (s *Supervisor) run(stop chan struct{}) {
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if s.step(stop) {
				return
			}
		}
	}
}

// step applies one tick. Returns true when the goroutine should exit.
func (s *Supervisor) step(stop chan struct{}) bool {
	s.mu.Lock()
	if s.stop != stop || !s.active {
		// A newer countdown superseded this goroutine.
		s.mu.Unlock()
		return true
	}
	s.remaining--
	if s.remaining > 0 {
		s.warning = s.remaining <= s.runCfg.WarningThresholdSeconds
		s.mu.Unlock()
		s.emitState()
		return false
	}

	// Expired: exactly one transition per run.
	s.remaining = 0
	s.warning = true
	s.active = false
	s.stop = nil
	conn := s.conn
	expired := s.onExpired
	s.mu.Unlock()

	s.emitState()
	if expired != nil {
		expired()
	}
	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := conn.Disconnect(ctx); err != nil {
			// Swallowed: a failed disconnect never reopens the timer.
			log.Printf("idle: disconnect on expiry failed: %v", err)
		}
	}
	return true
}

func (s *Supervisor) emitState() {
	if s.onState != nil {
		s.onState(s.State())
	}
}
