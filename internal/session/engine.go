// Package session wires the conversation store, turn reconciler, idle
// supervisor and snapshot writer into one disposable engine per
// conversation session.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/westrik/parley/internal/conversation"
	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/notify"
	"github.com/westrik/parley/internal/snapshot"
)

// notifyTimeout bounds best-effort digest delivery.
const notifyTimeout = 10 * time.Second

// TextSender delivers an explicit text message over the realtime transport
// before it is committed to the store. A send failure means the message is
// not stored.
type TextSender interface {
	SendText(ctx context.Context, content string) error
}

// Engine is the per-session facade the UI layer talks to. One instance per
// session; Close releases every timer and pending write it owns.
type Engine struct {
	sessionID string
	store     *conversation.Store
	rec       *conversation.Reconciler
	sup       *idle.Supervisor
	writer    *snapshot.Writer
	snaps     snapshot.Store
	sender    TextSender
	notifiers []notify.Adapter
}

// Opts holds parameters for creating an Engine. Only SessionID is
// required; absent collaborators degrade to local-only behavior.
type Opts struct {
	SessionID  string
	Mode       conversation.Mode
	Snapshots  snapshot.Store  // nil disables persistence
	Connection idle.Connection // disconnected on idle expiry
	Sender     TextSender      // transport for explicit text sends
	Notifiers  []notify.Adapter
	IdleConfig idle.Config // overridden by a persisted per-session config

	DebounceDelay time.Duration // defaults to snapshot.DefaultDebounce
	TickInterval  time.Duration // defaults to one second
}

// New creates an Engine, restoring any persisted snapshot and idle config
// for the session.
func New(opts Opts) (*Engine, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("session: session id is required")
	}
	mode := opts.Mode
	if mode == "" {
		mode = conversation.ModeVoice
	}

	store := conversation.NewStore(opts.SessionID, mode)

	idleCfg := opts.IdleConfig
	if idleCfg == (idle.Config{}) {
		idleCfg = idle.DefaultConfig()
	}

	// Restore before wiring callbacks so loading does not arm a write or
	// reset the timer.
	if opts.Snapshots != nil {
		if snap, ok, err := opts.Snapshots.Load(opts.SessionID); err != nil {
			log.Printf("session %s: snapshot restore failed, starting empty: %v", opts.SessionID, err)
		} else if ok {
			store.AddMessages(snap.Messages)
		}
		if cfg, ok, err := opts.Snapshots.LoadIdleConfig(opts.SessionID); err != nil {
			log.Printf("session %s: idle config restore failed, using defaults: %v", opts.SessionID, err)
		} else if ok {
			idleCfg = cfg
		}
	}

	e := &Engine{
		sessionID: opts.SessionID,
		store:     store,
		rec:       conversation.NewReconciler(store),
		snaps:     opts.Snapshots,
		sender:    opts.Sender,
		notifiers: opts.Notifiers,
	}

	e.sup = idle.NewSupervisor(idle.Opts{
		Config:       idleCfg,
		Connection:   opts.Connection,
		TickInterval: opts.TickInterval,
	})
	e.sup.OnExpired(func() { e.postDigest("idle-timeout") })
	e.sup.OnConfigChanged(func(cfg idle.Config) {
		if e.snaps == nil {
			return
		}
		if err := e.snaps.SaveIdleConfig(e.sessionID, cfg); err != nil {
			log.Printf("session %s: persist idle config failed: %v", e.sessionID, err)
		}
	})

	if opts.Snapshots != nil {
		e.writer = snapshot.NewWriter(
			func() snapshot.Snapshot { return snapshot.Capture(store) },
			opts.Snapshots,
			opts.DebounceDelay,
		)
		store.OnMutate(e.writer.Arm)
		store.OnFlush(e.writer.Flush)
	}
	store.OnActivity(e.sup.Touch)

	return e, nil
}

// SessionID returns the engine's session key.
func (e *Engine) SessionID() string { return e.sessionID }

// PushSegment feeds one transcript segment through the reconciler.
func (e *Engine) PushSegment(seg conversation.Segment) {
	e.rec.HandleSegment(seg)
}

// AddTextMessage sends content over the transport and, on success, commits
// it as a final chat message. A transport failure propagates to the caller
// and the message is not stored.
func (e *Engine) AddTextMessage(ctx context.Context, content string) error {
	if e.sender != nil {
		if err := e.sender.SendText(ctx, content); err != nil {
			return fmt.Errorf("session %s: send text: %w", e.sessionID, err)
		}
	}
	e.store.AddMessage(conversation.Message{
		ID:             conversation.NewID(),
		Type:           conversation.TypeChat,
		Sender:         conversation.SenderUser,
		Content:        content,
		Timestamp:      time.Now(),
		DeliveryMethod: conversation.DeliveryData,
	})
	return nil
}

// Messages returns the sorted transcript view.
func (e *Engine) Messages() []conversation.Message {
	return e.store.SortedView()
}

// Preview returns the live interim preview for a speaker, or nil.
func (e *Engine) Preview(speaker conversation.Sender) *conversation.Preview {
	return e.rec.Preview(speaker)
}

// OnPreview registers a callback for preview changes.
func (e *Engine) OnPreview(fn func(conversation.Sender, *conversation.Preview)) {
	e.rec.OnPreview(fn)
}

// ClearConversation posts a digest for the old content, releases speaker
// tracking and empties the store. The cleared state is flushed immediately.
func (e *Engine) ClearConversation() {
	e.postDigest("cleared")
	e.rec.Stop()
	e.store.Clear()
}

// StopTranscription releases all speaker tracking and previews. Messages
// already committed stay.
func (e *Engine) StopTranscription() {
	e.rec.Stop()
}

// StartTimer begins the idle countdown at the full configured duration.
func (e *Engine) StartTimer() { e.sup.Start() }

// ResetTimer restarts a running countdown; no-op while inactive.
func (e *Engine) ResetTimer() { e.sup.Reset() }

// StopTimer cancels the countdown.
func (e *Engine) StopTimer() { e.sup.Stop() }

// IdleState returns the countdown snapshot.
func (e *Engine) IdleState() idle.State { return e.sup.State() }

// IdleConfig returns the current idle configuration.
func (e *Engine) IdleConfig() idle.Config { return e.sup.Config() }

// UpdateIdleConfig validates, applies and persists cfg. The structured
// validation error is returned as a value for inline rendering.
func (e *Engine) UpdateIdleConfig(cfg idle.Config) *idle.ValidationError {
	return e.sup.UpdateConfig(cfg)
}

// Close tears the engine down: the countdown stops, speaker tracking is
// released, and any pending snapshot write is force-flushed.
func (e *Engine) Close() {
	e.sup.Stop()
	e.rec.Stop()
	if e.writer != nil {
		e.writer.Close()
	}
}

func (e *Engine) postDigest(reason string) {
	if len(e.notifiers) == 0 {
		return
	}
	d := notify.Digest{
		SessionID:    e.sessionID,
		Reason:       reason,
		MessageCount: e.store.Len(),
	}
	if ts, ok := e.store.LastActivity(); ok {
		d.LastMessageAt = &ts
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	notify.Post(ctx, d, e.notifiers...)
}
