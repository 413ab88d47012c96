package conversation

import (
	"sync"
	"time"
)

// tracking holds the live message ids for one speaker. At most one interim
// and one final id are live at any time.
type tracking struct {
	interimID string
	finalID   string
}

func (t *tracking) reset() {
	t.interimID = ""
	t.finalID = ""
}

// Reconciler consumes the per-speaker stream of interim/final segments and
// translates it into Store operations using turn-taking rules. The speaker
// domain is closed (user/agent), so tracking is a fixed pair of records
// rather than a map.
type Reconciler struct {
	mu    sync.Mutex
	store *Store

	user  tracking
	agent tracking

	// turnOwner is the speaker who produced the most recent final
	// content. Empty until the first final segment.
	turnOwner Sender

	userPreview  *Preview
	agentPreview *Preview

	// onPreview fires on every preview change; a nil Preview means the
	// speaker's preview was cleared.
	onPreview func(Sender, *Preview)
}

// NewReconciler creates a Reconciler feeding the given store.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{store: store}
}

// OnPreview registers the callback invoked whenever a speaker's live
// interim preview is published or cleared.
func (r *Reconciler) OnPreview(fn func(Sender, *Preview)) { r.onPreview = fn }

// HandleSegment applies one transcript segment to the store. Segments with
// an unknown speaker or empty text degrade to a no-op rather than failing
// the caller.
func (r *Reconciler) HandleSegment(seg Segment) {
	if seg.Speaker != SenderUser && seg.Speaker != SenderAgent {
		return
	}
	if seg.Timestamp.IsZero() {
		seg.Timestamp = time.Now()
	}
	if seg.Final {
		r.handleFinal(seg)
	} else {
		r.handleInterim(seg)
	}
}

// handleFinal commits a final segment. Within one uninterrupted turn the
// same message id keeps accumulating; a speaker change closes the other
// speaker's turn first.
func (r *Reconciler) handleFinal(seg Segment) {
	r.mu.Lock()

	if r.turnOwner != "" && r.turnOwner != seg.Speaker {
		// The opponent's turn is closed and cannot be appended to.
		r.trackingFor(other(seg.Speaker)).reset()
	}
	r.turnOwner = seg.Speaker

	tr := r.trackingFor(seg.Speaker)
	switch {
	case tr.interimID != "" && tr.finalID == "":
		// First final of the turn converts the live interim in place.
		id := tr.interimID
		tr.finalID = id
		tr.interimID = ""
		r.mu.Unlock()
		final := true
		r.store.UpdateMessage(id, Update{
			Content:    &seg.Text,
			Timestamp:  &seg.Timestamp,
			IsFinal:    &final,
			Confidence: seg.Confidence,
		})

	case tr.finalID != "":
		// Same unbroken turn: concatenate onto the existing message.
		id := tr.finalID
		r.mu.Unlock()
		existing, ok := r.store.Get(id)
		if !ok {
			// Tracking outlived the message (e.g. cleared store);
			// fall back to a fresh final message.
			r.createFinal(seg)
			break
		}
		joined := existing.Content + " " + seg.Text
		r.store.UpdateMessage(id, Update{
			Content:   &joined,
			Timestamp: &seg.Timestamp,
		})

	default:
		// Fresh turn with no prior interim.
		r.mu.Unlock()
		r.createFinal(seg)
	}

	r.clearPreview(seg.Speaker)
}

// handleInterim updates the provisional entry for a speaker. Interim text
// never commits durable content on its own; only final segments do.
func (r *Reconciler) handleInterim(seg Segment) {
	r.mu.Lock()

	if r.turnOwner != "" && r.turnOwner != seg.Speaker {
		// Barge-in: the opposing speaker's interim is stale, and so is
		// any final id this speaker carried from an earlier turn. This
		// lets an interruption start a fresh message instead of
		// appending to a closed turn.
		r.trackingFor(other(seg.Speaker)).interimID = ""
		r.trackingFor(seg.Speaker).finalID = ""
	}

	tr := r.trackingFor(seg.Speaker)
	switch {
	case tr.finalID != "":
		// The turn is already finalized; trailing interim noise must
		// not perturb it. The preview below still shows the text.
		r.mu.Unlock()

	case tr.interimID != "":
		id := tr.interimID
		r.mu.Unlock()
		r.store.UpdateMessage(id, Update{
			Content:   &seg.Text,
			Timestamp: &seg.Timestamp,
			Language:  &seg.Language,
		})

	default:
		msg := Message{
			ID:        NewID(),
			Type:      TypeTranscription,
			Sender:    seg.Speaker,
			Content:   seg.Text,
			Timestamp: seg.Timestamp,
			IsFinal:   false,
			Language:  seg.Language,
		}
		tr.interimID = msg.ID
		r.mu.Unlock()
		r.store.AddMessage(msg)
	}

	r.publishPreview(seg)
}

// createFinal appends a brand-new final message and records its id as the
// speaker's live final id.
func (r *Reconciler) createFinal(seg Segment) {
	msg := Message{
		ID:         NewID(),
		Type:       TypeTranscription,
		Sender:     seg.Speaker,
		Content:    seg.Text,
		Timestamp:  seg.Timestamp,
		IsFinal:    true,
		Confidence: seg.Confidence,
		Language:   seg.Language,
	}
	r.mu.Lock()
	r.trackingFor(seg.Speaker).finalID = msg.ID
	r.mu.Unlock()
	r.store.AddMessage(msg)
}

// Preview returns the current live interim preview for a speaker, or nil.
func (r *Reconciler) Preview(speaker Sender) *Preview {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch speaker {
	case SenderUser:
		return r.userPreview
	case SenderAgent:
		return r.agentPreview
	}
	return nil
}

// Stop releases all speaker tracking state and clears both previews.
// Tracking never carries over into a new transcription session.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.user.reset()
	r.agent.reset()
	r.turnOwner = ""
	r.userPreview = nil
	r.agentPreview = nil
	fn := r.onPreview
	r.mu.Unlock()

	if fn != nil {
		fn(SenderUser, nil)
		fn(SenderAgent, nil)
	}
}

func (r *Reconciler) publishPreview(seg Segment) {
	p := &Preview{Speaker: seg.Speaker, Text: seg.Text, Timestamp: seg.Timestamp}
	r.mu.Lock()
	r.setPreviewLocked(seg.Speaker, p)
	fn := r.onPreview
	r.mu.Unlock()
	if fn != nil {
		fn(seg.Speaker, p)
	}
}

func (r *Reconciler) clearPreview(speaker Sender) {
	r.mu.Lock()
	r.setPreviewLocked(speaker, nil)
	fn := r.onPreview
	r.mu.Unlock()
	if fn != nil {
		fn(speaker, nil)
	}
}

func (r *Reconciler) setPreviewLocked(speaker Sender, p *Preview) {
	if speaker == SenderUser {
		r.userPreview = p
	} else {
		r.agentPreview = p
	}
}

func (r *Reconciler) trackingFor(s Sender) *tracking {
	if s == SenderUser {
		return &r.user
	}
	return &r.agent
}

func other(s Sender) Sender {
	if s == SenderUser {
		return SenderAgent
	}
	return SenderUser
}
