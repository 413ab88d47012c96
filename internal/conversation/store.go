package conversation

import (
	"log"
	"sort"
	"sync"
	"time"
)

// entry pairs a message with its insertion sequence number. The sequence
// number is the tie-break for equal timestamps, which keeps the sorted
// view stable across re-sorts.
type entry struct {
	msg Message
	seq uint64
}

// Store is the ordered, deduplicated collection of conversation messages
// for one session. All mutations are serialized behind a mutex; callbacks
// fire while the lock is NOT held.
type Store struct {
	mu        sync.Mutex
	sessionID string
	mode      Mode
	entries   []entry
	index     map[string]int // message id -> slot in entries
	nextSeq   uint64

	lastActivity time.Time
	hasActivity  bool

	// onMutate arms the debounced snapshot writer. onFlush requests an
	// immediate write, used before destructive transitions. onActivity
	// carries the new lastActivity high-water mark.
	onMutate   func()
	onFlush    func()
	onActivity func(time.Time)
}

// NewStore creates an empty Store for the given session.
func NewStore(sessionID string, mode Mode) *Store {
	return &Store{
		sessionID: sessionID,
		mode:      mode,
		index:     make(map[string]int),
	}
}

// OnMutate registers the callback invoked after every mutating operation.
func (s *Store) OnMutate(fn func()) { s.onMutate = fn }

// OnFlush registers the callback invoked when a write must be durable
// immediately rather than debounced.
func (s *Store) OnFlush(fn func()) { s.onFlush = fn }

// OnActivity registers the callback invoked when lastActivity advances.
func (s *Store) OnActivity(fn func(time.Time)) { s.onActivity = fn }

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string { return s.sessionID }

// Mode returns the session mode.
func (s *Store) Mode() Mode { return s.mode }

// AddMessage inserts msg into the store. Inserts are idempotent by id: a
// message whose id is already present is ignored and the first occurrence
// wins. A final transcription first attempts to replace a live interim
// entry from the same sender in place (same slot, so the relative order is
// preserved); all other messages append. Returns true if the store changed.
func (s *Store) AddMessage(msg Message) bool {
	s.mu.Lock()
	if _, dup := s.index[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}

	if i := findInterimMatch(s.messagesLocked(), msg); i >= 0 {
		old := s.entries[i].msg
		delete(s.index, old.ID)
		s.entries[i].msg = msg
		s.index[msg.ID] = i
	} else {
		s.entries = append(s.entries, entry{msg: msg, seq: s.nextSeq})
		s.index[msg.ID] = len(s.entries) - 1
		s.nextSeq++
	}

	activity := s.touchActivityLocked(msg.Timestamp)
	s.mu.Unlock()

	s.notify(activity)
	return true
}

// AddMessages inserts each message in order; lastActivity reflects the
// last element processed.
func (s *Store) AddMessages(msgs []Message) {
	for _, m := range msgs {
		s.AddMessage(m)
	}
}

// Update holds the fields UpdateMessage may merge into a message. Nil
// fields are left untouched. The union tag and sender are immutable.
type Update struct {
	Content    *string
	Timestamp  *time.Time
	IsFinal    *bool
	Confidence *float64
	Language   *string
}

// UpdateMessage merges upd into the message matching id. An unknown id is
// logged and ignored, never an error for the caller. Returns true if a
// message was updated.
func (s *Store) UpdateMessage(id string, upd Update) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		log.Printf("conversation: update for unknown message id %s, ignoring", id)
		return false
	}

	m := &s.entries[i].msg
	if upd.Content != nil {
		m.Content = *upd.Content
	}
	if upd.IsFinal != nil {
		m.IsFinal = *upd.IsFinal
	}
	if upd.Confidence != nil {
		m.Confidence = upd.Confidence
	}
	if upd.Language != nil {
		m.Language = *upd.Language
	}
	activity := false
	if upd.Timestamp != nil {
		m.Timestamp = *upd.Timestamp
		activity = s.touchActivityLocked(*upd.Timestamp)
	}
	s.mu.Unlock()

	s.notify(activity)
	return true
}

// Get returns a copy of the message matching id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.entries[i].msg, true
}

// SortedView returns the messages ordered by timestamp ascending with a
// stable tie-break on insertion order. The slice is recomputed on every
// call and safe for the caller to hold.
func (s *Store) SortedView() []Message {
	s.mu.Lock()
	view := make([]entry, len(s.entries))
	copy(view, s.entries)
	s.mu.Unlock()

	sort.Slice(view, func(a, b int) bool {
		if !view[a].msg.Timestamp.Equal(view[b].msg.Timestamp) {
			return view[a].msg.Timestamp.Before(view[b].msg.Timestamp)
		}
		return view[a].seq < view[b].seq
	})

	out := make([]Message, len(view))
	for i, e := range view {
		out[i] = e.msg
	}
	return out
}

// Len returns the number of messages in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LastActivity returns the maximum timestamp among processed messages, or
// false when the store has seen none since creation or the last Clear.
func (s *Store) LastActivity() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity, s.hasActivity
}

// Clear empties the store and resets lastActivity. The sessionId is
// unchanged. The cleared state is flushed immediately rather than
// debounced so the destructive transition is durable.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.index = make(map[string]int)
	s.lastActivity = time.Time{}
	s.hasActivity = false
	s.mu.Unlock()

	if s.onFlush != nil {
		s.onFlush()
	}
}

// touchActivityLocked advances lastActivity to ts if it is newer. Returns
// true when the high-water mark moved. Caller holds s.mu.
func (s *Store) touchActivityLocked(ts time.Time) bool {
	if s.hasActivity && !ts.After(s.lastActivity) {
		return false
	}
	s.lastActivity = ts
	s.hasActivity = true
	return true
}

// messagesLocked returns the raw message slice for the pure match helper.
// Caller holds s.mu.
func (s *Store) messagesLocked() []Message {
	msgs := make([]Message, len(s.entries))
	for i, e := range s.entries {
		msgs[i] = e.msg
	}
	return msgs
}

// notify fires the mutation and activity callbacks outside the lock.
func (s *Store) notify(activity bool) {
	if s.onMutate != nil {
		s.onMutate()
	}
	if activity && s.onActivity != nil {
		s.mu.Lock()
		ts := s.lastActivity
		s.mu.Unlock()
		s.onActivity(ts)
	}
}
