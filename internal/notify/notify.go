// Package notify posts session-end digests to chat platforms. Delivery is
// always best-effort: failures are logged and the engine continues.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Digest summarizes a conversation session when it ends.
type Digest struct {
	SessionID     string
	Reason        string // "idle-timeout" or "cleared"
	MessageCount  int
	LastMessageAt *time.Time
}

// Adapter is the interface platform-specific senders must satisfy.
type Adapter interface {
	// Send posts the digest to the platform.
	Send(ctx context.Context, d Digest) error
	// Close releases the platform connection.
	Close() error
}

// FormatDigest renders the digest as plain text shared by all senders.
func FormatDigest(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s ended (%s): %d messages", d.SessionID, d.Reason, d.MessageCount)
	if d.LastMessageAt != nil {
		fmt.Fprintf(&b, ", last at %s", d.LastMessageAt.Format(time.RFC3339))
	}
	return b.String()
}

// Post sends a digest through each adapter, logging failures rather than
// returning them.
func Post(ctx context.Context, d Digest, adapters ...Adapter) {
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if err := a.Send(ctx, d); err != nil {
			log.Printf("notify: digest for session %s failed: %v", d.SessionID, err)
		}
	}
}
