package snapshot

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/westrik/parley/internal/idle"
	"github.com/westrik/parley/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists snapshots and idle settings keyed by session id.
type Store interface {
	Saver
	// Load returns the snapshot for a session. The bool reports whether
	// one existed; corrupt payloads fall back to (zero, false, nil) so
	// callers degrade to an empty conversation instead of failing.
	Load(sessionID string) (Snapshot, bool, error)
	Delete(sessionID string) error
	SaveIdleConfig(sessionID string, cfg idle.Config) error
	LoadIdleConfig(sessionID string) (idle.Config, bool, error)
	// PurgeOlderThan removes snapshots not updated since cutoff and
	// returns the number of rows deleted.
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

// GormStore implements Store on a GORM connection (sqlite or mysql).
type GormStore struct {
	gdb *gorm.DB
}

// NewGormStore wraps an open connection.
func NewGormStore(gdb *gorm.DB) (*GormStore, error) {
	if gdb == nil {
		return nil, fmt.Errorf("snapshot: store: db is required")
	}
	return &GormStore{gdb: gdb}, nil
}

// Save upserts the session's snapshot row.
func (g *GormStore) Save(snap Snapshot) error {
	payload, err := Encode(snap)
	if err != nil {
		return err
	}
	row := models.ConversationSnapshot{
		SessionID:     snap.SessionID,
		Mode:          string(snap.CurrentMode),
		SchemaVersion: snap.SchemaVersion,
		Payload:       string(payload),
		MessageCount:  snap.MessageCount,
		LastMessageAt: snap.LastMessageAt,
	}
	result := g.gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mode", "schema_version", "payload", "message_count", "last_message_at", "updated_at",
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("snapshot: save session %s: %w", snap.SessionID, result.Error)
	}
	return nil
}

// Load reads and decodes the session's snapshot. A corrupt payload is
// logged and treated as absent.
func (g *GormStore) Load(sessionID string) (Snapshot, bool, error) {
	var row models.ConversationSnapshot
	err := g.gdb.Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: load session %s: %w", sessionID, err)
	}
	snap, err := Decode([]byte(row.Payload))
	if err != nil {
		log.Printf("snapshot: session %s payload corrupt, starting empty: %v", sessionID, err)
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Delete removes the session's snapshot row, if any.
func (g *GormStore) Delete(sessionID string) error {
	result := g.gdb.Where("session_id = ?", sessionID).Delete(&models.ConversationSnapshot{})
	if result.Error != nil {
		return fmt.Errorf("snapshot: delete session %s: %w", sessionID, result.Error)
	}
	return nil
}

// SaveIdleConfig upserts the session's idle settings row.
func (g *GormStore) SaveIdleConfig(sessionID string, cfg idle.Config) error {
	row := models.IdleTimeoutSetting{
		SessionID:               sessionID,
		DurationSeconds:         cfg.DurationSeconds,
		WarningThresholdSeconds: cfg.WarningThresholdSeconds,
		Enabled:                 cfg.Enabled,
	}
	result := g.gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"duration_seconds", "warning_threshold_seconds", "enabled", "updated_at",
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("snapshot: save idle config for %s: %w", sessionID, result.Error)
	}
	return nil
}

// LoadIdleConfig reads the session's idle settings.
func (g *GormStore) LoadIdleConfig(sessionID string) (idle.Config, bool, error) {
	var row models.IdleTimeoutSetting
	err := g.gdb.Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return idle.Config{}, false, nil
	}
	if err != nil {
		return idle.Config{}, false, fmt.Errorf("snapshot: load idle config for %s: %w", sessionID, err)
	}
	return idle.Config{
		DurationSeconds:         row.DurationSeconds,
		WarningThresholdSeconds: row.WarningThresholdSeconds,
		Enabled:                 row.Enabled,
	}, true, nil
}

// PurgeOlderThan deletes stale snapshot rows for the retention sweep.
func (g *GormStore) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result := g.gdb.Where("updated_at < ?", cutoff).Delete(&models.ConversationSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("snapshot: purge: %w", result.Error)
	}
	return result.RowsAffected, nil
}
