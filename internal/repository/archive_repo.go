package repository

import (
	"context"
	"fmt"
	"log"

	"collabpad/internal/models"
	"collabpad/internal/protocol"

	"gorm.io/gorm"
)

// snapshotKeep bounds stored snapshots per room; older rows are pruned
// as new ones land.
const snapshotKeep = 100

// ArchiveRepository persists document snapshots and activity notes.
// The session layer calls it off the mutation path, so a slow database
// never stalls a room.
type ArchiveRepository struct {
	db   *gorm.DB
	keep int
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db, keep: snapshotKeep}
}

// SaveSnapshot stores the document body after an accepted update and
// prunes rows beyond the per-room cap. A prune failure never fails the
// write itself.
func (r *ArchiveRepository) SaveSnapshot(ctx context.Context, roomID, content string) error {
	snapshot := &models.DocumentSnapshot{
		RoomID:  roomID,
		Content: content,
	}

	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	if err := r.PruneSnapshots(ctx, roomID, r.keep); err != nil {
		log.Printf("Failed to prune snapshots for room %s: %v", roomID, err)
	}
	return nil
}

// SaveNote stores a relayed activity note.
func (r *ArchiveRepository) SaveNote(ctx context.Context, roomID string, note protocol.ActivityPayload) error {
	row := &models.ActivityNote{
		RoomID: roomID,
		User:   note.User,
		Change: note.Change,
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to store activity note: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a room, or nil
// when none exists.
func (r *ArchiveRepository) LatestSnapshot(ctx context.Context, roomID string) (*models.DocumentSnapshot, error) {
	var snapshot models.DocumentSnapshot

	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		First(&snapshot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return &snapshot, nil
}

// RecentNotes returns up to limit notes for a room, newest first.
func (r *ArchiveRepository) RecentNotes(ctx context.Context, roomID string, limit int) ([]*models.ActivityNote, error) {
	var notes []*models.ActivityNote

	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get activity notes: %w", err)
	}

	return notes, nil
}

// PruneSnapshots keeps only the newest keepCount snapshots per room.
// Call periodically to bound growth.
func (r *ArchiveRepository) PruneSnapshots(ctx context.Context, roomID string, keepCount int) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DocumentSnapshot{}).
		Where("room_id = ?", roomID).
		Count(&count).Error; err != nil {
		return err
	}

	if count <= int64(keepCount) {
		return nil
	}

	var cutoff models.DocumentSnapshot
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Offset(keepCount - 1).
		First(&cutoff).Error
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Where("room_id = ? AND created_at < ?", roomID, cutoff.CreatedAt).
		Delete(&models.DocumentSnapshot{}).Error
}
