package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/semfield/internal/field"
)

// ErrNoSnapshot reports that no saved state exists for a field.
var ErrNoSnapshot = errors.New("no snapshot for field")

// SnapshotInfo summarizes one stored snapshot.
type SnapshotInfo struct {
	FieldID  string    `json:"field_id"`
	SavedAt  time.Time `json:"saved_at"`
	Patterns int       `json:"patterns"`
}

// SaveSnapshot upserts a field snapshot keyed by field id. The latest
// save wins; restore always returns the most recent state.
func (s *Store) SaveSnapshot(ctx context.Context, snap field.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO field_snapshots (field_id, state, pattern_count, saved_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (field_id)
		DO UPDATE SET state = $2, pattern_count = $3, saved_at = now()`,
		snap.FieldID, data, len(snap.Patterns),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.FieldID, err)
	}
	return nil
}

// LoadSnapshot retrieves the saved state for a field.
func (s *Store) LoadSnapshot(ctx context.Context, fieldID string) (field.Snapshot, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT state FROM field_snapshots WHERE field_id = $1`, fieldID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return field.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, fieldID)
	}
	if err != nil {
		return field.Snapshot{}, fmt.Errorf("load snapshot %s: %w", fieldID, err)
	}
	var snap field.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return field.Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", fieldID, err)
	}
	return snap, nil
}

// ListSnapshots returns stored snapshots ordered by field id.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(ctx, `
		SELECT field_id, saved_at, pattern_count
		FROM field_snapshots
		ORDER BY field_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.FieldID, &info.SavedAt, &info.Patterns); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// DeleteSnapshot removes the saved state for a field, if any.
func (s *Store) DeleteSnapshot(ctx context.Context, fieldID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM field_snapshots WHERE field_id = $1`, fieldID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", fieldID, err)
	}
	return nil
}
