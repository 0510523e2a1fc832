// Package learning implements the belief-update cycle: comparing closed
// episodes, extracting conceptual insights, and producing bounded,
// auditable updates to the persistent belief state.
package learning

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/frontieralpha/conviction/internal/database"
	"github.com/frontieralpha/conviction/internal/domain"
)

// ErrBeliefVersionConflict is returned when a belief save loses an
// optimistic-lock race: the stored version no longer matches the
// version the cycle loaded.
var ErrBeliefVersionConflict = errors.New("belief version conflict")

// BeliefsRepository persists belief states, compact version snapshots,
// and cycle history.
type BeliefsRepository struct {
	db  *sql.DB // beliefs.db - beliefs, belief_snapshots, cycles tables
	log zerolog.Logger
}

// NewBeliefsRepository creates a new beliefs repository
func NewBeliefsRepository(db *sql.DB, log zerolog.Logger) *BeliefsRepository {
	return &BeliefsRepository{
		db:  db,
		log: log.With().Str("repo", "beliefs").Logger(),
	}
}

// GetBeliefs loads the belief state for a scope, or nil when none exists
func (r *BeliefsRepository) GetBeliefs(scope string) (*domain.BeliefState, error) {
	var state string
	err := r.db.QueryRow("SELECT state FROM beliefs WHERE scope = ?", scope).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get beliefs: %w", err)
	}

	var beliefs domain.BeliefState
	if err := json.Unmarshal([]byte(state), &beliefs); err != nil {
		return nil, fmt.Errorf("failed to decode beliefs: %w", err)
	}

	return &beliefs, nil
}

// SaveBeliefs persists a new belief version. expectedPriorVersion is the
// version the caller loaded; the write is rejected with
// ErrBeliefVersionConflict when the stored version has moved on, so
// concurrent cycles against the same scope cannot silently overwrite
// each other. The state row and its msgpack snapshot are written in one
// transaction: a version never exists without its audit snapshot.
func (r *BeliefsRepository) SaveBeliefs(beliefs *domain.BeliefState, scope string, expectedPriorVersion int) error {
	state, err := json.Marshal(beliefs)
	if err != nil {
		return fmt.Errorf("failed to encode beliefs: %w", err)
	}
	blob, err := msgpack.Marshal(beliefs)
	if err != nil {
		return fmt.Errorf("failed to encode belief snapshot: %w", err)
	}

	now := time.Now().Unix()

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE beliefs SET version = ?, state = ?, updated_at = ?
			WHERE scope = ? AND version = ?`,
			beliefs.Version, string(state), now, scope, expectedPriorVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to update beliefs: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check beliefs update: %w", err)
		}

		if affected == 0 {
			// Either no row yet, or a version race
			var storedVersion int
			err := tx.QueryRow("SELECT version FROM beliefs WHERE scope = ?", scope).Scan(&storedVersion)
			if errors.Is(err, sql.ErrNoRows) {
				_, err := tx.Exec(`
					INSERT INTO beliefs (scope, version, state, updated_at)
					VALUES (?, ?, ?, ?)`,
					scope, beliefs.Version, string(state), now,
				)
				if err != nil {
					return fmt.Errorf("failed to insert beliefs: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("failed to check stored belief version: %w", err)
			} else {
				r.log.Warn().
					Str("scope", scope).
					Int("expected", expectedPriorVersion).
					Int("stored", storedVersion).
					Msg("Belief version conflict, rejecting save")
				return ErrBeliefVersionConflict
			}
		}

		_, err = tx.Exec(`
			INSERT OR REPLACE INTO belief_snapshots (scope, version, snapshot, created_at)
			VALUES (?, ?, ?, ?)`,
			scope, beliefs.Version, blob, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save belief snapshot: %w", err)
		}

		return nil
	})
}

// GetSnapshot loads a specific historical belief version, or nil when
// no snapshot exists for that version.
func (r *BeliefsRepository) GetSnapshot(scope string, version int) (*domain.BeliefState, error) {
	var blob []byte
	err := r.db.QueryRow(
		"SELECT snapshot FROM belief_snapshots WHERE scope = ? AND version = ?",
		scope, version,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get belief snapshot: %w", err)
	}

	var beliefs domain.BeliefState
	if err := msgpack.Unmarshal(blob, &beliefs); err != nil {
		return nil, fmt.Errorf("failed to decode belief snapshot: %w", err)
	}

	return &beliefs, nil
}

// DeleteBeliefs removes the belief state for a scope (reset to defaults
// happens on next load). Snapshots are kept as history.
func (r *BeliefsRepository) DeleteBeliefs(scope string) error {
	if _, err := r.db.Exec("DELETE FROM beliefs WHERE scope = ?", scope); err != nil {
		return fmt.Errorf("failed to delete beliefs: %w", err)
	}
	return nil
}

// SaveCycleResult stores a completed cycle in history
func (r *BeliefsRepository) SaveCycleResult(result *domain.CycleResult, cycleNumber int, scope string) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode cycle result: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO cycles (scope, cycle_number, result, completed_at)
		VALUES (?, ?, ?, ?)`,
		scope, cycleNumber, string(encoded), result.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle result: %w", err)
	}

	return nil
}

// GetCycleHistory returns the most recent cycle results, newest first
func (r *BeliefsRepository) GetCycleHistory(scope string, n int) ([]*domain.CycleResult, error) {
	rows, err := r.db.Query(`
		SELECT result FROM cycles
		WHERE scope = ?
		ORDER BY cycle_number DESC LIMIT ?`,
		scope, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle history: %w", err)
	}
	defer rows.Close()

	var results []*domain.CycleResult
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("failed to scan cycle result: %w", err)
		}

		var result domain.CycleResult
		if err := json.Unmarshal([]byte(encoded), &result); err != nil {
			return nil, fmt.Errorf("failed to decode cycle result: %w", err)
		}
		results = append(results, &result)
	}

	return results, rows.Err()
}

// NextCycleNumber returns the next cycle number for a scope
func (r *BeliefsRepository) NextCycleNumber(scope string) (int, error) {
	var maxNumber sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(cycle_number) FROM cycles WHERE scope = ?", scope).Scan(&maxNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to get max cycle number: %w", err)
	}

	if !maxNumber.Valid {
		return 1, nil
	}
	return int(maxNumber.Int64) + 1, nil
}
