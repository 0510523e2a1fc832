// Package episodes manages the episode lifecycle: opening episodes,
// appending trading decisions, and closing episodes with realized metrics.
package episodes

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/frontieralpha/conviction/internal/domain"
)

// episodesColumns is the list of columns for the episodes table.
// Column order must match scanEpisode expectations.
const episodesColumns = `id, scope, number, status, started_at, ended_at, portfolio_return, sharpe_ratio, max_drawdown, factor_exposures`

// decisionsColumns is the list of columns for the decisions table
const decisionsColumns = `id, episode_id, timestamp, symbol, action, weight_before, weight_after, reason, confidence, attribution, outcome_return`

// Repository handles episode and decision database operations
type Repository struct {
	db  *sql.DB // episodes.db - episodes and decisions tables
	log zerolog.Logger
}

// NewRepository creates a new episode repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "episodes").Logger(),
	}
}

// CreateEpisode inserts a new active episode
func (r *Repository) CreateEpisode(episode *domain.Episode) error {
	exposures, err := marshalFactorMap(episode.FactorExposures)
	if err != nil {
		return fmt.Errorf("failed to encode factor exposures: %w", err)
	}

	query := `
		INSERT INTO episodes
		(id, scope, number, status, started_at, ended_at, portfolio_return,
		 sharpe_ratio, max_drawdown, factor_exposures, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var endedAt interface{}
	if episode.EndedAt != nil {
		endedAt = episode.EndedAt.Unix()
	}

	_, err = r.db.Exec(query,
		episode.ID,
		episode.Scope,
		episode.Number,
		string(episode.Status),
		episode.StartedAt.Unix(),
		endedAt,
		episode.PortfolioReturn,
		episode.SharpeRatio,
		episode.MaxDrawdown,
		exposures,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}

	r.log.Info().
		Str("episode_id", episode.ID).
		Int("number", episode.Number).
		Str("scope", episode.Scope).
		Msg("Episode created")

	return nil
}

// GetActiveEpisode returns the active episode for a scope, or nil when
// no episode is active.
func (r *Repository) GetActiveEpisode(scope string) (*domain.Episode, error) {
	query := "SELECT " + episodesColumns + " FROM episodes WHERE scope = ? AND status = 'active' LIMIT 1"

	row := r.db.QueryRow(query, scope)
	episode, err := r.scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active episode: %w", err)
	}

	if err := r.loadDecisions(episode); err != nil {
		return nil, err
	}

	return episode, nil
}

// GetRecentEpisodes returns the most recently closed episodes for a
// scope, newest first, with decisions loaded.
func (r *Repository) GetRecentEpisodes(scope string, n int) ([]*domain.Episode, error) {
	query := "SELECT " + episodesColumns + ` FROM episodes
		WHERE scope = ? AND status = 'closed'
		ORDER BY number DESC LIMIT ?`

	rows, err := r.db.Query(query, scope, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent episodes: %w", err)
	}
	defer rows.Close()

	var result []*domain.Episode
	for rows.Next() {
		episode, err := r.scanEpisodeFromRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episodes: %w", err)
	}

	for _, episode := range result {
		if err := r.loadDecisions(episode); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// NextEpisodeNumber returns the next episode number for a scope
func (r *Repository) NextEpisodeNumber(scope string) (int, error) {
	var maxNumber sql.NullInt64
	err := r.db.QueryRow("SELECT MAX(number) FROM episodes WHERE scope = ?", scope).Scan(&maxNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to get max episode number: %w", err)
	}

	if !maxNumber.Valid {
		return 1, nil
	}
	return int(maxNumber.Int64) + 1, nil
}

// UpdateEpisode persists the mutable fields of an episode (status,
// end time, realized metrics).
func (r *Repository) UpdateEpisode(episode *domain.Episode) error {
	exposures, err := marshalFactorMap(episode.FactorExposures)
	if err != nil {
		return fmt.Errorf("failed to encode factor exposures: %w", err)
	}

	var endedAt interface{}
	if episode.EndedAt != nil {
		endedAt = episode.EndedAt.Unix()
	}

	query := `
		UPDATE episodes
		SET status = ?, ended_at = ?, portfolio_return = ?,
		    sharpe_ratio = ?, max_drawdown = ?, factor_exposures = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(episode.Status),
		endedAt,
		episode.PortfolioReturn,
		episode.SharpeRatio,
		episode.MaxDrawdown,
		exposures,
		episode.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update episode: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("episode %s not found", episode.ID)
	}

	return nil
}

// SaveDecision appends a decision to an episode
func (r *Repository) SaveDecision(decision domain.TradingDecision, episodeID, scope string) error {
	attribution, err := marshalFactorMap(decision.Attribution)
	if err != nil {
		return fmt.Errorf("failed to encode attribution: %w", err)
	}

	query := `
		INSERT INTO decisions
		(id, episode_id, scope, timestamp, symbol, action, weight_before,
		 weight_after, reason, confidence, attribution, outcome_return, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var outcome interface{}
	if decision.OutcomeReturn != nil {
		outcome = *decision.OutcomeReturn
	}

	_, err = r.db.Exec(query,
		decision.ID,
		episodeID,
		scope,
		decision.Timestamp.Unix(),
		decision.Symbol,
		string(decision.Action),
		decision.WeightBefore,
		decision.WeightAfter,
		decision.Reason,
		decision.Confidence,
		attribution,
		outcome,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	return nil
}

// loadDecisions populates an episode's decisions in timestamp order
func (r *Repository) loadDecisions(episode *domain.Episode) error {
	query := "SELECT " + decisionsColumns + " FROM decisions WHERE episode_id = ? ORDER BY timestamp ASC, id ASC"

	rows, err := r.db.Query(query, episode.ID)
	if err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}
	defer rows.Close()

	episode.Decisions = nil
	for rows.Next() {
		var (
			d           domain.TradingDecision
			episodeID   string
			timestamp   int64
			action      string
			attribution sql.NullString
			outcome     sql.NullFloat64
		)

		err := rows.Scan(&d.ID, &episodeID, &timestamp, &d.Symbol, &action,
			&d.WeightBefore, &d.WeightAfter, &d.Reason, &d.Confidence,
			&attribution, &outcome)
		if err != nil {
			return fmt.Errorf("failed to scan decision: %w", err)
		}

		d.Timestamp = time.Unix(timestamp, 0).UTC()
		d.Action = domain.TradingAction(action)
		if attribution.Valid && attribution.String != "" {
			if err := json.Unmarshal([]byte(attribution.String), &d.Attribution); err != nil {
				return fmt.Errorf("failed to decode attribution: %w", err)
			}
		}
		if outcome.Valid {
			v := outcome.Float64
			d.OutcomeReturn = &v
		}

		episode.Decisions = append(episode.Decisions, d)
	}

	return rows.Err()
}

// scanEpisode scans an episode from a single row
func (r *Repository) scanEpisode(row *sql.Row) (*domain.Episode, error) {
	var (
		e         domain.Episode
		status    string
		startedAt int64
		endedAt   sql.NullInt64
		exposures sql.NullString
	)

	err := row.Scan(&e.ID, &e.Scope, &e.Number, &status, &startedAt, &endedAt,
		&e.PortfolioReturn, &e.SharpeRatio, &e.MaxDrawdown, &exposures)
	if err != nil {
		return nil, err
	}

	return r.buildEpisode(&e, status, startedAt, endedAt, exposures)
}

// scanEpisodeFromRows scans an episode from a rows iterator
func (r *Repository) scanEpisodeFromRows(rows *sql.Rows) (*domain.Episode, error) {
	var (
		e         domain.Episode
		status    string
		startedAt int64
		endedAt   sql.NullInt64
		exposures sql.NullString
	)

	err := rows.Scan(&e.ID, &e.Scope, &e.Number, &status, &startedAt, &endedAt,
		&e.PortfolioReturn, &e.SharpeRatio, &e.MaxDrawdown, &exposures)
	if err != nil {
		return nil, fmt.Errorf("failed to scan episode: %w", err)
	}

	return r.buildEpisode(&e, status, startedAt, endedAt, exposures)
}

func (r *Repository) buildEpisode(e *domain.Episode, status string, startedAt int64, endedAt sql.NullInt64, exposures sql.NullString) (*domain.Episode, error) {
	e.Status = domain.EpisodeStatus(status)
	e.StartedAt = time.Unix(startedAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		e.EndedAt = &t
	}
	if exposures.Valid && exposures.String != "" {
		if err := json.Unmarshal([]byte(exposures.String), &e.FactorExposures); err != nil {
			return nil, fmt.Errorf("failed to decode factor exposures: %w", err)
		}
	}
	return e, nil
}

// marshalFactorMap encodes a factor map to JSON, returning nil for empty maps
func marshalFactorMap(m map[domain.Factor]float64) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
