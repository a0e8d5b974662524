package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout keeps created_at lexically sortable.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return t, nil
}

func orEmptyList(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}

// SaveRecommendation inserts or replaces a recommendation.
func (s *Store) SaveRecommendation(r Recommendation) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO recommendations
			(id, created_at, description, tags, roles, mode, message, reason, shortlist, picks, catalog_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.CreatedAt), r.Description, orEmptyList(r.Tags), orEmptyList(r.Roles),
		r.Mode, r.Message, r.Reason, orEmptyList(r.Shortlist), orEmptyList(r.Picks), r.CatalogVersion,
	)
	if err != nil {
		return fmt.Errorf("saving recommendation %s: %w", r.ID, err)
	}
	return nil
}

const recommendationColumns = `id, created_at, description, tags, roles, mode, message, reason, shortlist, picks, catalog_version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (Recommendation, error) {
	var r Recommendation
	var createdAt string
	if err := row.Scan(&r.ID, &createdAt, &r.Description, &r.Tags, &r.Roles, &r.Mode,
		&r.Message, &r.Reason, &r.Shortlist, &r.Picks, &r.CatalogVersion); err != nil {
		return Recommendation{}, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return Recommendation{}, err
	}
	r.CreatedAt = t
	return r, nil
}

// GetRecommendation returns the recommendation with id, or ErrNotFound.
func (s *Store) GetRecommendation(id string) (Recommendation, error) {
	r, err := scanRecommendation(s.db.QueryRow(
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Recommendation{}, ErrNotFound
	}
	return r, err
}

// ListRecommendations returns recommendations newest first.
func (s *Store) ListRecommendations(limit, offset int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`SELECT `+recommendationColumns+` FROM recommendations
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	results := make([]Recommendation, 0)
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteRecommendation removes a recommendation, or returns ErrNotFound.
func (s *Store) DeleteRecommendation(id string) error {
	res, err := s.db.Exec(`DELETE FROM recommendations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
