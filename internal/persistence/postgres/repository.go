package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/streamkeep/streamkeep/internal/persistence"
)

// AddRecording inserts a new recording row and returns its id (§4.7 step 2).
func (s *Store) AddRecording(ctx context.Context, streamerKey, url string, startTime time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO recording (streamer_key, url, title, start_time, cover_path)
		VALUES ($1, $2, '', $3, '')
		RETURNING id`,
		streamerKey, url, startTime,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add recording: %w", err)
	}
	return id, nil
}

// UpdateTitle sets a recording's title (§4.7 step 3).
func (s *Store) UpdateTitle(ctx context.Context, id int64, title string) error {
	_, err := s.pool.Exec(ctx, `UPDATE recording SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return nil
}

// UpdateCoverPath sets a recording's cover path (§4.7 step 8).
func (s *Store) UpdateCoverPath(ctx context.Context, id int64, path string) error {
	_, err := s.pool.Exec(ctx, `UPDATE recording SET cover_path = $2 WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("update cover path: %w", err)
	}
	return nil
}

// AppendFile records one finished segment's file name (§4.7 step 6, P3).
// file_name rows are inserted with a monotonically increasing id so
// GetFiles can return them in completion order.
func (s *Store) AppendFile(ctx context.Context, id int64, fileName string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO segment (recording_id, file_name) VALUES ($1, $2)`,
		id, fileName,
	)
	if err != nil {
		return fmt.Errorf("append file: %w", err)
	}
	return nil
}

// GetFiles returns a recording's segment file names in append order.
func (s *Store) GetFiles(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_name FROM segment WHERE recording_id = $1 ORDER BY id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("get files scan: %w", err)
		}
		files = append(files, name)
	}
	return files, rows.Err()
}

// GetLatestByStreamer returns the most recent recording for a streamer key
// (§4.8 step 3).
func (s *Store) GetLatestByStreamer(ctx context.Context, streamerKey string) (*persistence.Recording, error) {
	return s.scanRecording(ctx, `
		SELECT id, streamer_key, url, title, start_time, cover_path
		FROM recording WHERE streamer_key = $1
		ORDER BY start_time DESC LIMIT 1`,
		streamerKey)
}

// GetByFileName finds the recording that produced fileName (§4.11).
func (s *Store) GetByFileName(ctx context.Context, fileName string) (*persistence.Recording, error) {
	return s.scanRecording(ctx, `
		SELECT r.id, r.streamer_key, r.url, r.title, r.start_time, r.cover_path
		FROM recording r JOIN segment s ON s.recording_id = r.id
		WHERE s.file_name = $1
		LIMIT 1`,
		fileName)
}

func (s *Store) scanRecording(ctx context.Context, query string, arg interface{}) (*persistence.Recording, error) {
	var r persistence.Recording
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&r.ID, &r.StreamerKey, &r.URL, &r.Title, &r.StartTime, &r.CoverPath,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, fmt.Errorf("scan recording: %w", err)
	}
	return &r, nil
}

// GetConfigValue/SetConfigValue implement the small persisted-configuration
// k/v table (§4.11, §6).
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", persistence.ErrNotFound
		}
		return "", fmt.Errorf("get config value: %w", err)
	}
	return value, nil
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config value: %w", err)
	}
	return nil
}
