package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/obs"
)

// SQLite-backed implementation of the LightRepository port.
type SqliteLightRepository struct{ DB *sql.DB }

func NewSqliteLightRepository(db *sql.DB) *SqliteLightRepository {
	return &SqliteLightRepository{DB: db}
}

// Replace the room's lights (delete then insert in one transaction).
func (s *SqliteLightRepository) SaveLights(ctx context.Context, roomName string, lights []domain.Light) (err error) {
	defer obs.Time(ctx, "lights.sqlite.SaveLights")(&err)

	if s.DB == nil {
		return errors.New("sqlite light repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save lights: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lights WHERE room_name = ?;`, roomName); err != nil {
		return fmt.Errorf("save lights: delete old lights for %q: %w", roomName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO lights (room_name, position, light_name, brightness, manual_control)
	VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("save lights: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, l := range lights {
		if _, err := stmt.ExecContext(ctx, roomName, i, l.Name, l.Brightness, l.ManualControl); err != nil {
			return fmt.Errorf("save lights: insert %q for %q: %w", l.Name, roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save lights: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteLightRepository) LoadLights(ctx context.Context, roomName string) (_ []domain.Light, err error) {
	defer obs.Time(ctx, "lights.sqlite.LoadLights")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite light repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT light_name, brightness, manual_control
	FROM lights
	WHERE room_name = ?
	ORDER BY position;
	`, roomName)
	if err != nil {
		return nil, fmt.Errorf("load lights: query lights table: %w", err)
	}
	defer rows.Close()

	return scanLights(rows)
}

func scanLights(rows *sql.Rows) ([]domain.Light, error) {
	lights := make([]domain.Light, 0, 4)
	for rows.Next() {
		var l domain.Light
		if err := rows.Scan(&l.Name, &l.Brightness, &l.ManualControl); err != nil {
			return nil, fmt.Errorf("load lights: scan row: %w", err)
		}
		lights = append(lights, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load lights: row iteration: %w", err)
	}
	return lights, nil
}
