package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/obs"
)

// Postgres-backed implementation of the LightRepository port.
type SQLLightRepository struct{ DB *sql.DB }

func NewSQLLightRepository(db *sql.DB) *SQLLightRepository {
	return &SQLLightRepository{DB: db}
}

func (s *SQLLightRepository) SaveLights(ctx context.Context, roomName string, lights []domain.Light) (err error) {
	defer obs.Time(ctx, "lights.sql.SaveLights")(&err)

	if s.DB == nil {
		return errors.New("sql light repository: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save lights: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lights WHERE room_name = $1;`, roomName); err != nil {
		return fmt.Errorf("save lights: delete old lights for %q: %w", roomName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO lights (room_name, position, light_name, brightness, manual_control)
	VALUES ($1, $2, $3, $4, $5);
	`)
	if err != nil {
		return fmt.Errorf("save lights: prepare: %w", err)
	}
	defer stmt.Close()

	for i, l := range lights {
		if _, err := stmt.ExecContext(ctx, roomName, i, l.Name, l.Brightness, l.ManualControl); err != nil {
			return fmt.Errorf("save lights: insert %q for %q: %w", l.Name, roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save lights: db commit: %w", err)
	}
	return nil
}

func (s *SQLLightRepository) LoadLights(ctx context.Context, roomName string) (_ []domain.Light, err error) {
	defer obs.Time(ctx, "lights.sql.LoadLights")(&err)

	if s.DB == nil {
		return nil, errors.New("sql light repository: db is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT light_name, brightness, manual_control
	FROM lights
	WHERE room_name = $1
	ORDER BY position;
	`, roomName)
	if err != nil {
		return nil, fmt.Errorf("load lights: query lights table: %w", err)
	}
	defer rows.Close()

	return scanLights(rows)
}
