package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/obs"
	"log"
)

// Postgres-backed implementation of the RegionRepository port.
// Listing order follows the room's id sequence.
type SQLRegionRepository struct{ DB *sql.DB }

func NewSQLRegionRepository(db *sql.DB) *SQLRegionRepository {
	return &SQLRegionRepository{DB: db}
}

func (s *SQLRegionRepository) ListRoomNames(ctx context.Context, userID int64) (_ []string, err error) {
	defer obs.Time(ctx, "regions.sql.ListRoomNames")(&err)

	if s.DB == nil {
		return nil, errors.New("sql region repository: db is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT room_name
	FROM calibrated_rooms
	WHERE user_id = $1
	ORDER BY id;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list room names: query calibrated_rooms table: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0, 8)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list room names: scan row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list room names: row iteration: %w", err)
	}

	return names, nil
}

func (s *SQLRegionRepository) RegisterRoom(ctx context.Context, userID int64, roomName string) error {
	if s.DB == nil {
		return errors.New("sql region repository: db is nil")
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO calibrated_rooms (room_name, user_id)
	VALUES ($1, $2)
	ON CONFLICT (room_name) DO NOTHING;
	`, roomName, userID)
	if err != nil {
		return fmt.Errorf("register room: insert %q: %w", roomName, err)
	}
	return nil
}

func (s *SQLRegionRepository) SaveRectangle(ctx context.Context, userID int64, roomName string, rect domain.Rectangle) (err error) {
	defer obs.Time(ctx, "regions.sql.SaveRectangle")(&err)

	if s.DB == nil {
		return errors.New("sql region repository: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rectangle: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertBoundsPostgres(ctx, tx, userID, roomName, rect); err != nil {
		return fmt.Errorf("save rectangle: %w", err)
	}

	hasPolygons, err := postgresTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("save rectangle: %w", err)
	}
	if hasPolygons {
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = $1;`, roomName); err != nil {
			return fmt.Errorf("save rectangle: clear polygon for %q: %w", roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save rectangle: db commit: %w", err)
	}
	return nil
}

func (s *SQLRegionRepository) SavePolygon(ctx context.Context, userID int64, roomName string, poly domain.Polygon) (err error) {
	defer obs.Time(ctx, "regions.sql.SavePolygon")(&err)

	if s.DB == nil {
		return errors.New("sql region repository: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save polygon: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hasPolygons, err := postgresTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("save polygon: %w", err)
	}
	if err := upsertBoundsPostgres(ctx, tx, userID, roomName, poly.Bounds()); err != nil {
		return fmt.Errorf("save polygon: %w", err)
	}

	// Older schemas keep only the bounding rectangle.
	if !hasPolygons {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("save polygon: commit bounds: %w", err)
		}
		log.Printf("regions: polygon table missing, stored bounds only room=%q points=%d", roomName, len(poly.Points))
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = $1;`, roomName); err != nil {
		return fmt.Errorf("save polygon: delete old points for %q: %w", roomName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO room_polygons (room_name, user_id, point_index, lat, lon)
	VALUES ($1, $2, $3, $4, $5);
	`)
	if err != nil {
		return fmt.Errorf("save polygon: prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range poly.Points {
		if _, err := stmt.ExecContext(ctx, roomName, userID, i, p.Lat, p.Lon); err != nil {
			return fmt.Errorf("save polygon: insert point #%d for %q: %w", i, roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save polygon: db commit: %w", err)
	}
	return nil
}

func (s *SQLRegionRepository) LoadRectangle(ctx context.Context, roomName string) (_ domain.Rectangle, _ bool, err error) {
	defer obs.Time(ctx, "regions.sql.LoadRectangle")(&err)

	if s.DB == nil {
		return domain.Rectangle{}, false, errors.New("sql region repository: db is nil")
	}

	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	err = s.DB.QueryRowContext(ctx, `
	SELECT min_lat, max_lat, min_lon, max_lon
	FROM calibrated_rooms
	WHERE room_name = $1;
	`, roomName).Scan(&minLat, &maxLat, &minLon, &maxLon)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rectangle{}, false, nil
	}
	if err != nil {
		return domain.Rectangle{}, false, fmt.Errorf("load rectangle: query %q: %w", roomName, err)
	}

	return rectangleFromColumns(minLat, maxLat, minLon, maxLon)
}

func (s *SQLRegionRepository) LoadPolygon(ctx context.Context, roomName string) (_ []domain.Coordinate, _ bool, err error) {
	defer obs.Time(ctx, "regions.sql.LoadPolygon")(&err)

	if s.DB == nil {
		return nil, false, errors.New("sql region repository: db is nil")
	}

	hasPolygons, err := postgresTableExists(ctx, s.DB, "room_polygons")
	if err != nil {
		return nil, false, fmt.Errorf("load polygon: %w", err)
	}
	if !hasPolygons {
		return nil, false, nil
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT lat, lon
	FROM room_polygons
	WHERE room_name = $1
	ORDER BY point_index;
	`, roomName)
	if err != nil {
		return nil, false, fmt.Errorf("load polygon: query room_polygons table: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

func (s *SQLRegionRepository) RoomExists(ctx context.Context, roomName string) (bool, error) {
	if s.DB == nil {
		return false, errors.New("sql region repository: db is nil")
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM calibrated_rooms WHERE room_name = $1);`, roomName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("room exists: query %q: %w", roomName, err)
	}
	return exists, nil
}

func (s *SQLRegionRepository) DeleteRoom(ctx context.Context, userID int64, roomName string) (err error) {
	defer obs.Time(ctx, "regions.sql.DeleteRoom")(&err)

	if s.DB == nil {
		return errors.New("sql region repository: db is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete room: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hasPolygons, err := postgresTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if hasPolygons {
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = $1 AND user_id = $2;`, roomName, userID); err != nil {
			return fmt.Errorf("delete room: delete polygon for %q: %w", roomName, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calibrated_rooms WHERE room_name = $1 AND user_id = $2;`, roomName, userID); err != nil {
		return fmt.Errorf("delete room: delete %q: %w", roomName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete room: db commit: %w", err)
	}
	return nil
}

func upsertBoundsPostgres(ctx context.Context, tx *sql.Tx, userID int64, roomName string, r domain.Rectangle) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO calibrated_rooms (room_name, user_id, min_lat, max_lat, min_lon, max_lon)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (room_name) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		min_lat = EXCLUDED.min_lat,
		max_lat = EXCLUDED.max_lat,
		min_lon = EXCLUDED.min_lon,
		max_lon = EXCLUDED.max_lon;
	`, roomName, userID, float64(r.MinLat), float64(r.MaxLat), float64(r.MinLon), float64(r.MaxLon))
	if err != nil {
		return fmt.Errorf("upsert bounds for %q: %w", roomName, err)
	}
	return nil
}

func postgresTableExists(ctx context.Context, q querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL;`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return exists, nil
}
