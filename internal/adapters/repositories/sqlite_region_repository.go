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

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite-backed implementation of the RegionRepository port.
//
// Rectangles live on calibrated_rooms; polygons in room_polygons, which
// only exists from schema version 2. Listing order is rowid order, which an
// upsert preserves.
type SqliteRegionRepository struct{ DB *sql.DB }

func NewSqliteRegionRepository(db *sql.DB) *SqliteRegionRepository {
	return &SqliteRegionRepository{DB: db}
}

func (s *SqliteRegionRepository) ListRoomNames(ctx context.Context, userID int64) (_ []string, err error) {
	defer obs.Time(ctx, "regions.sqlite.ListRoomNames")(&err)

	if s.DB == nil {
		return nil, errors.New("sqlite region repository: DB is nil")
	}

	query := `
	SELECT room_name
	FROM calibrated_rooms
	WHERE user_id = ?
	ORDER BY rowid;
	`
	rows, err := s.DB.QueryContext(ctx, query, userID)
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

func (s *SqliteRegionRepository) RegisterRoom(ctx context.Context, userID int64, roomName string) error {
	if s.DB == nil {
		return errors.New("sqlite region repository: DB is nil")
	}

	query := `
	INSERT INTO calibrated_rooms (room_name, user_id)
	VALUES (?, ?)
	ON CONFLICT (room_name) DO NOTHING;
	`
	if _, err := s.DB.ExecContext(ctx, query, roomName, userID); err != nil {
		return fmt.Errorf("register room: insert %q: %w", roomName, err)
	}
	return nil
}

func (s *SqliteRegionRepository) SaveRectangle(ctx context.Context, userID int64, roomName string, rect domain.Rectangle) (err error) {
	defer obs.Time(ctx, "regions.sqlite.SaveRectangle")(&err)

	if s.DB == nil {
		return errors.New("sqlite region repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save rectangle: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertBoundsSqlite(ctx, tx, userID, roomName, rect); err != nil {
		return fmt.Errorf("save rectangle: %w", err)
	}

	hasPolygons, err := sqliteTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("save rectangle: %w", err)
	}
	if hasPolygons {
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = ?;`, roomName); err != nil {
			return fmt.Errorf("save rectangle: clear polygon for %q: %w", roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save rectangle: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteRegionRepository) SavePolygon(ctx context.Context, userID int64, roomName string, poly domain.Polygon) (err error) {
	defer obs.Time(ctx, "regions.sqlite.SavePolygon")(&err)

	if s.DB == nil {
		return errors.New("sqlite region repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save polygon: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hasPolygons, err := sqliteTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("save polygon: %w", err)
	}
	if err := upsertBoundsSqlite(ctx, tx, userID, roomName, poly.Bounds()); err != nil {
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = ?;`, roomName); err != nil {
		return fmt.Errorf("save polygon: delete old points for %q: %w", roomName, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO room_polygons (room_name, user_id, point_index, lat, lon)
	VALUES (?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("save polygon: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range poly.Points {
		if _, err := stmt.ExecContext(ctx, roomName, userID, i, p.Lat, p.Lon); err != nil {
			return fmt.Errorf("save polygon: insert point #%d for %q: %w", i, roomName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save polygon: commit tx: %w", err)
	}
	return nil
}

func (s *SqliteRegionRepository) LoadRectangle(ctx context.Context, roomName string) (_ domain.Rectangle, _ bool, err error) {
	defer obs.Time(ctx, "regions.sqlite.LoadRectangle")(&err)

	if s.DB == nil {
		return domain.Rectangle{}, false, errors.New("sqlite region repository: DB is nil")
	}

	query := `
	SELECT min_lat, max_lat, min_lon, max_lon
	FROM calibrated_rooms
	WHERE room_name = ?;
	`
	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	err = s.DB.QueryRowContext(ctx, query, roomName).Scan(&minLat, &maxLat, &minLon, &maxLon)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rectangle{}, false, nil
	}
	if err != nil {
		return domain.Rectangle{}, false, fmt.Errorf("load rectangle: query %q: %w", roomName, err)
	}

	return rectangleFromColumns(minLat, maxLat, minLon, maxLon)
}

func (s *SqliteRegionRepository) LoadPolygon(ctx context.Context, roomName string) (_ []domain.Coordinate, _ bool, err error) {
	defer obs.Time(ctx, "regions.sqlite.LoadPolygon")(&err)

	if s.DB == nil {
		return nil, false, errors.New("sqlite region repository: DB is nil")
	}

	hasPolygons, err := sqliteTableExists(ctx, s.DB, "room_polygons")
	if err != nil {
		return nil, false, fmt.Errorf("load polygon: %w", err)
	}
	if !hasPolygons {
		return nil, false, nil
	}

	query := `
	SELECT lat, lon
	FROM room_polygons
	WHERE room_name = ?
	ORDER BY point_index;
	`
	rows, err := s.DB.QueryContext(ctx, query, roomName)
	if err != nil {
		return nil, false, fmt.Errorf("load polygon: query room_polygons table: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

func (s *SqliteRegionRepository) RoomExists(ctx context.Context, roomName string) (bool, error) {
	if s.DB == nil {
		return false, errors.New("sqlite region repository: DB is nil")
	}

	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM calibrated_rooms WHERE room_name = ?;`, roomName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("room exists: query %q: %w", roomName, err)
	}
	return n > 0, nil
}

func (s *SqliteRegionRepository) DeleteRoom(ctx context.Context, userID int64, roomName string) (err error) {
	defer obs.Time(ctx, "regions.sqlite.DeleteRoom")(&err)

	if s.DB == nil {
		return errors.New("sqlite region repository: DB is nil")
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete room: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	hasPolygons, err := sqliteTableExists(ctx, tx, "room_polygons")
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if hasPolygons {
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_polygons WHERE room_name = ? AND user_id = ?;`, roomName, userID); err != nil {
			return fmt.Errorf("delete room: delete polygon for %q: %w", roomName, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calibrated_rooms WHERE room_name = ? AND user_id = ?;`, roomName, userID); err != nil {
		return fmt.Errorf("delete room: delete %q: %w", roomName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete room: commit tx: %w", err)
	}
	return nil
}

// upsertBoundsSqlite writes the rectangle tier. The conflict update keeps the
// row's rowid so listing order does not change on re-calibration.
func upsertBoundsSqlite(ctx context.Context, tx *sql.Tx, userID int64, roomName string, r domain.Rectangle) error {
	query := `
	INSERT INTO calibrated_rooms (room_name, user_id, min_lat, max_lat, min_lon, max_lon)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (room_name) DO UPDATE SET
		user_id = excluded.user_id,
		min_lat = excluded.min_lat,
		max_lat = excluded.max_lat,
		min_lon = excluded.min_lon,
		max_lon = excluded.max_lon;
	`
	_, err := tx.ExecContext(ctx, query, roomName, userID,
		float64(r.MinLat), float64(r.MaxLat), float64(r.MinLon), float64(r.MaxLon))
	if err != nil {
		return fmt.Errorf("upsert bounds for %q: %w", roomName, err)
	}
	return nil
}

func sqliteTableExists(ctx context.Context, q querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?;`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// rectangleFromColumns maps nullable bound columns to a Rectangle. Any NULL
// means the room was registered without calibration.
func rectangleFromColumns(minLat, maxLat, minLon, maxLon sql.NullFloat64) (domain.Rectangle, bool, error) {
	if !minLat.Valid || !maxLat.Valid || !minLon.Valid || !maxLon.Valid {
		return domain.Rectangle{}, false, nil
	}
	return domain.Rectangle{
		MinLat: float32(minLat.Float64),
		MaxLat: float32(maxLat.Float64),
		MinLon: float32(minLon.Float64),
		MaxLon: float32(maxLon.Float64),
	}, true, nil
}

func scanPoints(rows *sql.Rows) ([]domain.Coordinate, bool, error) {
	points := make([]domain.Coordinate, 0, domain.MinPolygonPoints)
	for rows.Next() {
		var p domain.Coordinate
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, false, fmt.Errorf("load polygon: scan row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load polygon: row iteration: %w", err)
	}

	if len(points) == 0 {
		return nil, false, nil
	}
	return points, true, nil
}
