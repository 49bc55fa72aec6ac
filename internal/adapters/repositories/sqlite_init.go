package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/db"
	"geotag-service/internal/ports"
	"os"
	"strings"
)

// Bring the SQLite schema to the latest migration.
func InitSchema(conn *sql.DB) error {
	if conn == nil {
		return errors.New("init schema: DB is nil")
	}

	if err := db.MigrateUp(conn, db.Migrations()); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Initialize the Postgres schema. Statements are idempotent.
func InitPostgresSchema(conn *sql.DB) error {
	if conn == nil {
		return errors.New("init schema: db is nil")
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createRoomsQuery := `
	CREATE TABLE IF NOT EXISTS calibrated_rooms (
		id        BIGSERIAL,
		room_name TEXT PRIMARY KEY,
		user_id   BIGINT NOT NULL,
		min_lat   DOUBLE PRECISION,
		max_lat   DOUBLE PRECISION,
		min_lon   DOUBLE PRECISION,
		max_lon   DOUBLE PRECISION
	);
	`

	createRoomsIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_calibrated_rooms_user
	ON calibrated_rooms(user_id, id);
	`

	createPolygonsQuery := `
	CREATE TABLE IF NOT EXISTS room_polygons (
		room_name   TEXT NOT NULL,
		user_id     BIGINT NOT NULL,
		point_index INTEGER NOT NULL,
		lat         DOUBLE PRECISION NOT NULL,
		lon         DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (room_name, point_index)
	);
	`

	createLightsQuery := `
	CREATE TABLE IF NOT EXISTS lights (
		room_name      TEXT NOT NULL,
		position       INTEGER NOT NULL,
		light_name     TEXT NOT NULL,
		brightness     INTEGER NOT NULL,
		manual_control BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (room_name, position)
	);
	`

	statements := []string{
		createRoomsQuery,
		createRoomsIndexQuery,
		createPolygonsQuery,
		createLightsQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// RoomSeed describes one room in a seed file. A room with neither a
// rectangle nor a polygon is registered uncalibrated.
type RoomSeed struct {
	UserID    int64        `json:"user_id"`
	RoomName  string       `json:"room_name"`
	Rectangle *[4]float32  `json:"rectangle,omitempty"` // lat1, lon1, lat2, lon2
	Polygon   [][2]float64 `json:"polygon,omitempty"`   // [lat, lon] in walking order
	Lights    []LightSeed  `json:"lights,omitempty"`
}

type LightSeed struct {
	Name       string `json:"name"`
	Brightness int    `json:"brightness"`
}

// Populate rooms (and their lights, when lightRepo is non-nil) from a JSON file.
func SeedRoomsFromJSON(ctx context.Context, repo ports.RegionRepository, lightRepo ports.LightRepository, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed rooms: read %q: %w", jsonPath, err)
	}

	var data []RoomSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed rooms: parse json: %w", err)
	}

	for i, item := range data {
		name := strings.TrimSpace(item.RoomName)
		if name == "" {
			return fmt.Errorf("seed rooms: item at index %d: %w", i+1, domain.ErrEmptyRoomName)
		}
		if item.UserID <= 0 {
			return fmt.Errorf("seed rooms: invalid user_id at index %d: %d", i+1, item.UserID)
		}

		switch {
		case len(item.Polygon) > 0:
			points := make([]domain.Coordinate, len(item.Polygon))
			for j, p := range item.Polygon {
				points[j] = domain.Coordinate{Lat: p[0], Lon: p[1]}
			}
			poly, err := domain.NewPolygon(points)
			if err != nil {
				return fmt.Errorf("seed rooms: room %q: %w", name, err)
			}
			if err := repo.SavePolygon(ctx, item.UserID, name, poly); err != nil {
				return fmt.Errorf("seed rooms: %w", err)
			}
		case item.Rectangle != nil:
			r := item.Rectangle
			if err := repo.SaveRectangle(ctx, item.UserID, name, domain.NewRectangle(r[0], r[1], r[2], r[3])); err != nil {
				return fmt.Errorf("seed rooms: %w", err)
			}
		default:
			if err := repo.RegisterRoom(ctx, item.UserID, name); err != nil {
				return fmt.Errorf("seed rooms: %w", err)
			}
		}

		if lightRepo == nil || len(item.Lights) == 0 {
			continue
		}
		lights := make([]domain.Light, 0, len(item.Lights))
		for _, l := range item.Lights {
			lights = append(lights, domain.Light{Name: l.Name, Brightness: l.Brightness})
		}
		if err := lightRepo.SaveLights(ctx, name, lights); err != nil {
			return fmt.Errorf("seed rooms: %w", err)
		}
	}

	return nil
}
