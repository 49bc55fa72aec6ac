package repositories

import (
	"context"
	"database/sql"
	"geotag-service/internal/domain"
	"geotag-service/internal/platform/db"
	"geotag-service/internal/services"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "regions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestStore(t *testing.T) (*services.RegionStore, *SqliteRegionRepository, *sql.DB) {
	t.Helper()

	conn := openTestDB(t)
	require.NoError(t, InitSchema(conn))

	repo := NewSqliteRegionRepository(conn)
	return services.NewRegionStore(repo), repo, conn
}

func TestRectangleSaveLoadNormalizes(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	cases := []struct {
		room                   string
		lat1, lon1, lat2, lon2 float32
	}{
		{"ordered", 10, 10, 20, 20},
		{"reversed", 20, 20, 10, 10},
		{"crossed", 10, 20, 20, 10},
		{"negative", -33.5, 151.25, -33.75, 151},
	}

	for _, tc := range cases {
		t.Run(tc.room, func(t *testing.T) {
			rect := domain.NewRectangle(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			require.NoError(t, store.Save(ctx, 1, tc.room, rect))

			got, err := store.GetRegion(ctx, tc.room)
			require.NoError(t, err)

			want := domain.Rectangle{
				MinLat: min(tc.lat1, tc.lat2), MaxLat: max(tc.lat1, tc.lat2),
				MinLon: min(tc.lon1, tc.lon2), MaxLon: max(tc.lon1, tc.lon2),
			}
			if diff := cmp.Diff(domain.Region(want), got); diff != "" {
				t.Fatalf("region mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPolygonTierPreferredOverRectangle(t *testing.T) {
	ctx := context.Background()
	store, repo, conn := newTestStore(t)

	kitchen := []domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 1}}
	poly, err := domain.NewPolygon(kitchen)
	require.NoError(t, err)
	require.NoError(t, repo.SavePolygon(ctx, 1, "Kitchen", poly))

	// Give the rectangle tier different bounds so the two tiers disagree.
	_, err = conn.Exec(`UPDATE calibrated_rooms SET min_lat = 50, max_lat = 60, min_lon = 50, max_lon = 60 WHERE room_name = 'Kitchen';`)
	require.NoError(t, err)

	got, err := store.GetRegion(ctx, "Kitchen")
	require.NoError(t, err)
	require.IsType(t, domain.Polygon{}, got)
	assert.Equal(t, domain.Rectangle{MinLat: 1, MaxLat: 2, MinLon: 1, MaxLon: 2}, got.Bounds())

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	if diff := cmp.Diff(domain.Region(poly), rooms[0].Region); diff != "" {
		t.Fatalf("listed region mismatch (-want +got):\n%s", diff)
	}
}

func TestSavePolygonStoresBoundsAndRectangleClearsPolygon(t *testing.T) {
	ctx := context.Background()
	store, repo, _ := newTestStore(t)

	poly, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 1}})
	require.NoError(t, store.Save(ctx, 1, "Kitchen", poly))

	rect, found, err := repo.LoadRectangle(ctx, "Kitchen")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, poly.Bounds(), rect)

	require.NoError(t, store.Save(ctx, 1, "Kitchen", domain.NewRectangle(5, 5, 6, 6)))

	_, found, err = repo.LoadPolygon(ctx, "Kitchen")
	require.NoError(t, err)
	assert.False(t, found, "rectangle save must clear the polygon tier")

	got, err := store.GetRegion(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, domain.Region(domain.NewRectangle(5, 5, 6, 6)), got)
}

func TestSavePolygonReplacesAllPoints(t *testing.T) {
	ctx := context.Background()
	store, repo, _ := newTestStore(t)

	big, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 3}, {Lat: 1, Lon: 4}, {Lat: 3, Lon: 3}, {Lat: 3, Lon: 0}})
	small, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 1}})
	require.NoError(t, store.Save(ctx, 1, "Hall", big))
	require.NoError(t, store.Save(ctx, 1, "Hall", small))

	points, found, err := repo.LoadPolygon(ctx, "Hall")
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff(small.Points, points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestListRoomsKeepsRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Register(ctx, 1, "Hall"))
	require.NoError(t, store.Save(ctx, 1, "Kitchen", domain.NewRectangle(1, 1, 2, 2)))
	require.NoError(t, store.Save(ctx, 2, "Garage", domain.NewRectangle(3, 3, 4, 4)))
	// Re-calibrating must not move Hall to the end.
	require.NoError(t, store.Save(ctx, 1, "Hall", domain.NewRectangle(5, 5, 6, 6)))

	names, err := store.RoomNames(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hall", "Kitchen"}, names)
}

func TestUncalibratedRoomListsAsZeroRectangle(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Register(ctx, 1, "Attic"))

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	want := []domain.CalibratedRoom{{UserID: 1, RoomName: "Attic", Region: domain.Rectangle{}}}
	if diff := cmp.Diff(want, rooms); diff != "" {
		t.Fatalf("rooms mismatch (-want +got):\n%s", diff)
	}

	// Known edge case: the "uncalibrated" sentinel is the same value as a real
	// box at lat 0, lon 0, so a fix at the origin matches it.
	region, err := store.GetRegion(ctx, "Attic")
	require.NoError(t, err)
	assert.True(t, region.Bounds().IsZero())
	assert.True(t, services.Contains(domain.Coordinate{}, region, 0))
}

func TestGetRegionUnknownRoomIsNil(t *testing.T) {
	store, _, _ := newTestStore(t)

	region, err := store.GetRegion(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestShortPolygonFallsBackToRectangle(t *testing.T) {
	ctx := context.Background()
	store, _, conn := newTestStore(t)

	require.NoError(t, store.Save(ctx, 1, "Den", domain.NewRectangle(1, 1, 2, 2)))
	for i, p := range [][2]float64{{1, 1}, {1, 2}, {2, 2}} {
		_, err := conn.Exec(`INSERT INTO room_polygons (room_name, user_id, point_index, lat, lon) VALUES ('Den', 1, ?, ?, ?);`, i, p[0], p[1])
		require.NoError(t, err)
	}

	got, err := store.GetRegion(ctx, "Den")
	require.NoError(t, err)
	assert.Equal(t, domain.Region(domain.NewRectangle(1, 1, 2, 2)), got)
}

func TestPartialSchemaDegradesToRectangle(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	require.NoError(t, db.MigrateTo(conn, db.Migrations(), db.VersionRooms))

	version, dirty, err := db.MigrationVersion(conn, db.Migrations())
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, db.VersionRooms, version)

	repo := NewSqliteRegionRepository(conn)
	store := services.NewRegionStore(repo)

	require.NoError(t, store.Save(ctx, 1, "Kitchen", domain.NewRectangle(1, 1, 2, 2)))

	points, found, err := repo.LoadPolygon(ctx, "Kitchen")
	require.NoError(t, err, "missing polygon table is not an error")
	assert.False(t, found)
	assert.Nil(t, points)

	got, err := store.GetRegion(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, domain.Region(domain.NewRectangle(1, 1, 2, 2)), got)

	poly, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 1}})
	poly, _ = domain.NewPolygon([]domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 3}, {Lat: 3, Lon: 3}, {Lat: 3, Lon: 1}, {Lat: 2, Lon: 0.5}})
	require.NoError(t, store.Save(ctx, 1, "Kitchen", poly), "polygon save degrades to its bounds")
	got, err = store.GetRegion(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, domain.Region(domain.NewRectangle(1, 0.5, 3, 3)), got)

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.Region(domain.NewRectangle(1, 0.5, 3, 3)), rooms[0].Region)

	require.NoError(t, store.Delete(ctx, 1, "Kitchen"))

	// Upgrading keeps existing rooms.
	require.NoError(t, store.Save(ctx, 1, "Hall", domain.NewRectangle(3, 3, 4, 4)))
	require.NoError(t, InitSchema(conn))
	require.NoError(t, store.Save(ctx, 1, "Hall", poly))
	got, err = store.GetRegion(ctx, "Hall")
	require.NoError(t, err)
	assert.IsType(t, domain.Polygon{}, got)
}

func TestDeleteRoomIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, repo, _ := newTestStore(t)

	poly, _ := domain.NewPolygon([]domain.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}, {Lat: 2, Lon: 2}, {Lat: 2, Lon: 1}})
	require.NoError(t, store.Save(ctx, 1, "Kitchen", poly))

	require.NoError(t, store.Delete(ctx, 1, "Kitchen"))
	require.NoError(t, store.Delete(ctx, 1, "Kitchen"))
	require.NoError(t, store.Delete(ctx, 1, "NeverExisted"))

	exists, err := repo.RoomExists(ctx, "Kitchen")
	require.NoError(t, err)
	assert.False(t, exists)

	_, found, err := repo.LoadPolygon(ctx, "Kitchen")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteRoomOfAnotherUserIsNoop(t *testing.T) {
	ctx := context.Background()
	store, repo, _ := newTestStore(t)

	require.NoError(t, store.Save(ctx, 1, "Kitchen", domain.NewRectangle(1, 1, 2, 2)))
	require.NoError(t, store.Delete(ctx, 2, "Kitchen"))

	exists, err := repo.RoomExists(ctx, "Kitchen")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSeedRoomsFromJSON(t *testing.T) {
	ctx := context.Background()
	store, repo, conn := newTestStore(t)
	lights := NewSqliteLightRepository(conn)

	seed := `[
		{"user_id": 1, "room_name": "Kitchen", "polygon": [[1,1],[1,2],[2,2],[2,1]],
		 "lights": [{"name": "ceiling", "brightness": 120}]},
		{"user_id": 1, "room_name": "Hall", "rectangle": [20, 20, 10, 10]},
		{"user_id": 1, "room_name": "Attic"}
	]`
	path := filepath.Join(t.TempDir(), "rooms.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o600))

	require.NoError(t, SeedRoomsFromJSON(ctx, repo, lights, path))

	rooms, err := store.ListRooms(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, "Kitchen", rooms[0].RoomName)
	assert.IsType(t, domain.Polygon{}, rooms[0].Region)
	assert.Equal(t, domain.Region(domain.NewRectangle(10, 10, 20, 20)), rooms[1].Region)
	assert.True(t, rooms[2].Region.Bounds().IsZero())

	got, err := lights.LoadLights(ctx, "Kitchen")
	require.NoError(t, err)
	assert.Equal(t, []domain.Light{{Name: "ceiling", Brightness: 120}}, got)
}

func TestSeedRoomsRejectsShortPolygon(t *testing.T) {
	_, repo, _ := newTestStore(t)

	path := filepath.Join(t.TempDir(), "rooms.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"user_id":1,"room_name":"Bad","polygon":[[0,0],[0,1],[1,1]]}]`), 0o600))

	err := SeedRoomsFromJSON(context.Background(), repo, nil, path)
	require.ErrorIs(t, err, domain.ErrInvalidPolygon)
}
