package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"geotag-service/internal/adapters/lightctl"
	"geotag-service/internal/adapters/movelog"
	"geotag-service/internal/adapters/repositories"
	"geotag-service/internal/adapters/telemetry"
	"geotag-service/internal/api"
	"geotag-service/internal/api/handlers"
	"geotag-service/internal/config"
	"geotag-service/internal/platform/clock"
	"geotag-service/internal/platform/db"
	"geotag-service/internal/platform/metrics"
	"geotag-service/internal/ports"
	"geotag-service/internal/services"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
)

// main is the application composition root.
// It wires concrete adapters (SQLite or Postgres, HTTP move log, MQTT,
// InfluxDB) behind ports and starts the HTTP server.
func main() {
	cfg := config.Load()

	conn, regionRepo, lightRepo, err := openStorage(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if cfg.SeedPath != "" {
		if err := repositories.SeedRoomsFromJSON(context.Background(), regionRepo, lightRepo, cfg.SeedPath); err != nil {
			log.Fatal(err)
		}
		log.Printf("seeded rooms path=%s", cfg.SeedPath)
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		log.Fatal(err)
	}

	sw, closeSwitch := newLightSwitch(cfg)
	defer closeSwitch()

	sink, closeSink := newTelemetrySink(cfg)
	defer closeSink()

	clk := clock.RealClock{}
	regions := services.NewRegionStore(regionRepo)
	trackers := services.NewTrackerRegistry(regions, newMoveLoggerFactory(cfg, m), clk, m, services.TrackerConfig{
		MovementThresholdMeters: cfg.MovementThresholdMeters,
		EntryEpsilon:            cfg.RoomEntryEpsilon,
	})
	lighting := services.NewLightingService(lightRepo, sw, sink, clk, m, services.BrightnessConfig{
		ReblendDelay: cfg.BrightnessReblendDelay,
		DecayDelay:   cfg.BrightnessDecayDelay,
		DecayPeriod:  cfg.BrightnessDecayPeriod,
	})

	hub := handlers.NewEventHub()
	trackers.OnRoomEvent(sink.RecordRoomEvent)
	trackers.OnRoomEvent(lighting.SwitchOnRoomEvent)
	trackers.OnRoomEvent(hub.PublishRoomEvent)
	lighting.OnBrightness(hub.PublishBrightness)

	router := api.NewRouter(regions, trackers, lighting, hub, m)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening addr=:%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server failed err=%v", err)
		}
	case sig := <-stop:
		log.Printf("shutting down signal=%s", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown err=%v", err)
	}
	trackers.Close()
	lighting.Close()
}

// openStorage opens Postgres when DATABASE_URL is set, the SQLite file
// otherwise, and brings the schema up to date.
func openStorage(cfg config.Config) (*sql.DB, ports.RegionRepository, ports.LightRepository, error) {
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repositories.InitPostgresSchema(conn); err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		log.Printf("storage=postgres")
		return conn, repositories.NewSQLRegionRepository(conn), repositories.NewSQLLightRepository(conn), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: create data dir: %w", err)
	}
	conn, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repositories.InitSchema(conn); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}

	version, _, err := db.MigrationVersion(conn, db.Migrations())
	if err != nil {
		log.Printf("storage: read schema version err=%v", err)
	}
	log.Printf("storage=sqlite path=%s schema_version=%d", cfg.DBPath, version)
	return conn, repositories.NewSqliteRegionRepository(conn), repositories.NewSqliteLightRepository(conn), nil
}

// newMoveLoggerFactory builds one logger per tracked user. Without a
// collector URL, sessions are only recorded in memory.
func newMoveLoggerFactory(cfg config.Config, m *metrics.Collector) func(userID int64) ports.MoveLogger {
	return func(userID int64) ports.MoveLogger {
		if cfg.MoveLogURL == "" {
			return movelog.NewRecordingMoveLogger()
		}
		l, err := movelog.NewHTTPMoveLogger(cfg.MoveLogURL, cfg.MoveLogInterval, cfg.MoveLogTimeout, m)
		if err != nil {
			log.Printf("movelog: falling back to in-memory logger user_id=%d err=%v", userID, err)
			return movelog.NewRecordingMoveLogger()
		}
		return l
	}
}

func newLightSwitch(cfg config.Config) (ports.LightSwitch, func()) {
	if cfg.MQTTBroker == "" {
		log.Printf("lights: MQTT_BROKER not set, commands are recorded only")
		return lightctl.NewRecordingLightSwitch(), func() {}
	}

	sw, err := lightctl.NewMQTTLightSwitch(lightctl.MQTTConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		Topic:    cfg.MQTTTopic,
	})
	if err != nil {
		log.Printf("lights: mqtt unavailable, commands are recorded only err=%v", err)
		return lightctl.NewRecordingLightSwitch(), func() {}
	}
	return sw, sw.Close
}

func newTelemetrySink(cfg config.Config) (ports.TelemetrySink, func()) {
	if cfg.InfluxURL == "" {
		return telemetry.NoopSink{}, func() {}
	}

	sink, err := telemetry.NewInfluxSink(telemetry.InfluxConfig{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
	if err != nil {
		log.Printf("telemetry: influx unavailable err=%v", err)
		return telemetry.NoopSink{}, func() {}
	}
	return sink, sink.Close
}
