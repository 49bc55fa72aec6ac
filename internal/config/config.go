// Package config reads service settings from the environment, after loading
// an optional .env file.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	DBPath   string
	SeedPath string

	// Postgres connection string. When set it replaces the SQLite file.
	DatabaseURL string

	// Movement logger. An empty URL disables remote logging.
	MoveLogURL      string
	MoveLogInterval time.Duration
	MoveLogTimeout  time.Duration

	// MQTT light bridge. An empty broker disables switching.
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	// InfluxDB telemetry. An empty URL disables the sink.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	MovementThresholdMeters float64
	RoomEntryEpsilon        float64

	BrightnessReblendDelay time.Duration
	BrightnessDecayDelay   time.Duration
	BrightnessDecayPeriod  time.Duration
}

// Load reads .env (if present) and assembles a Config with defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	return Config{
		Port:     Get("PORT", "8080"),
		DBPath:   Get("DB_PATH", "data/app.db"),
		SeedPath: Get("SEED_PATH", ""),

		DatabaseURL: Get("DATABASE_URL", ""),

		MoveLogURL:      Get("MOVE_LOG_URL", ""),
		MoveLogInterval: GetDuration("MOVE_LOG_INTERVAL", 10*time.Second),
		MoveLogTimeout:  GetDuration("MOVE_LOG_TIMEOUT", 5*time.Second),

		MQTTBroker:   Get("MQTT_BROKER", ""),
		MQTTClientID: Get("MQTT_CLIENT_ID", "geotag-service"),
		MQTTUsername: Get("MQTT_USERNAME", ""),
		MQTTPassword: Get("MQTT_PASSWORD", ""),
		MQTTTopic:    Get("MQTT_TOPIC", "lights"),

		InfluxURL:    Get("INFLUX_URL", ""),
		InfluxToken:  Get("INFLUX_TOKEN", ""),
		InfluxOrg:    Get("INFLUX_ORG", "geotag"),
		InfluxBucket: Get("INFLUX_BUCKET", "rooms"),

		MovementThresholdMeters: GetFloat("MOVEMENT_THRESHOLD_METERS", 2),
		RoomEntryEpsilon:        GetFloat("ROOM_ENTRY_EPSILON", 0.00008),

		BrightnessReblendDelay: GetDuration("BRIGHTNESS_REBLEND_DELAY", 10*time.Minute),
		BrightnessDecayDelay:   GetDuration("BRIGHTNESS_DECAY_DELAY", 3*time.Second),
		BrightnessDecayPeriod:  GetDuration("BRIGHTNESS_DECAY_PERIOD", 10*time.Millisecond),
	}
}

func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid int key=%s value=%q err=%v (using %d)", key, v, err, fallback)
		return fallback
	}
	return n
}

func GetFloat(key string, fallback float64) float64 {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("config: invalid float key=%s value=%q err=%v (using %g)", key, v, err, fallback)
		return fallback
	}
	return f
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid duration key=%s value=%q err=%v (using %s)", key, v, err, fallback)
		return fallback
	}
	return d
}

func GetBool(key string, fallback bool) bool {
	v := Get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid bool key=%s value=%q err=%v (using %t)", key, v, err, fallback)
		return fallback
	}
	return b
}
