// README: Config loader with env defaults for HTTP, DB, Redis, routing and core tunables.
package config

import (
	"os"
	"strconv"
	"time"
)

type MatchConfig struct {
	// MaxDetour is the total extra driving time an insertion may impose
	// on the existing route before a candidate is rejected.
	MaxDetour time.Duration
	// MaxDetourMeters is the distance ceiling for the same check.
	MaxDetourMeters float64
}

type TripConfig struct {
	// NotStartedGrace is how long past the departure time a trip may stay
	// NotStarted before the sweep cancels it.
	NotStartedGrace   time.Duration
	SweepInterval     time.Duration
	DriverLeavePolicy string // "cancel" or "promote"
}

type TrackingConfig struct {
	// PreDepartureGrace admits early pings shortly before departure.
	PreDepartureGrace     time.Duration
	MovingThresholdMeters float64
	MovingWindow          time.Duration
	SnapshotTTL           time.Duration
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Routing struct {
		GoogleAPIKey string
		OSRMEndpoint string
		CacheTTL     time.Duration
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Notify struct {
		Buffer      int
		SendTimeout time.Duration
	}
	Match    MatchConfig
	Trip     TripConfig
	Tracking TrackingConfig
	LogLevel string
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("LIANE_HTTP_ADDR", ":8080")
	cfg.DB.DSN = os.Getenv("LIANE_DB_DSN")
	cfg.Redis.Addr = os.Getenv("LIANE_REDIS_ADDR")

	cfg.Routing.GoogleAPIKey = os.Getenv("LIANE_MAPS_API_KEY")
	cfg.Routing.OSRMEndpoint = os.Getenv("LIANE_OSRM_ENDPOINT")
	cfg.Routing.CacheTTL = envOrDefaultDuration("LIANE_ROUTING_CACHE_TTL", 5*time.Minute)

	cfg.Firebase.ProjectID = os.Getenv("LIANE_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("LIANE_FIREBASE_CREDENTIALS")

	cfg.Notify.Buffer = envOrDefaultInt("LIANE_NOTIFY_BUFFER", 256)
	cfg.Notify.SendTimeout = envOrDefaultDuration("LIANE_NOTIFY_SEND_TIMEOUT", 3*time.Second)

	cfg.Match.MaxDetour = envOrDefaultDuration("LIANE_MATCH_MAX_DETOUR", 15*time.Minute)
	cfg.Match.MaxDetourMeters = envOrDefaultFloat("LIANE_MATCH_MAX_DETOUR_METERS", 10_000)

	cfg.Trip.NotStartedGrace = envOrDefaultDuration("LIANE_TRIP_NOT_STARTED_GRACE", time.Hour)
	cfg.Trip.SweepInterval = envOrDefaultDuration("LIANE_TRIP_SWEEP_INTERVAL", time.Minute)
	cfg.Trip.DriverLeavePolicy = envOrDefault("LIANE_TRIP_DRIVER_LEAVE_POLICY", "cancel")

	cfg.Tracking.PreDepartureGrace = envOrDefaultDuration("LIANE_TRACKING_PRE_DEPARTURE_GRACE", 15*time.Minute)
	cfg.Tracking.MovingThresholdMeters = envOrDefaultFloat("LIANE_TRACKING_MOVING_THRESHOLD_METERS", 100)
	cfg.Tracking.MovingWindow = envOrDefaultDuration("LIANE_TRACKING_MOVING_WINDOW", 3*time.Minute)
	cfg.Tracking.SnapshotTTL = envOrDefaultDuration("LIANE_TRACKING_SNAPSHOT_TTL", 24*time.Hour)

	cfg.LogLevel = envOrDefault("LIANE_LOG_LEVEL", "info")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
