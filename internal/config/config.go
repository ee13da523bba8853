package config

import (
	"errors"
	"math"
	"time"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Entity store. An empty NGSILDURL selects the in-memory store.
	NGSILDURL       string
	NGSILDTimeout   time.Duration
	StoreMaxRetries int

	// Observation topic. When disabled, readings are assessed in-process.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Snapshot cache.
	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int
	RedisAddr    string
	RedisDB      int

	// Simulation.
	SimEnabled            bool
	SimTickInterval       time.Duration
	SimTidalCycle         time.Duration
	SimTidalAmplitude     float64
	SimRainChance         float64
	SimRainDuration       time.Duration
	SimRainDurationJitter time.Duration
	SimRainIntensityMin   float64
	SimRainIntensityMax   float64
	SimSeed               uint64
	ZonesFile             string

	// Snapshot and distribution.
	CoordPrecision     int
	BoundsMinLat       float64
	BoundsMaxLat       float64
	BoundsMinLng       float64
	BoundsMaxLng       float64
	DeltaPageSize      int
	SnapshotQueryLimit int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var r envReader

	cfg := &Config{
		HTTPAddr:        EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", "10s", false),

		NGSILDURL:       EnvOrDefault("NGSILD_URL", ""),
		NGSILDTimeout:   r.duration("NGSILD_TIMEOUT", "5s", false),
		StoreMaxRetries: r.integer("STORE_MAX_RETRIES", 3, 0, 10),

		KafkaEnabled:       r.boolean("KAFKA_ENABLED", false),
		KafkaBrokers:       ParseBrokers(EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         EnvOrDefault("KAFKA_TOPIC", "flood-observations"),
		KafkaGroupID:       EnvOrDefault("KAFKA_GROUP_ID", "floodwatch-risk-engine"),
		BatchSize:          r.integer("BATCH_SIZE", 50, 1, 1000),
		BatchFlushInterval: r.duration("BATCH_FLUSH_INTERVAL", "500ms", false),

		CacheBackend: r.oneOf("CACHE_BACKEND", CacheMemory, CacheMemory, CacheRedis, CacheNone),
		CacheTTL:     r.duration("CACHE_TTL", "10s", false),
		CacheSize:    r.integer("CACHE_SIZE", 8, 1, 10000),
		RedisAddr:    EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:      r.integer("REDIS_DB", 0, 0, 15),

		SimEnabled:            r.boolean("SIM_ENABLED", true),
		SimTickInterval:       r.duration("SIM_TICK_INTERVAL", "20s", false),
		SimTidalCycle:         r.duration("SIM_TIDAL_CYCLE", "15m", false),
		SimTidalAmplitude:     r.float("SIM_TIDAL_AMPLITUDE", 0.25, 0, 5),
		SimRainChance:         r.float("SIM_RAIN_CHANCE", 0.02, 0, 1),
		SimRainDuration:       r.duration("SIM_RAIN_DURATION", "4m", false),
		SimRainDurationJitter: r.duration("SIM_RAIN_DURATION_JITTER", "1m", true),
		SimRainIntensityMin:   r.float("SIM_RAIN_INTENSITY_MIN", 0.6, 0, 1),
		SimRainIntensityMax:   r.float("SIM_RAIN_INTENSITY_MAX", 1.0, 0, 1),
		SimSeed:               uint64(r.integer("SIM_SEED", 0, 0, math.MaxInt32)),
		ZonesFile:             EnvOrDefault("ZONES_FILE", ""),

		CoordPrecision:     r.integer("COORD_PRECISION", 5, 0, 8),
		BoundsMinLat:       r.float("BOUNDS_MIN_LAT", 8.5, -90, 90),
		BoundsMaxLat:       r.float("BOUNDS_MAX_LAT", 23.4, -90, 90),
		BoundsMinLng:       r.float("BOUNDS_MIN_LNG", 102.1, -180, 180),
		BoundsMaxLng:       r.float("BOUNDS_MAX_LNG", 109.5, -180, 180),
		DeltaPageSize:      r.integer("DELTA_PAGE_SIZE", 100, 1, 1000),
		SnapshotQueryLimit: r.integer("SNAPSHOT_QUERY_LIMIT", 1000, 1, 100000),
	}
	if r.err != nil {
		return nil, r.err
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.CacheBackend == CacheRedis && cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required when CACHE_BACKEND is redis")
	}
	if cfg.SimRainIntensityMin > cfg.SimRainIntensityMax {
		return nil, errors.New("SIM_RAIN_INTENSITY_MIN must not exceed SIM_RAIN_INTENSITY_MAX")
	}
	if cfg.SimRainDurationJitter >= cfg.SimRainDuration {
		return nil, errors.New("SIM_RAIN_DURATION_JITTER must be shorter than SIM_RAIN_DURATION")
	}
	if cfg.BoundsMinLat >= cfg.BoundsMaxLat || cfg.BoundsMinLng >= cfg.BoundsMaxLng {
		return nil, errors.New("BOUNDS_MIN_* must be below BOUNDS_MAX_*")
	}

	return cfg, nil
}
