package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EventsCfg struct {
	Enabled    bool
	Brokers    string
	Topic      string
	GroupID    string
	InstanceID string
	DedupeSize int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr              string
	LogLevel          string
	LogConsole        bool
	Backend           string
	CoordScheme       string
	SRID              int
	UpdatePolicy      string
	RedisAddr         string
	MongoURI          string
	MongoDB           string
	H3Res             int
	MaxCoverCells     int
	CoveringCacheSize int
	BackendOpTimeout  time.Duration
	SeedDemo          bool
	Events            EventsCfg
	Metrics           MetricsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 7)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}
	host, _ := os.Hostname()

	return Config{
		Addr:              getenv("ADDR", ":8090"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogConsole:        getbool("LOG_CONSOLE", false),
		Backend:           strings.ToLower(getenv("BACKEND", "memory")),
		CoordScheme:       getenv("COORD_SCHEME", "geographic2d"),
		SRID:              getint("SRID", 4326),
		UpdatePolicy:      strings.ToLower(getenv("UPDATE_POLICY", "upsert")),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		MongoURI:          getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getenv("MONGO_DB", "spatial"),
		H3Res:             res,
		MaxCoverCells:     getint("H3_MAX_COVER_CELLS", 4096),
		CoveringCacheSize: getint("COVERING_CACHE_SIZE", 1024),
		BackendOpTimeout:  getduration("BACKEND_OP_TIMEOUT", 2*time.Second),
		SeedDemo:          getbool("SEED_DEMO", true),
		Events: EventsCfg{
			Enabled:    getbool("EVENTS_ENABLED", false),
			Brokers:    getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:      getenv("KAFKA_TOPIC", "spatial-mutations"),
			GroupID:    getenv("KAFKA_GROUP_ID", "spatiald-"+host),
			InstanceID: getenv("INSTANCE_ID", host),
			DedupeSize: getint("EVENTS_DEDUPE_SIZE", 4096),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
