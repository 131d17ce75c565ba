package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	CacheDir  string
	ConfigDir string
	LogLevel  string

	FetchWorkers int

	// DownloadTimeout bounds a single tile download. Zero adds no bound
	// here; downloads then run under the caller's context deadline.
	DownloadTimeout time.Duration

	MetricsAddr string

	IndexBackend string
	RedisAddr    string

	SRTMUser          string
	SRTMPassword      string
	SRTMErrorPatterns []string
}

func FromEnv() Config {
	workers := getint("HGT_FETCH_WORKERS", 1)
	if workers < 1 {
		workers = 1
	}

	backend := strings.ToLower(getenv("HGT_INDEX_BACKEND", "file"))
	if backend != "redis" {
		backend = "file"
	}

	cacheDir := getenv("HGT_CACHE_DIR", "./hgt")

	return Config{
		CacheDir:  cacheDir,
		ConfigDir: getenv("HGT_CONFIG_DIR", cacheDir),
		LogLevel:  getenv("LOG_LEVEL", "info"),

		FetchWorkers:    workers,
		DownloadTimeout: getduration("HGT_DOWNLOAD_TIMEOUT", 0),

		MetricsAddr: getenv("HGT_METRICS_ADDR", ""),

		IndexBackend: backend,
		RedisAddr:    getenv("HGT_REDIS_ADDR", "localhost:6379"),

		SRTMUser:          getenv("HGT_SRTM_USER", ""),
		SRTMPassword:      getenv("HGT_SRTM_PASSWORD", ""),
		SRTMErrorPatterns: getlist("HGT_SRTM_ERROR_PATTERNS", "Invalid scene or product"),
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

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a,b,c" into a list, dropping empty entries
func getlist(k, def string) []string {
	raw := getenv(k, def)
	var out []string
	for p := range strings.SplitSeq(raw, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
