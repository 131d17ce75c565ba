package kafka

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Enabled bool

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	// InitialOldest makes a fresh consumer group replay the full topic so a
	// restarted fleet does not miss coverage changes published while down.
	InitialOldest bool
}

func FromEnv() Config {
	brokers := strings.TrimSpace(os.Getenv("HGT_REFRESH_BROKERS"))
	if brokers == "" {
		brokers = "localhost:9092"
	}
	topic := strings.TrimSpace(os.Getenv("HGT_REFRESH_TOPIC"))
	if topic == "" {
		topic = "coverage-refresh"
	}
	group := strings.TrimSpace(os.Getenv("HGT_REFRESH_GROUP_ID"))
	if group == "" {
		group = "hgt-index-refresher"
	}

	return Config{
		Enabled:          strings.EqualFold(os.Getenv("HGT_REFRESH_ENABLED"), "true"),
		Brokers:          split(brokers),
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
