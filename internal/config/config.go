package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BidWorks/Outreach/internal/models"
)

// Config carries every tunable the outreach service reads at startup. All
// numeric defaults mirror historically observed behavior and should be
// re-confirmed against real response data before being treated as policy.
type Config struct {
	Addr        string
	StoreKind   string
	DatabaseURL string

	// Per-tier discovery source endpoints. Unset tiers are not queried.
	SourceURLs map[models.Tier]string

	// Kafka. Empty brokers disable the outbound sender and event stream
	// (an in-memory sender is used instead, which only makes sense in dev).
	KafkaBrokers  []string
	OutboundTopic string
	EventTopic    string

	// S3 archive of completed campaign summaries. Empty bucket disables it.
	ArchiveBucket string
	ArchivePrefix string

	// Discovery.
	StageRadii []int
	StagePause time.Duration

	// Strategy.
	ResponseRates map[models.Tier]float64
	ContactCaps   map[models.Tier]int

	// Campaign timing per urgency bucket.
	Durations map[models.Urgency]time.Duration

	// Execution.
	MaxConcurrentSends int
	CheckInPoll        time.Duration
}

const defaultAddr = ":8074"

// Load reads configuration from the environment. Only a missing DATABASE_URL
// is fatal when OUTREACH_STORE=postgres (the default); everything else falls
// back to defaults.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("OUTREACH_ADDR", defaultAddr),
		StoreKind:   getEnv("OUTREACH_STORE", "postgres"),
		DatabaseURL: firstNonEmpty(os.Getenv("OUTREACH_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		SourceURLs: map[models.Tier]string{
			models.TierA: os.Getenv("OUTREACH_SOURCE_A_URL"),
			models.TierB: os.Getenv("OUTREACH_SOURCE_B_URL"),
			models.TierC: os.Getenv("OUTREACH_SOURCE_C_URL"),
		},
		KafkaBrokers:  parseCSV(os.Getenv("OUTREACH_KAFKA_BROKERS")),
		OutboundTopic: getEnv("OUTREACH_OUTBOUND_TOPIC", "outreach.outbound"),
		EventTopic:    getEnv("OUTREACH_EVENT_TOPIC", "outreach.events"),
		ArchiveBucket: os.Getenv("OUTREACH_ARCHIVE_BUCKET"),
		ArchivePrefix: getEnv("OUTREACH_ARCHIVE_PREFIX", "outreach"),
		StageRadii:    parseInts(getEnv("OUTREACH_STAGE_RADII", "15,25,40,60,100")),
		StagePause:    getDuration("OUTREACH_STAGE_PAUSE", 150*time.Millisecond),
		ResponseRates: map[models.Tier]float64{
			models.TierA: getFloat("OUTREACH_RATE_A", 0.90),
			models.TierB: getFloat("OUTREACH_RATE_B", 0.50),
			models.TierC: getFloat("OUTREACH_RATE_C", 0.33),
		},
		ContactCaps: map[models.Tier]int{
			models.TierA: getInt("OUTREACH_CAP_A", 5),
			models.TierB: getInt("OUTREACH_CAP_B", 10),
			models.TierC: getInt("OUTREACH_CAP_C", 15),
		},
		Durations: map[models.Urgency]time.Duration{
			models.UrgencyEmergency: getDuration("OUTREACH_DURATION_EMERGENCY", 2*time.Hour),
			models.UrgencyUrgent:    getDuration("OUTREACH_DURATION_URGENT", 8*time.Hour),
			models.UrgencyStandard:  getDuration("OUTREACH_DURATION_STANDARD", 48*time.Hour),
			models.UrgencyFlexible:  getDuration("OUTREACH_DURATION_FLEXIBLE", 168*time.Hour),
		},
		MaxConcurrentSends: getInt("OUTREACH_MAX_CONCURRENT_SENDS", 8),
		CheckInPoll:        getDuration("OUTREACH_CHECKIN_POLL", 15*time.Second),
	}
	if cfg.StoreKind == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or OUTREACH_DATABASE_URL required")
	}
	if len(cfg.StageRadii) == 0 {
		return Config{}, fmt.Errorf("OUTREACH_STAGE_RADII must list at least one radius")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseInts(raw string) []int {
	var out []int
	for _, p := range parseCSV(raw) {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
