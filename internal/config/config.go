package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/park285/winchance-agent/internal/domain"
)

const (
	DefaultAPIURL        = "https://wot.stasev.dev"
	DefaultRatingsURL    = "https://api.worldoftanks.eu/wot/account/info/"
	DefaultApplicationID = "d8e40cfdafb13e426126fd330b61e104"
	DefaultRegion        = "EU"
)

type AppConfig struct {
	HostBaseURL string
	HostWSURL   string
	HostToken   string
	HostEgress  string // overlay transport: http, ws or auto

	DataDir string

	APIURL     string
	APIEnabled bool
	APIRegion  string

	ApplicationID string
	RatingsURL    string

	RedisURL    string
	DatabaseURL string
	MetricsAddr string

	MessagesDir string
	CatalogFile string

	ZoneHangar  int
	ZoneLoading int
	ZoneBattle  int

	PollInterval       time.Duration
	SettleDelay        time.Duration
	PlayerRetryDelay   time.Duration
	DeliveryRetries    int
	DeliveryRetryDelay time.Duration
	HTTPTimeout        time.Duration

	SendRawResults   bool
	IncludeRawResult bool
}

// ContextDir is where per-arena context files live.
func (c *AppConfig) ContextDir() string { return filepath.Join(c.DataDir, "battle_context") }

func (c *AppConfig) PendingFile() string { return filepath.Join(c.DataDir, "pending_battles.json") }

func (c *AppConfig) OverlayFile() string { return filepath.Join(c.DataDir, "mod_winchance.json") }

func (c *AppConfig) APIConfigFile() string { return filepath.Join(c.DataDir, "mod_winchance_api.json") }

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DataDir:            filepath.Join("mods", "configs", "mod_winchance"),
		APIURL:             DefaultAPIURL,
		APIEnabled:         true,
		APIRegion:          DefaultRegion,
		ApplicationID:      DefaultApplicationID,
		RatingsURL:         DefaultRatingsURL,
		ZoneHangar:         domain.ZoneHangar,
		ZoneLoading:        domain.ZoneLoading,
		ZoneBattle:         domain.ZoneBattle,
		PollInterval:       3 * time.Second,
		SettleDelay:        30 * time.Second,
		PlayerRetryDelay:   5 * time.Second,
		DeliveryRetries:    3,
		DeliveryRetryDelay: 5 * time.Second,
		HTTPTimeout:        10 * time.Second,
		SendRawResults:     true,
	}

	cfg.HostBaseURL = strings.TrimSpace(os.Getenv("HOST_BASE_URL"))
	cfg.HostWSURL = strings.TrimSpace(os.Getenv("HOST_WS_URL"))
	cfg.HostToken = strings.TrimSpace(os.Getenv("HOST_TOKEN"))
	cfg.HostEgress = "auto"
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("HOST_EGRESS"))); v {
	case "http", "ws", "auto":
		cfg.HostEgress = v
	}

	if v := strings.TrimSpace(os.Getenv("DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("API_URL")); v != "" {
		cfg.APIURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("API_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.APIEnabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("API_REGION")); v != "" {
		cfg.APIRegion = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(os.Getenv("WG_APPLICATION_ID")); v != "" {
		cfg.ApplicationID = v
	}
	if v := strings.TrimSpace(os.Getenv("RATINGS_URL")); v != "" {
		cfg.RatingsURL = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MetricsAddr = strings.TrimSpace(os.Getenv("METRICS_ADDR"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.CatalogFile = strings.TrimSpace(os.Getenv("CATALOG_FILE"))

	cfg.ZoneHangar = intEnv("ZONE_HANGAR", cfg.ZoneHangar)
	cfg.ZoneLoading = intEnv("ZONE_LOADING", cfg.ZoneLoading)
	cfg.ZoneBattle = intEnv("ZONE_BATTLE", cfg.ZoneBattle)

	cfg.PollInterval = durationEnv("POLL_INTERVAL", cfg.PollInterval)
	cfg.SettleDelay = durationEnv("SETTLE_DELAY", cfg.SettleDelay)
	cfg.PlayerRetryDelay = durationEnv("PLAYER_RETRY_DELAY", cfg.PlayerRetryDelay)
	cfg.DeliveryRetryDelay = durationEnv("DELIVERY_RETRY_DELAY", cfg.DeliveryRetryDelay)
	cfg.HTTPTimeout = durationEnv("HTTP_TIMEOUT", cfg.HTTPTimeout)
	if v := strings.TrimSpace(os.Getenv("DELIVERY_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DeliveryRetries = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("SEND_RAW_RESULTS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SendRawResults = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("INCLUDE_RAW_RESULT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeRawResult = b
		}
	}

	if cfg.HostBaseURL == "" {
		return nil, errors.New("HOST_BASE_URL is required")
	}
	if cfg.HostWSURL == "" {
		return nil, errors.New("HOST_WS_URL is required")
	}
	if cfg.ZoneHangar == cfg.ZoneBattle {
		return nil, errors.New("ZONE_HANGAR and ZONE_BATTLE must differ")
	}

	return cfg, nil
}

func intEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// durationEnv accepts "3s"-style durations or a plain number of seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
		return time.Duration(f * float64(time.Second))
	}
	return def
}
