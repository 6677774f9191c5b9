// README: Config loader with env defaults for HTTP, storage, messaging, Firebase, Maps and platform settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}
	DB struct {
		// DSN empty means in-memory stores.
		DSN string
	}
	Redis struct {
		Addr string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
		// AuthDisabled trusts X-User-ID / X-User-Role headers; local runs only.
		AuthDisabled bool
	}
	Maps struct {
		APIKey string
		Region string
	}
	Platform struct {
		AccountID   string
		Currency    string
		PricingFile string
		// UsersFile is a YAML roster upserted at startup.
		UsersFile string
	}
	Log struct {
		Level   string
		Service string
	}
}

// Load reads TH_* environment variables. Every malformed value is reported,
// not just the first.
func Load() (Config, error) {
	var (
		cfg  Config
		errs []error
	)
	cfg.HTTP.Addr = envOrDefault("TH_HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = time.Duration(envOrDefaultInt("TH_SHUTDOWN_SECONDS", 10, &errs)) * time.Second
	cfg.DB.DSN = envOrDefault("TH_DB_DSN", "")
	cfg.Redis.Addr = envOrDefault("TH_REDIS_ADDR", "")
	cfg.Kafka.Brokers = splitList(envOrDefault("TH_KAFKA_BROKERS", ""))
	cfg.Kafka.Topic = envOrDefault("TH_KAFKA_TOPIC", "transferhub.job-events")
	cfg.Firebase.ProjectID = envOrDefault("TH_FIREBASE_PROJECT_ID", "")
	cfg.Firebase.CredentialsFile = envOrDefault("TH_FIREBASE_CREDENTIALS", "")
	cfg.Firebase.AuthDisabled = envOrDefaultBool("TH_AUTH_DISABLED", false, &errs)
	cfg.Maps.APIKey = envOrDefault("TH_MAPS_API_KEY", "")
	cfg.Maps.Region = envOrDefault("TH_MAPS_REGION", "")
	cfg.Platform.AccountID = envOrDefault("TH_PLATFORM_ACCOUNT_ID", "platform")
	cfg.Platform.Currency = envOrDefault("TH_CURRENCY", "EUR")
	cfg.Platform.PricingFile = envOrDefault("TH_PRICING_FILE", "")
	cfg.Platform.UsersFile = envOrDefault("TH_USERS_FILE", "")
	cfg.Log.Level = envOrDefault("TH_LOG_LEVEL", "info")
	cfg.Log.Service = envOrDefault("TH_SERVICE_NAME", "transferhub-api")

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("TH_HTTP_ADDR must not be empty"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("TH_SHUTDOWN_SECONDS must be > 0"))
	}
	if len(c.Platform.Currency) != 3 {
		errs = append(errs, fmt.Errorf("TH_CURRENCY %q is not an ISO 4217 code", c.Platform.Currency))
	}
	if c.Platform.AccountID == "" {
		errs = append(errs, errors.New("TH_PLATFORM_ACCOUNT_ID must not be empty"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("TH_KAFKA_TOPIC is required with TH_KAFKA_BROKERS"))
	}
	if !c.Firebase.AuthDisabled && c.Firebase.ProjectID == "" {
		errs = append(errs, errors.New("TH_FIREBASE_PROJECT_ID is required unless TH_AUTH_DISABLED=true"))
	}
	return errors.Join(errs...)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
