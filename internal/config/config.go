// Package config loads the sync engine's settings from a TOML file,
// environment variables, and CLI flags, via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every setting the sync engine recognises, including the
// tuning parameters exposed for reconnect backoff and batch flushing.
type Config struct {
	LogLevel string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	LedgerURL      string
	LedgerParties  []string
	LedgerBegin    int64
	LedgerFakeUser string

	KeycloakClientID      string
	KeycloakTokenEndpoint string
	KeycloakGrantType     string
	KeycloakClientSecret  string
	KeycloakUsername      string
	KeycloakPassword      string

	BatchMaxSize   int
	BatchMaxDelay  time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	UseKeycloak bool
	AccessToken string
	Fresh       bool
}

// Load merges config file, environment variables, and flags into Config.
// cfgFile, when empty, falls back to ./config/config.toml.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGERSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "info")
	v.SetDefault("ledger.begin_offset", int64(0))
	v.SetDefault("ledger.fake_jwt_user", "sandbox-operator")
	v.SetDefault("keycloak.grant_type", "client_credentials")
	v.SetDefault("batch.max_size", 100)
	v.SetDefault("batch.max_delay", time.Second)
	v.SetDefault("backoff.initial", time.Second)
	v.SetDefault("backoff.max", 60*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel: v.GetString("logging.level"),

		Neo4jURI:      v.GetString("neo4j.uri"),
		Neo4jUser:     v.GetString("neo4j.user"),
		Neo4jPassword: v.GetString("neo4j.password"),

		LedgerURL:      v.GetString("ledger.url"),
		LedgerParties:  getStringSlice(v, "ledger.parties"),
		LedgerBegin:    v.GetInt64("ledger.begin_offset"),
		LedgerFakeUser: v.GetString("ledger.fake_jwt_user"),

		KeycloakClientID:      v.GetString("keycloak.client_id"),
		KeycloakTokenEndpoint: v.GetString("keycloak.token_endpoint"),
		KeycloakGrantType:     v.GetString("keycloak.grant_type"),
		KeycloakClientSecret:  v.GetString("keycloak.client_secret"),
		KeycloakUsername:      v.GetString("keycloak.username"),
		KeycloakPassword:      v.GetString("keycloak.password"),

		BatchMaxSize:   v.GetInt("batch.max_size"),
		BatchMaxDelay:  v.GetDuration("batch.max_delay"),
		BackoffInitial: v.GetDuration("backoff.initial"),
		BackoffMax:     v.GetDuration("backoff.max"),

		UseKeycloak: v.GetBool("use-keycloak"),
		AccessToken: v.GetString("access-token"),
		Fresh:       v.GetBool("fresh"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
