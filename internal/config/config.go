// Package config loads the registry's settings the way the teacher
// registry's cmd/schemaregistry/main.go loaded its NATS/HTTP config —
// flags overriding environment overriding defaults — generalized from
// the teacher's bare flag+os.Getenv pair to github.com/spf13/viper bound
// to github.com/spf13/pflag, which also picks up an optional config
// file. Precedence: explicit flag > environment variable > config file
// > default.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Brokers           []string      `mapstructure:"brokers"`
	Topic             string        `mapstructure:"topic"`
	ReplicationFactor int16         `mapstructure:"replication_factor"`
	GroupID           string        `mapstructure:"group_id"`
	AdvertisedURL     string        `mapstructure:"advertised_url"`
	MasterEligibility bool          `mapstructure:"master_eligibility"`
	HTTPAddr          string        `mapstructure:"http_addr"`
	Debug             bool          `mapstructure:"debug"`
	ReadinessRefresh  time.Duration `mapstructure:"readiness_refresh"`
	ProduceTimeout    time.Duration `mapstructure:"produce_timeout"`
	BarrierTimeout    time.Duration `mapstructure:"barrier_timeout"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

// Load parses flags (via a dedicated pflag.FlagSet, so callers control
// exactly when os.Args is consulted) and environment variables (prefix
// SCHEMA_REGISTRY_) into a Config, optionally reading configPath first
// so flags/env still take precedence over file contents.
func Load(args []string, configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("schema_registry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("brokers", []string{"localhost:9092"})
	v.SetDefault("topic", "_schemas")
	v.SetDefault("replication_factor", int16(1))
	v.SetDefault("group_id", "schema-registry-election")
	v.SetDefault("advertised_url", "http://localhost:8081")
	v.SetDefault("master_eligibility", true)
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("debug", false)
	v.SetDefault("readiness_refresh", time.Second)
	v.SetDefault("produce_timeout", 10*time.Second)
	v.SetDefault("barrier_timeout", 60*time.Second)
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("metrics_addr", ":9100")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	fs := pflag.NewFlagSet("schema-registry", pflag.ContinueOnError)
	fs.StringSlice("brokers", nil, "Kafka bootstrap brokers")
	fs.String("topic", "", "schema log topic name")
	fs.Int16("replication-factor", 0, "schema log topic replication factor")
	fs.String("group-id", "", "consumer group id used for master election")
	fs.String("advertised-url", "", "URL this replica advertises to followers when master")
	fs.Bool("master-eligibility", true, "whether this replica may become master")
	fs.String("http-addr", "", "HTTP listen address")
	fs.Bool("debug", false, "enable debug logging")
	fs.Bool("metrics-enabled", false, "expose a Prometheus /metrics endpoint")
	fs.String("metrics-addr", "", "metrics HTTP listen address")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}
	// Flags are dashed ("master-eligibility") while config keys are
	// underscored ("master_eligibility"); bind each flag under its key.
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", bindErr)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
