package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	DatabaseURL string        `mapstructure:"database_url"`

	// SignalingURL is the ws endpoint attendee clients dial.
	SignalingURL string `mapstructure:"signaling_url"`
	// APIBaseURL is the REST endpoint used for meeting authorization.
	APIBaseURL string `mapstructure:"api_base_url"`
	// STUNServers configure peer connectivity discovery. TURN relaying is not
	// part of this system.
	STUNServers []string `mapstructure:"stun_servers"`
	// TokenTTL bounds how old a signaling token may be when presented.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// JoinRateLimit caps join attempts per user per minute at the relay.
	JoinRateLimit int `mapstructure:"join_rate_limit"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("studify")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("signaling_url", "ws://localhost:8080/api/ws/meet")
	v.SetDefault("api_base_url", "http://localhost:8080/api")
	v.SetDefault("stun_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})
	v.SetDefault("token_ttl", "12h")
	v.SetDefault("join_rate_limit", 10)
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
