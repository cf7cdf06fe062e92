package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// AllowQueryToken accepts ?access_token= on the WebSocket handshake for
	// browser clients that cannot set the Authorization header.
	AllowQueryToken bool `mapstructure:"allow_query_token" yaml:"allow_query_token"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer       int   `mapstructure:"client_buffer" yaml:"client_buffer"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	MaxBodyLength int           `mapstructure:"max_body_length" yaml:"max_body_length"`
	HistoryLimit  int           `mapstructure:"history_limit" yaml:"history_limit"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`

	// MembershipCacheTTL of zero disables the membership cache.
	MembershipCacheTTL time.Duration `mapstructure:"membership_cache_ttl" yaml:"membership_cache_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "projectchat.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "projectchat",
		JWTAudience:        "projectchat",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 20,
		ClientBuffer:       64,
		RateLimitPerMinute: 120,
		MaxBodyLength:      4000,
		HistoryLimit:       0,
		StoreTimeout:       5 * time.Second,
		MembershipCacheTTL: 30 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.AllowQueryToken {
		c.AllowQueryToken = true
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.MaxBodyLength != 0 {
		c.MaxBodyLength = other.MaxBodyLength
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.StoreTimeout != 0 {
		c.StoreTimeout = other.StoreTimeout
	}
	if other.MembershipCacheTTL != 0 {
		c.MembershipCacheTTL = other.MembershipCacheTTL
	}
}
