package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/itemshare/internal/flagx"
	"github.com/dmitrijs2005/itemshare/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "15m" or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	TokenClockSkew               timex.Duration `json:"token_clock_skew"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	LoginRatePerMinute           int            `json:"login_rate_per_minute"`
	RequestTimeout               timex.Duration `json:"request_timeout"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
	HealthCheckInterval          timex.Duration `json:"health_check_interval"`
	LogLevel                     string         `json:"log_level"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
}

func toJson(c *Config) *JsonConfig {
	return &JsonConfig{
		EndpointAddrHTTP:             c.EndpointAddrHTTP,
		EndpointAddrGRPC:             c.EndpointAddrGRPC,
		DatabaseDSN:                  c.DatabaseDSN,
		SecretKey:                    c.SecretKey,
		AccessTokenValidityDuration:  timex.Duration{Duration: c.AccessTokenValidityDuration},
		RefreshTokenValidityDuration: timex.Duration{Duration: c.RefreshTokenValidityDuration},
		TokenClockSkew:               timex.Duration{Duration: c.TokenClockSkew},
		BcryptCost:                   c.BcryptCost,
		LoginRatePerMinute:           c.LoginRatePerMinute,
		RequestTimeout:               timex.Duration{Duration: c.RequestTimeout},
		ShutdownTimeout:              timex.Duration{Duration: c.ShutdownTimeout},
		HealthCheckInterval:          timex.Duration{Duration: c.HealthCheckInterval},
		LogLevel:                     c.LogLevel,
		S3RootUser:                   c.S3RootUser,
		S3RootPassword:               c.S3RootPassword,
		S3Bucket:                     c.S3Bucket,
		S3Region:                     c.S3Region,
		S3BaseEndpoint:               c.S3BaseEndpoint,
	}
}

func (j *JsonConfig) apply(c *Config) {
	c.EndpointAddrHTTP = j.EndpointAddrHTTP
	c.EndpointAddrGRPC = j.EndpointAddrGRPC
	c.DatabaseDSN = j.DatabaseDSN
	c.SecretKey = j.SecretKey
	c.AccessTokenValidityDuration = j.AccessTokenValidityDuration.Duration
	c.RefreshTokenValidityDuration = j.RefreshTokenValidityDuration.Duration
	c.TokenClockSkew = j.TokenClockSkew.Duration
	c.BcryptCost = j.BcryptCost
	c.LoginRatePerMinute = j.LoginRatePerMinute
	c.RequestTimeout = j.RequestTimeout.Duration
	c.ShutdownTimeout = j.ShutdownTimeout.Duration
	c.HealthCheckInterval = j.HealthCheckInterval.Duration
	c.LogLevel = j.LogLevel
	c.S3RootUser = j.S3RootUser
	c.S3RootPassword = j.S3RootPassword
	c.S3Bucket = j.S3Bucket
	c.S3Region = j.S3Region
	c.S3BaseEndpoint = j.S3BaseEndpoint
}

// parseJson overlays the file named by -c/-config onto config. Keys missing
// from the file keep their current values. Without the flag nothing happens.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	j := toJson(config)
	if err := json.Unmarshal(file, j); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	j.apply(config)
	return nil
}
