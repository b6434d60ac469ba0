package app

import (
	"strings"

	"github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/database"
	"github.com/charlesng35/notistore/internal/realtime"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		Audience:       c.JWT.Audience,
		AccessTokenTTL: ttl,
	}
}

// ConnectionConfig converts DatabaseConfig into database.Config, picking the credentials block
// that matches the configured driver.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          c.Driver,
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var creds DBAuthConfig
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case database.DialectPostgres, "postgresql", "pg":
		creds = c.Postgres
	case database.DialectMySQL, "mariadb":
		creds = c.MySQL
	default:
		return cfg
	}

	cfg.Host = creds.Host
	cfg.Port = creds.Port
	cfg.Name = creds.Database
	cfg.User = creds.Username
	cfg.Password = creds.Password
	return cfg
}

// HubOptions converts WebSocketConfig into realtime hub options.
func (c WebSocketConfig) HubOptions() realtime.Options {
	return realtime.Options{
		AllowedOrigins: c.AllowedOrigins,
		BufferSize:     c.BufferSize,
	}
}

// PublisherConfig converts SNSConfig into the changefeed SNS settings.
func (c SNSConfig) PublisherConfig() changefeed.SNSConfig {
	return changefeed.SNSConfig{
		Region:          c.Region,
		TopicARN:        c.TopicARN,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
	}
}
