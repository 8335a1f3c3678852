package db

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/accountd/apiserver/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultPingTimeout    = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultMaxPoolSize    = 25
	defaultMinPoolSize    = 2
	defaultMaxConnIdle    = 2 * time.Minute
)

// Open connects to MongoDB and returns a handle to the configured database.
// The connection string and database name are required.
func Open(ctx context.Context, cfg config.Config) (*mongo.Database, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, errors.New("MONGODB_URL is required")
	}
	if strings.TrimSpace(cfg.Database.Name) == "" {
		return nil, errors.New("DATABASE_NAME is required")
	}

	opts := options.Client().
		ApplyURI(cfg.Database.URL).
		SetConnectTimeout(defaultConnectTimeout).
		SetMaxPoolSize(defaultMaxPoolSize).
		SetMinPoolSize(defaultMinPoolSize).
		SetMaxConnIdleTime(defaultMaxConnIdle)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return client.Database(cfg.Database.Name), nil
}

// BuildURL returns the connection string with the database name in the
// path, as required by the golang-migrate mongodb driver.
func BuildURL(cfg config.Config) (string, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return "", errors.New("MONGODB_URL is required")
	}

	u, err := url.Parse(cfg.Database.URL)
	if err != nil {
		return "", err
	}
	u.Path = "/" + cfg.Database.Name
	return u.String(), nil
}
