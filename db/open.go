// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second
)

// Open connects to the store database and waits for it to answer a ping.
// dbType is "postgres" or "sqlite".
func Open(ctx context.Context, dbType, url string) (*sql.DB, error) {
	driver, err := driverName(dbType)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbType, err)
	}

	if driver == "sqlite" {
		// One writer; concurrent commits serialize on the connection.
		conn.SetMaxOpenConns(1)
		if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
			conn.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetConnMaxLifetime(time.Hour)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = conn.PingContext(ctx)
		if err == nil {
			slog.Info("database connected", "type", dbType)
			return conn, nil
		}

		slog.Warn("database ping failed", "attempt", attempt, "max", maxRetries, "error", err)
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				conn.Close()
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	conn.Close()
	return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxRetries, err)
}

func driverName(dbType string) (string, error) {
	switch dbType {
	case "postgres":
		return "postgres", nil
	case "sqlite":
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database type %q", dbType)
}
