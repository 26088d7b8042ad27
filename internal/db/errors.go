package db

import "errors"

var (
	ErrFailedToParseDBConfig    = errors.New("db: failed to parse database configuration")
	ErrFailedToOpenDBConnection = errors.New("db: failed to open database connection")
	ErrSetDialect               = errors.New("db migrator: failed to set dialect")
	ErrApplyMigrations          = errors.New("db migrator: failed to apply migrations")

	ErrEmptyRedisURL         = errors.New("redis: empty connection URL")
	ErrFailedToParseRedisURL = errors.New("redis: failed to parse connection URL")
	ErrRedisConnectionFailed = errors.New("redis: failed to establish connection")
)
