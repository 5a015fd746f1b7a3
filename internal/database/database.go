package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase() Database {
	return Database{
		Pool: nil,
	}
}

func (db *Database) Connect(ctx context.Context, connString string) error {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("unable to parse database configuration: %w", err)
	}

	db.Pool, err = pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("unable to create database pool: %w", err)
	}

	return nil
}

func (db *Database) Close() {
	db.Pool.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

var (
	ErrUserNotFound              = errors.New("user not found")
	ErrVerificationTokenNotFound = errors.New("verification token not found")
	ErrVerifiedEmailNotFound     = errors.New("verified email not found")
	ErrInstitutionNotFound       = errors.New("institution not found")
	ErrInventoryItemNotFound     = errors.New("inventory item not found")
	ErrPhotoSetNotFound          = errors.New("photo set not found")
	ErrNotificationNotFound      = errors.New("notification not found")
	ErrRegistrationNotPending    = errors.New("registration is not pending")
)
