package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PhotoSet holds the identity photos attached to a pending registration.
// Both public URLs and storage keys are kept so cleanup can delete the exact
// stored objects.
type PhotoSet struct {
	UserID       uuid.UUID
	FrontIDPhoto string
	BackIDPhoto  string
	SelfiePhoto  string
	FrontIDKey   string
	BackIDKey    string
	SelfieKey    string
	CreatedAt    time.Time
}

type UpsertPhotoSetParams struct {
	UserID       uuid.UUID
	FrontIDPhoto string
	BackIDPhoto  string
	SelfiePhoto  string
	FrontIDKey   string
	BackIDKey    string
	SelfieKey    string
}

func (db *Database) UpsertPhotoSet(ctx context.Context, params UpsertPhotoSetParams) (PhotoSet, error) {
	photos := PhotoSet{
		UserID:       params.UserID,
		FrontIDPhoto: params.FrontIDPhoto,
		BackIDPhoto:  params.BackIDPhoto,
		SelfiePhoto:  params.SelfiePhoto,
		FrontIDKey:   params.FrontIDKey,
		BackIDKey:    params.BackIDKey,
		SelfieKey:    params.SelfieKey,
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := db.Pool.Exec(ctx, `INSERT INTO temp_user_photos (user_id, front_id_photo, back_id_photo, selfie_photo, front_id_key, back_id_key, selfie_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET front_id_photo = $2, back_id_photo = $3, selfie_photo = $4, front_id_key = $5, back_id_key = $6, selfie_key = $7`,
		photos.UserID, photos.FrontIDPhoto, photos.BackIDPhoto, photos.SelfiePhoto, photos.FrontIDKey, photos.BackIDKey, photos.SelfieKey, photos.CreatedAt); err != nil {
		return photos, fmt.Errorf("database: failed to upsert photo set (user_id=%s): %w", photos.UserID, err)
	}
	return photos, nil
}

func (db *Database) GetPhotoSetByUserID(ctx context.Context, userID uuid.UUID) (PhotoSet, error) {
	var photos PhotoSet

	err := db.Pool.QueryRow(ctx, `SELECT user_id, front_id_photo, back_id_photo, selfie_photo, front_id_key, back_id_key, selfie_key, created_at FROM temp_user_photos WHERE user_id = $1`,
		userID).Scan(
		&photos.UserID, &photos.FrontIDPhoto, &photos.BackIDPhoto, &photos.SelfiePhoto, &photos.FrontIDKey, &photos.BackIDKey, &photos.SelfieKey, &photos.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return photos, ErrPhotoSetNotFound
		}
		return photos, fmt.Errorf("database: failed to scan photo set (user_id=%s): %w", userID, err)
	}
	return photos, nil
}

// Keys returns the storage keys of the three photos, skipping empties.
func (p PhotoSet) Keys() []string {
	var keys []string
	for _, key := range []string{p.FrontIDKey, p.BackIDKey, p.SelfieKey} {
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
