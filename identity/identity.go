// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/observability/opentelemetry"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

// pgUniqueViolation is the SQLSTATE for a unique constraint failure
const pgUniqueViolation = "23505"

// User is an account record. HashedPassword is populated on reads; callers
// must strip it before returning a user over the wire.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	HashedPassword string    `json:"-"`
	Avatar         string    `json:"avatar,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateParams are the caller-supplied fields for a new user; the password
// must already be hashed
type CreateParams struct {
	Email          string
	Username       string
	FirstName      string
	LastName       string
	HashedPassword string
	Avatar         string
}

const userColumns = `id, email, username, first_name, last_name, hashed_password, avatar, created_at`

// CheckExisting reports whether email or username is already registered.
// Email takes priority so callers can produce a specific conflict message.
// This pre-check is advisory only; Create relies on the database uniqueness
// constraints as the authoritative guard.
func CheckExisting(ctx context.Context, email, username string) error {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "identity.CheckExisting")
	defer span.End()

	subLog := log.With().Str("Email", email).Str("Username", username).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when checking for existing user")
		return err
	}

	var emailExists, usernameExists bool
	checkSQL := `SELECT
		EXISTS (SELECT 1 FROM users WHERE email = $1),
		EXISTS (SELECT 1 FROM users WHERE username = $2)`
	err = trx.QueryRow(ctx, checkSQL, email, username).Scan(&emailExists, &usernameExists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not check for existing user")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if emailExists {
		return ErrEmailTaken
	}
	if usernameExists {
		return ErrUsernameTaken
	}
	return nil
}

// Create inserts a new user with a freshly generated id. A racing insert that
// slipped past CheckExisting surfaces here as ErrEmailTaken or
// ErrUsernameTaken via the unique constraints on users.
func Create(ctx context.Context, params CreateParams) (*User, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "identity.Create")
	defer span.End()

	subLog := log.With().Str("Email", params.Email).Str("Username", params.Username).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when creating user")
		return nil, err
	}

	u := &User{
		ID:             uuid.New().String(),
		Email:          params.Email,
		Username:       params.Username,
		FirstName:      params.FirstName,
		LastName:       params.LastName,
		HashedPassword: params.HashedPassword,
		Avatar:         params.Avatar,
	}

	insertSQL := `INSERT INTO users (id, email, username, first_name, last_name, hashed_password, avatar)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	var avatar interface{}
	if u.Avatar != "" {
		avatar = u.Avatar
	}
	err = trx.QueryRow(ctx, insertSQL, u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.HashedPassword, avatar).Scan(&u.CreatedAt)
	if err != nil {
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			subLog.Warn().Str("Constraint", pgErr.ConstraintName).Msg("user creation lost uniqueness race")
			if pgErr.ConstraintName == "users_username_key" {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "database insert failed")
		subLog.Error().Stack().Err(err).Msg("could not insert user")
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return nil, err
	}

	return u, nil
}

// ByEmail looks up a user by email
func ByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "identity.ByEmail")
	defer span.End()

	return findOne(ctx, span, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

// ByID looks up a user by its id
func ByID(ctx context.Context, id string) (*User, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "identity.ByID")
	defer span.End()

	return findOne(ctx, span, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func findOne(ctx context.Context, span trace.Span, sql string, arg interface{}) (*User, error) {
	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not get transaction when querying user")
		return nil, err
	}

	u := &User{}
	var avatar pgtype.Text
	err = trx.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.HashedPassword, &avatar, &u.CreatedAt)
	if err != nil {
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Error().Stack().Err(err).Msg("could not query user")
		return nil, err
	}

	if avatar.Status == pgtype.Present {
		u.Avatar = avatar.String
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return u, nil
}
