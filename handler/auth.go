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

package handler

import (
	"time"

	"github.com/bigbird-vault/bb-api/identity"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type signupParams struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	Avatar    string `json:"avatar"`
}

type loginParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func issueToken(userID string) (string, error) {
	t := jwt.New()
	if err := t.Set(jwt.SubjectKey, userID); err != nil {
		return "", err
	}
	if err := t.Set(jwt.IssuedAtKey, time.Now()); err != nil {
		return "", err
	}
	if err := t.Set(jwt.ExpirationKey, time.Now().Add(24*time.Hour)); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(t, jwa.HS256, []byte(viper.GetString("auth.secret")))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Signup registers a new user and returns a bearer token for it
func Signup(c *fiber.Ctx) error {
	params := signupParams{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		log.Warn().Stack().Err(err).Msg("signup bad request")
		return errorResponse(c, fiber.StatusBadRequest, "malformed request body")
	}

	if params.Email == "" || params.Username == "" || params.Password == "" ||
		params.FirstName == "" || params.LastName == "" {
		return errorResponse(c, fiber.StatusBadRequest, "email, username, password, firstName and lastName are required")
	}

	subLog := log.With().Str("Email", params.Email).Str("Username", params.Username).Logger()

	// advisory pre-check for a friendlier conflict message; the database
	// uniqueness constraints remain the authoritative guard
	switch err := identity.CheckExisting(c.Context(), params.Email, params.Username); err {
	case nil:
	case identity.ErrEmailTaken, identity.ErrUsernameTaken:
		return errorResponse(c, fiber.StatusConflict, err.Error())
	default:
		subLog.Error().Stack().Err(err).Msg("could not check for existing user")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not hash password")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	user, err := identity.Create(c.Context(), identity.CreateParams{
		Email:          params.Email,
		Username:       params.Username,
		FirstName:      params.FirstName,
		LastName:       params.LastName,
		HashedPassword: string(hashed),
		Avatar:         params.Avatar,
	})
	if err != nil {
		if err == identity.ErrEmailTaken || err == identity.ErrUsernameTaken {
			return errorResponse(c, fiber.StatusConflict, err.Error())
		}
		subLog.Error().Stack().Err(err).Msg("could not create user")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	token, err := issueToken(user.ID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not sign token")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"user": user, "token": token},
	})
}

// Login verifies credentials and returns a bearer token
func Login(c *fiber.Ctx) error {
	params := loginParams{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		log.Warn().Stack().Err(err).Msg("login bad request")
		return errorResponse(c, fiber.StatusBadRequest, "malformed request body")
	}

	subLog := log.With().Str("Email", params.Email).Logger()

	user, err := identity.ByEmail(c.Context(), params.Email)
	if err != nil {
		if err == identity.ErrNotFound {
			return errorResponse(c, fiber.StatusUnauthorized, "invalid email or password")
		}
		subLog.Error().Stack().Err(err).Msg("could not look up user")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(params.Password)); err != nil {
		subLog.Warn().Msg("login failed; password mismatch")
		return errorResponse(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	token, err := issueToken(user.ID)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not sign token")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return successResponse(c, fiber.Map{"user": user, "token": token})
}

// Me returns the authenticated user's account record
func Me(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	user, err := identity.ByID(c.Context(), userID)
	if err != nil {
		if err == identity.ErrNotFound {
			return errorResponse(c, fiber.StatusNotFound, "user not found")
		}
		log.Error().Stack().Err(err).Str("UserID", userID).Msg("could not look up user")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	return successResponse(c, user)
}
