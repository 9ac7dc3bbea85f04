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

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Auth verifies the bearer token on a request and stores the authenticated
// user id in c.Locals("userID"). Tokens are HS256 signed with auth.secret by
// the login handler.
func Auth() fiber.Handler {
	secret := []byte(viper.GetString("auth.secret"))

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"success": false, "error": "missing or malformed bearer token"})
		}

		raw := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.Parse([]byte(raw),
			jwt.WithValidate(true),
			jwt.WithVerify(jwa.HS256, secret),
		)
		if err != nil {
			log.Warn().Stack().Err(err).Msg("token verification failed")
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"success": false, "error": "invalid or expired token"})
		}

		c.Locals("userID", token.Subject())
		return c.Next()
	}
}
