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

package router

import (
	"github.com/bigbird-vault/bb-api/handler"
	"github.com/bigbird-vault/bb-api/middleware"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes setup router api
func SetupRoutes(app *fiber.App) {
	api := app.Group("/v1")
	api.Get("/", handler.Health)
	api.Get("/stats", handler.GetDatabaseStats)

	// Market data (public, read-only)
	api.Get("/tickers", handler.ListTickers)
	api.Get("/tickers/search", handler.SearchTickers)
	ticker := api.Group("/ticker")
	ticker.Get("/:symbol", handler.GetTicker)
	ticker.Get("/:symbol/prices", handler.GetTickerPrices)
	ticker.Get("/:symbol/stats", handler.GetTickerStats)

	// Identity
	auth := api.Group("/auth")
	auth.Post("/signup", handler.Signup)
	auth.Post("/login", handler.Login)
	auth.Get("/me", middleware.Auth(), handler.Me)

	// Portfolios (owner scoped)
	pf := api.Group("/portfolio", middleware.Auth())
	pf.Get("/", handler.ListPortfolios)
	pf.Post("/", handler.CreatePortfolio)
	pf.Get("/:id", handler.GetPortfolio)
	pf.Delete("/:id", handler.DeletePortfolio)
}
