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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bigbird-vault/bb-api/common"
	"github.com/bigbird-vault/bb-api/data"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// GetDatabaseStats overall reference data statistics
func GetDatabaseStats(c *fiber.Ctx) error {
	marketDB := data.NewMarketDB()
	stats, err := marketDB.Stats(c.Context())
	if err != nil {
		log.Warn().Stack().Err(err).Msg("GetDatabaseStats failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
	return successResponse(c, stats)
}

// ListTickers all available tickers
func ListTickers(c *fiber.Ctx) error {
	marketDB := data.NewMarketDB()
	tickers, err := marketDB.Tickers(c.Context())
	if err != nil {
		log.Warn().Stack().Err(err).Msg("ListTickers failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
	return listResponse(c, tickers, len(tickers))
}

// SearchTickers substring match against the cached ticker list
func SearchTickers(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return errorResponse(c, fiber.StatusBadRequest, `query parameter "q" is required`)
	}

	matches := data.SearchTickers(query)
	return listResponse(c, matches, len(matches))
}

// GetTicker ticker information by symbol
func GetTicker(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))

	marketDB := data.NewMarketDB()
	ticker, err := marketDB.Ticker(c.Context(), symbol)
	if err != nil {
		if err == data.ErrNotFound {
			return errorResponse(c, fiber.StatusNotFound, fmt.Sprintf("ticker %s not found", symbol))
		}
		log.Warn().Stack().Err(err).Str("Symbol", symbol).Msg("GetTicker failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
	return successResponse(c, ticker)
}

// GetTickerPrices price history for a ticker; start_date and end_date bound
// the range inclusively and limit keeps only the most recent N rows
func GetTickerPrices(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	subLog := log.With().Str("Symbol", symbol).Str("Endpoint", "GetTickerPrices").Logger()

	var begin, end *time.Time
	if v := c.Query("start_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "start_date must be formatted YYYY-MM-DD")
		}
		begin = &parsed
	}
	if v := c.Query("end_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "end_date must be formatted YYYY-MM-DD")
		}
		end = &parsed
	}

	marketDB := data.NewMarketDB()
	prices, err := marketDB.Prices(c.Context(), symbol, begin, end)
	if err != nil {
		if err == data.ErrInvalidTimeRange {
			return errorResponse(c, fiber.StatusBadRequest, err.Error())
		}
		subLog.Warn().Stack().Err(err).Msg("price query failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	// limit keeps the most recent prices
	if v := c.Query("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit < len(prices) {
			prices = prices[len(prices)-limit:]
		}
	}

	return listResponse(c, prices, len(prices))
}

// GetTickerStats aggregate price statistics for a ticker; responses are
// cached since the reference data only changes on ingest
func GetTickerStats(c *fiber.Ctx) error {
	symbol := strings.ToUpper(c.Params("symbol"))
	subLog := log.With().Str("Symbol", symbol).Str("Endpoint", "GetTickerStats").Logger()

	cacheKey := common.CacheKey("ticker-stats", symbol)
	if raw, err := common.CacheGet(cacheKey); err == nil && len(raw) > 0 {
		stats := &data.PriceStats{}
		if err := json.Unmarshal(raw, stats); err == nil {
			return successResponse(c, stats)
		}
		subLog.Warn().Stack().Err(err).Msg("could not deserialize cached price stats")
	}

	marketDB := data.NewMarketDB()
	stats, err := marketDB.PriceStats(c.Context(), symbol)
	if err != nil {
		if err == data.ErrNoData {
			return errorResponse(c, fiber.StatusNotFound, fmt.Sprintf("no price data found for ticker %s", symbol))
		}
		subLog.Warn().Stack().Err(err).Msg("price stats query failed")
		return errorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}

	if raw, err := json.Marshal(stats); err == nil {
		if err := common.CacheSet(cacheKey, raw); err != nil {
			subLog.Warn().Stack().Err(err).Msg("could not cache price stats")
		}
	}

	return successResponse(c, stats)
}
