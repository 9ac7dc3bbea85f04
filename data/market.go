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

package data

import (
	"context"
	"time"

	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/observability/opentelemetry"

	"github.com/jackc/pgsql"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// MarketDB provides read-only queries over the tickers and ticker_prices
// reference tables
type MarketDB struct {
}

// NewMarketDB creates a new market data provider
func NewMarketDB() *MarketDB {
	return &MarketDB{}
}

// Ticker looks up a single ticker by its normalized (uppercase) symbol
func (m *MarketDB) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "marketdb.Ticker")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying ticker")
		return nil, err
	}

	t := &Ticker{}
	err = trx.QueryRow(ctx, "SELECT ticker_id, ticker_symbol FROM tickers WHERE ticker_symbol = $1", symbol).Scan(&t.ID, &t.Symbol)
	if err != nil {
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query ticker")
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return t, nil
}

// Tickers returns all tickers ordered by symbol
func (m *MarketDB) Tickers(ctx context.Context) ([]*Ticker, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "marketdb.Tickers")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not get transaction when listing tickers")
		return nil, err
	}

	rows, err := trx.Query(ctx, "SELECT ticker_id, ticker_symbol FROM tickers ORDER BY ticker_symbol")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Error().Stack().Err(err).Msg("could not query tickers")
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	tickers := make([]*Ticker, 0, 100)
	for rows.Next() {
		t := &Ticker{}
		if err := rows.Scan(&t.ID, &t.Symbol); err != nil {
			log.Error().Stack().Err(err).Msg("could not scan ticker row")
			if rerr := trx.Rollback(ctx); rerr != nil {
				log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
			}
			return nil, err
		}
		tickers = append(tickers, t)
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("ticker query read failed")
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return tickers, nil
}

// Prices returns the close prices of symbol ordered by date ascending. begin
// and end bound the range inclusively; either may be nil for an open end.
func (m *MarketDB) Prices(ctx context.Context, symbol string, begin, end *time.Time) ([]*PricePoint, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "marketdb.Prices")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Logger()

	if begin != nil && end != nil && end.Before(*begin) {
		subLog.Warn().Stack().Time("Begin", *begin).Time("End", *end).Msg("end before begin in call to Prices")
		return nil, ErrInvalidTimeRange
	}

	stmt := &pgsql.SelectStatement{}
	stmt.Select("ticker_symbol")
	stmt.Select("date")
	stmt.Select("close_price")
	stmt.From("ticker_prices")
	stmt.Where("ticker_symbol = ?", symbol)
	if begin != nil {
		stmt.Where("date >= ?", *begin)
	}
	if end != nil {
		stmt.Where("date <= ?", *end)
	}
	stmt.Order("date ASC")
	sql, args := pgsql.Build(stmt)

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying prices")
		return nil, err
	}

	rows, err := trx.Query(ctx, sql, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Str("Query", sql).Msg("could not query prices")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	prices := make([]*PricePoint, 0, 252)
	for rows.Next() {
		p := &PricePoint{}
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Close); err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan price row")
			if rerr := trx.Rollback(ctx); rerr != nil {
				subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
			}
			return nil, err
		}
		prices = append(prices, p)
	}

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("price query read failed")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return prices, nil
}

// PriceStats aggregates the stored price history for symbol; returns
// ErrNoData when the ticker has no price rows
func (m *MarketDB) PriceStats(ctx context.Context, symbol string) (*PriceStats, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "marketdb.PriceStats")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Logger()

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when querying price stats")
		return nil, err
	}

	statsSQL := `SELECT
		COUNT(*) AS record_count,
		MIN(close_price) AS min_price,
		MAX(close_price) AS max_price,
		AVG(close_price) AS avg_price,
		MIN(date) AS start_date,
		MAX(date) AS end_date
	FROM ticker_prices
	WHERE ticker_symbol = $1`

	var count int64
	var minPrice, maxPrice, avgPrice pgtype.Float8
	var startDate, endDate pgtype.Date

	err = trx.QueryRow(ctx, statsSQL, symbol).Scan(&count, &minPrice, &maxPrice, &avgPrice, &startDate, &endDate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query price stats")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}

	if count == 0 {
		return nil, ErrNoData
	}

	stats := &PriceStats{
		Symbol:      symbol,
		RecordCount: count,
	}
	if minPrice.Status == pgtype.Present {
		stats.MinPrice = minPrice.Float
	}
	if maxPrice.Status == pgtype.Present {
		stats.MaxPrice = maxPrice.Float
	}
	if avgPrice.Status == pgtype.Present {
		stats.AvgPrice = avgPrice.Float
	}
	if startDate.Status == pgtype.Present {
		stats.StartDate = startDate.Time.Format("2006-01-02")
	}
	if endDate.Status == pgtype.Present {
		stats.EndDate = endDate.Time.Format("2006-01-02")
	}
	return stats, nil
}

// Stats reports totals over the reference tables
func (m *MarketDB) Stats(ctx context.Context) (*DatabaseStats, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "marketdb.Stats")
	defer span.End()

	trx, err := database.Trx(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not get transaction when querying database stats")
		return nil, err
	}

	stats := &DatabaseStats{}

	if err := trx.QueryRow(ctx, "SELECT COUNT(*) FROM tickers").Scan(&stats.TickerCount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Error().Stack().Err(err).Msg("could not count tickers")
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.QueryRow(ctx, "SELECT COUNT(*) FROM ticker_prices").Scan(&stats.PriceCount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Error().Stack().Err(err).Msg("could not count price records")
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	var startDate, endDate pgtype.Date
	if err := trx.QueryRow(ctx, "SELECT MIN(date), MAX(date) FROM ticker_prices").Scan(&startDate, &endDate); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		log.Error().Stack().Err(err).Msg("could not query price date range")
		if rerr := trx.Rollback(ctx); rerr != nil {
			log.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if startDate.Status == pgtype.Present {
		stats.DateRange.Start = startDate.Time.Format("2006-01-02")
	}
	if endDate.Status == pgtype.Present {
		stats.DateRange.End = endDate.Time.Format("2006-01-02")
	}

	if err := trx.Commit(ctx); err != nil {
		log.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return stats, nil
}
