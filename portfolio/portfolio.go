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

package portfolio

import (
	"context"
	"errors"
	"time"

	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/observability/opentelemetry"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotFound         = errors.New("portfolio not found")
	ErrEmptyUserID      = errors.New("userID cannot be an empty string")
	ErrInvalidPortfolio = errors.New("portfolio is missing required fields")
)

// SimulationResults are the precomputed outcome metrics stored with every
// saved portfolio
type SimulationResults struct {
	ExpectedValue             float64 `json:"expectedValue"`
	WorstCase                 float64 `json:"worstCase"`
	BestCase                  float64 `json:"bestCase"`
	ExpectedReturn            float64 `json:"expectedReturn"`
	ProbOfPositiveReturn      float64 `json:"probOfPositiveReturn"`
	ProbOfReturnGreaterThan10 float64 `json:"probOfReturnGreaterThan10"`
	ProbOfReturnGreaterThan20 float64 `json:"probOfReturnGreaterThan20"`
	ProbOfLossGreaterThan10   float64 `json:"probOfLossGreaterThan10"`
	ProbOfLossGreaterThan20   float64 `json:"probOfLossGreaterThan20"`
}

// Portfolio is a saved allocation analysis owned by a single user.
// Allocations and SimulationData are stored as JSONB columns.
type Portfolio struct {
	ID              string             `json:"id"`
	UserID          string             `json:"-"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	PortfolioAmount float64            `json:"portfolioAmount"`
	LookbackPeriod  int                `json:"lookbackPeriod"`
	Allocations     map[string]float64 `json:"allocations"`
	Results         SimulationResults  `json:"results"`
	SimulationData  json.RawMessage    `json:"simulationData,omitempty"`
}

// Validate reports whether the portfolio has every field required for a save
func (p *Portfolio) Validate() error {
	if p.Name == "" || p.PortfolioAmount <= 0 || p.LookbackPeriod <= 0 || len(p.Allocations) == 0 {
		return ErrInvalidPortfolio
	}
	return nil
}

const portfolioColumns = `id, name, description, created_at, portfolio_amount, lookback_period,
	allocations, expected_value, worst_case, best_case, expected_return,
	prob_of_positive_return, prob_of_return_greater_than_10, prob_of_return_greater_than_20,
	prob_of_loss_greater_than_10, prob_of_loss_greater_than_20, simulation_data`

// Save persists p for userID and returns the generated portfolio id. Nothing
// is persisted when validation or the insert fails.
func Save(ctx context.Context, userID string, p *Portfolio) (string, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Save")
	defer span.End()

	subLog := log.With().Str("UserID", userID).Str("PortfolioName", p.Name).Logger()

	if userID == "" {
		subLog.Error().Stack().Msg("userID cannot be an empty string")
		return "", ErrEmptyUserID
	}
	if err := p.Validate(); err != nil {
		subLog.Warn().Msg("rejecting portfolio with missing required fields")
		return "", err
	}

	allocationsJSON, err := json.Marshal(p.Allocations)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not serialize allocations")
		return "", err
	}

	var simulationData interface{}
	if len(p.SimulationData) > 0 {
		simulationData = []byte(p.SimulationData)
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when saving portfolio")
		return "", err
	}

	p.ID = uuid.New().String()
	p.UserID = userID

	insertSQL := `INSERT INTO portfolios (
		id, user_id, name, description, portfolio_amount, lookback_period,
		allocations, expected_value, worst_case, best_case, expected_return,
		prob_of_positive_return, prob_of_return_greater_than_10, prob_of_return_greater_than_20,
		prob_of_loss_greater_than_10, prob_of_loss_greater_than_20, simulation_data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING created_at`

	var description interface{}
	if p.Description != "" {
		description = p.Description
	}

	r := p.Results
	err = trx.QueryRow(ctx, insertSQL,
		p.ID, userID, p.Name, description, p.PortfolioAmount, p.LookbackPeriod,
		allocationsJSON, r.ExpectedValue, r.WorstCase, r.BestCase, r.ExpectedReturn,
		r.ProbOfPositiveReturn, r.ProbOfReturnGreaterThan10, r.ProbOfReturnGreaterThan20,
		r.ProbOfLossGreaterThan10, r.ProbOfLossGreaterThan20, simulationData,
	).Scan(&p.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database insert failed")
		subLog.Error().Stack().Err(err).Msg("could not insert portfolio")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return "", err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return "", err
	}

	return p.ID, nil
}

// LoadForUser returns every portfolio owned by userID, newest first
func LoadForUser(ctx context.Context, userID string) ([]*Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.LoadForUser")
	defer span.End()

	subLog := log.With().Str("UserID", userID).Logger()

	if userID == "" {
		subLog.Error().Stack().Msg("userID cannot be an empty string")
		return nil, ErrEmptyUserID
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when listing portfolios")
		return nil, err
	}

	listSQL := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := trx.Query(ctx, listSQL, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query portfolios")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	portfolios := make([]*Portfolio, 0, 10)
	for rows.Next() {
		p, err := scanPortfolio(rows.Scan)
		if err != nil {
			subLog.Error().Stack().Err(err).Msg("could not scan portfolio row")
			if rerr := trx.Rollback(ctx); rerr != nil {
				subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
			}
			return nil, err
		}
		p.UserID = userID
		portfolios = append(portfolios, p)
	}

	if err := rows.Err(); err != nil {
		subLog.Error().Stack().Err(err).Msg("portfolio query read failed")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return nil, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return portfolios, nil
}

// Load fetches a single portfolio. The query is filtered by both id and
// owner so a portfolio owned by another user is indistinguishable from one
// that does not exist.
func Load(ctx context.Context, portfolioID, userID string) (*Portfolio, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Load")
	defer span.End()

	subLog := log.With().Str("PortfolioID", portfolioID).Str("UserID", userID).Logger()

	if userID == "" {
		subLog.Error().Stack().Msg("userID cannot be an empty string")
		return nil, ErrEmptyUserID
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when loading portfolio")
		return nil, err
	}

	getSQL := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1 AND user_id = $2`
	row := trx.QueryRow(ctx, getSQL, portfolioID, userID)
	p, err := scanPortfolio(row.Scan)
	if err != nil {
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not load portfolio")
		return nil, err
	}
	p.UserID = userID

	if err := trx.Commit(ctx); err != nil {
		subLog.Warn().Stack().Err(err).Msg("could not commit transaction")
	}
	return p, nil
}

// Delete removes the portfolio only when it is owned by userID; it reports
// whether a row was actually removed. Zero rows means not found or not
// owned, which are deliberately indistinguishable.
func Delete(ctx context.Context, portfolioID, userID string) (bool, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Delete")
	defer span.End()

	subLog := log.With().Str("PortfolioID", portfolioID).Str("UserID", userID).Logger()

	if userID == "" {
		subLog.Error().Stack().Msg("userID cannot be an empty string")
		return false, ErrEmptyUserID
	}

	trx, err := database.Trx(ctx)
	if err != nil {
		subLog.Error().Stack().Err(err).Msg("could not get transaction when deleting portfolio")
		return false, err
	}

	ct, err := trx.Exec(ctx, "DELETE FROM portfolios WHERE id = $1 AND user_id = $2", portfolioID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database delete failed")
		subLog.Error().Stack().Err(err).Msg("could not delete portfolio")
		if rerr := trx.Rollback(ctx); rerr != nil {
			subLog.Error().Stack().Err(rerr).Msg("could not rollback transaction")
		}
		return false, err
	}

	if err := trx.Commit(ctx); err != nil {
		subLog.Error().Stack().Err(err).Msg("could not commit transaction")
		return false, err
	}

	return ct.RowsAffected() > 0, nil
}

// scanPortfolio maps one portfolios row onto a Portfolio, decoding the JSON
// encoded columns
func scanPortfolio(scan func(dest ...interface{}) error) (*Portfolio, error) {
	p := &Portfolio{}

	var description pgtype.Text
	var allocations []byte
	var simulationData pgtype.JSONB

	r := &p.Results
	err := scan(&p.ID, &p.Name, &description, &p.CreatedAt, &p.PortfolioAmount, &p.LookbackPeriod,
		&allocations, &r.ExpectedValue, &r.WorstCase, &r.BestCase, &r.ExpectedReturn,
		&r.ProbOfPositiveReturn, &r.ProbOfReturnGreaterThan10, &r.ProbOfReturnGreaterThan20,
		&r.ProbOfLossGreaterThan10, &r.ProbOfLossGreaterThan20, &simulationData)
	if err != nil {
		return nil, err
	}

	if description.Status == pgtype.Present {
		p.Description = description.String
	}

	if err := json.Unmarshal(allocations, &p.Allocations); err != nil {
		return nil, err
	}

	if simulationData.Status == pgtype.Present {
		p.SimulationData = json.RawMessage(simulationData.Bytes)
	}

	// normalize to UTC so timestamps serialize uniformly
	p.CreatedAt = p.CreatedAt.UTC()

	return p, nil
}
