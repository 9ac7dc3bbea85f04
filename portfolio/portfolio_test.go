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

package portfolio_test

import (
	"context"
	"time"

	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/identity"
	"github.com/bigbird-vault/bb-api/portfolio"

	"github.com/goccy/go-json"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
)

var portfolioRowColumns = []string{
	"id", "name", "description", "created_at", "portfolio_amount", "lookback_period",
	"allocations", "expected_value", "worst_case", "best_case", "expected_return",
	"prob_of_positive_return", "prob_of_return_greater_than_10", "prob_of_return_greater_than_20",
	"prob_of_loss_greater_than_10", "prob_of_loss_greater_than_20", "simulation_data",
}

var _ = Describe("Portfolio tests", func() {
	var (
		dbPool    pgxmock.PgxConnIface
		ctx       context.Context
		createdAt time.Time
	)

	samplePortfolio := func() *portfolio.Portfolio {
		return &portfolio.Portfolio{
			Name:            "Retirement",
			Description:     "long horizon",
			PortfolioAmount: 10000,
			LookbackPeriod:  10,
			Allocations: map[string]float64{
				"AAPL": 0.6,
				"MSFT": 0.4,
			},
			Results: portfolio.SimulationResults{
				ExpectedValue:             12500,
				WorstCase:                 8000,
				BestCase:                  18000,
				ExpectedReturn:            0.25,
				ProbOfPositiveReturn:      0.81,
				ProbOfReturnGreaterThan10: 0.62,
				ProbOfReturnGreaterThan20: 0.41,
				ProbOfLossGreaterThan10:   0.08,
				ProbOfLossGreaterThan20:   0.02,
			},
			SimulationData: json.RawMessage(`{"percentiles":[8000,10000,12500]}`),
		}
	}

	sampleRow := func(id string) *pgxmock.Rows {
		return pgxmock.NewRows(portfolioRowColumns).AddRow(
			id, "Retirement", "long horizon", createdAt, 10000.0, 10,
			[]byte(`{"AAPL":0.6,"MSFT":0.4}`), 12500.0, 8000.0, 18000.0, 0.25,
			0.81, 0.62, 0.41,
			0.08, 0.02, []byte(`{"percentiles":[8000,10000,12500]}`))
	}

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
		ctx = context.Background()
		createdAt = time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	})

	Context("when saving portfolios", func() {
		It("persists the portfolio and returns its generated id", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO portfolios").
				WithArgs(pgxmock.AnyArg(), "user-a", "Retirement", "long horizon", 10000.0, 10,
					[]byte(`{"AAPL":0.6,"MSFT":0.4}`), 12500.0, 8000.0, 18000.0, 0.25,
					0.81, 0.62, 0.41,
					0.08, 0.02, []byte(`{"percentiles":[8000,10000,12500]}`)).
				WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
			dbPool.ExpectCommit()

			id, err := portfolio.Save(ctx, "user-a", samplePortfolio())
			Expect(err).To(BeNil())
			Expect(id).NotTo(BeEmpty())
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("rejects a portfolio missing a required field without touching the database", func() {
			p := samplePortfolio()
			p.PortfolioAmount = 0

			_, err := portfolio.Save(ctx, "user-a", p)
			Expect(err).To(Equal(portfolio.ErrInvalidPortfolio))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("rejects an empty owner id", func() {
			_, err := portfolio.Save(ctx, "", samplePortfolio())
			Expect(err).To(Equal(portfolio.ErrEmptyUserID))
		})

		It("rejects empty allocations", func() {
			p := samplePortfolio()
			p.Allocations = map[string]float64{}

			_, err := portfolio.Save(ctx, "user-a", p)
			Expect(err).To(Equal(portfolio.ErrInvalidPortfolio))
		})

		It("propagates an insert failure instead of reporting success", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO portfolios").
				WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "portfolios_user_id_fkey"})
			dbPool.ExpectRollback()

			_, err := portfolio.Save(ctx, "user-gone", samplePortfolio())
			Expect(err).NotTo(BeNil())
		})
	})

	Context("when loading portfolios", func() {
		It("round-trips the JSON encoded columns and numeric results", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE id").
				WithArgs("port-1", "user-a").
				WillReturnRows(sampleRow("port-1"))
			dbPool.ExpectCommit()

			p, err := portfolio.Load(ctx, "port-1", "user-a")
			Expect(err).To(BeNil())
			Expect(p.ID).To(Equal("port-1"))
			Expect(p.UserID).To(Equal("user-a"))
			Expect(p.Description).To(Equal("long horizon"))
			Expect(p.CreatedAt).To(Equal(createdAt))
			Expect(p.Allocations).To(Equal(map[string]float64{"AAPL": 0.6, "MSFT": 0.4}))
			Expect(p.Results.ExpectedValue).To(Equal(12500.0))
			Expect(p.Results.ProbOfLossGreaterThan20).To(Equal(0.02))
			Expect(string(p.SimulationData)).To(Equal(`{"percentiles":[8000,10000,12500]}`))
		})

		It("lists a user's portfolios newest first", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE user_id").
				WithArgs("user-a").
				WillReturnRows(sampleRow("port-2").AddRow(
					"port-1", "Starter", nil, createdAt.Add(-24*time.Hour), 5000.0, 5,
					[]byte(`{"TSLA":1}`), 5600.0, 3500.0, 9000.0, 0.12,
					0.7, 0.5, 0.3,
					0.1, 0.04, nil))
			dbPool.ExpectCommit()

			portfolios, err := portfolio.LoadForUser(ctx, "user-a")
			Expect(err).To(BeNil())
			Expect(portfolios).To(HaveLen(2))
			Expect(portfolios[0].ID).To(Equal("port-2"))
			Expect(portfolios[1].ID).To(Equal("port-1"))
			Expect(portfolios[1].Description).To(BeEmpty())
			Expect(portfolios[1].SimulationData).To(BeEmpty())
		})

		It("returns an empty slice for a user with no portfolios", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE user_id").
				WithArgs("user-b").
				WillReturnRows(pgxmock.NewRows(portfolioRowColumns))
			dbPool.ExpectCommit()

			portfolios, err := portfolio.LoadForUser(ctx, "user-b")
			Expect(err).To(BeNil())
			Expect(portfolios).NotTo(BeNil())
			Expect(portfolios).To(BeEmpty())
		})

		It("hides another user's portfolio behind ErrNotFound", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE id").
				WithArgs("port-1", "user-b").
				WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectRollback()

			_, err := portfolio.Load(ctx, "port-1", "user-b")
			Expect(err).To(Equal(portfolio.ErrNotFound))
		})
	})

	Context("when deleting portfolios", func() {
		It("reports a delete of an owned portfolio", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM portfolios").
				WithArgs("port-1", "user-a").
				WillReturnResult(pgconn.CommandTag("DELETE 1"))
			dbPool.ExpectCommit()

			deleted, err := portfolio.Delete(ctx, "port-1", "user-a")
			Expect(err).To(BeNil())
			Expect(deleted).To(BeTrue())
		})

		It("does not delete a portfolio owned by another user", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM portfolios").
				WithArgs("port-1", "user-b").
				WillReturnResult(pgconn.CommandTag("DELETE 0"))
			dbPool.ExpectCommit()

			deleted, err := portfolio.Delete(ctx, "port-1", "user-b")
			Expect(err).To(BeNil())
			Expect(deleted).To(BeFalse())
		})
	})

	Context("when running through a portfolio lifecycle", func() {
		It("creates a user, saves, lists, deletes, then fails to load the removed portfolio", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO users").
				WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
			dbPool.ExpectCommit()

			u, err := identity.Create(ctx, identity.CreateParams{
				Email:          "a@x.com",
				Username:       "alice",
				FirstName:      "Alice",
				LastName:       "Example",
				HashedPassword: "$2a$10$notarealhash",
			})
			Expect(err).To(BeNil())

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO portfolios").
				WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
			dbPool.ExpectCommit()

			id, err := portfolio.Save(ctx, u.ID, samplePortfolio())
			Expect(err).To(BeNil())

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE user_id").
				WithArgs(u.ID).
				WillReturnRows(sampleRow(id))
			dbPool.ExpectCommit()

			portfolios, err := portfolio.LoadForUser(ctx, u.ID)
			Expect(err).To(BeNil())
			Expect(portfolios).To(HaveLen(1))
			Expect(portfolios[0].ID).To(Equal(id))
			Expect(portfolios[0].Allocations).To(Equal(map[string]float64{"AAPL": 0.6, "MSFT": 0.4}))

			dbPool.ExpectBegin()
			dbPool.ExpectExec("DELETE FROM portfolios").
				WithArgs(id, u.ID).
				WillReturnResult(pgconn.CommandTag("DELETE 1"))
			dbPool.ExpectCommit()

			deleted, err := portfolio.Delete(ctx, id, u.ID)
			Expect(err).To(BeNil())
			Expect(deleted).To(BeTrue())

			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM portfolios WHERE id").
				WithArgs(id, u.ID).
				WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectRollback()

			_, err = portfolio.Load(ctx, id, u.ID)
			Expect(err).To(Equal(portfolio.ErrNotFound))

			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})
	})
})
