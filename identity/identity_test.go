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

package identity_test

import (
	"context"
	"time"

	"github.com/bigbird-vault/bb-api/data/database"
	"github.com/bigbird-vault/bb-api/identity"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pashagolub/pgxmock"
)

var _ = Describe("Identity tests", func() {
	var (
		dbPool pgxmock.PgxConnIface
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		dbPool, err = pgxmock.NewConn()
		Expect(err).To(BeNil())
		database.SetPool(dbPool)
		ctx = context.Background()
	})

	expectExistingCheck := func(emailExists, usernameExists bool) {
		dbPool.ExpectBegin()
		dbPool.ExpectQuery("EXISTS").
			WithArgs("big@bird.org", "bigbird").
			WillReturnRows(pgxmock.NewRows([]string{"email_exists", "username_exists"}).
				AddRow(emailExists, usernameExists))
		dbPool.ExpectCommit()
	}

	Context("when checking for existing registrations", func() {
		It("passes when neither email nor username is taken", func() {
			expectExistingCheck(false, false)
			Expect(identity.CheckExisting(ctx, "big@bird.org", "bigbird")).To(Succeed())
		})

		It("reports a taken email", func() {
			expectExistingCheck(true, false)
			err := identity.CheckExisting(ctx, "big@bird.org", "bigbird")
			Expect(err).To(Equal(identity.ErrEmailTaken))
		})

		It("reports a taken username", func() {
			expectExistingCheck(false, true)
			err := identity.CheckExisting(ctx, "big@bird.org", "bigbird")
			Expect(err).To(Equal(identity.ErrUsernameTaken))
		})

		It("prefers the email conflict when both are taken", func() {
			expectExistingCheck(true, true)
			err := identity.CheckExisting(ctx, "big@bird.org", "bigbird")
			Expect(err).To(Equal(identity.ErrEmailTaken))
		})
	})

	Context("when creating users", func() {
		params := identity.CreateParams{
			Email:          "big@bird.org",
			Username:       "bigbird",
			FirstName:      "Big",
			LastName:       "Bird",
			HashedPassword: "$2a$10$notarealhash",
		}

		It("inserts the user and returns the stored record", func() {
			createdAt := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO users").
				WithArgs(pgxmock.AnyArg(), "big@bird.org", "bigbird", "Big", "Bird", "$2a$10$notarealhash", nil).
				WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
			dbPool.ExpectCommit()

			u, err := identity.Create(ctx, params)
			Expect(err).To(BeNil())
			Expect(u.ID).NotTo(BeEmpty())
			Expect(u.Email).To(Equal("big@bird.org"))
			Expect(u.CreatedAt).To(Equal(createdAt))
			Expect(dbPool.ExpectationsWereMet()).To(BeNil())
		})

		It("maps an email unique violation to ErrEmailTaken", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO users").
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
			dbPool.ExpectRollback()

			_, err := identity.Create(ctx, params)
			Expect(err).To(Equal(identity.ErrEmailTaken))
		})

		It("maps a username unique violation to ErrUsernameTaken", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("INSERT INTO users").
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
			dbPool.ExpectRollback()

			_, err := identity.Create(ctx, params)
			Expect(err).To(Equal(identity.ErrUsernameTaken))
		})
	})

	Context("when looking up users", func() {
		It("finds a user by email", func() {
			createdAt := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM users WHERE email").
				WithArgs("big@bird.org").
				WillReturnRows(pgxmock.NewRows([]string{"id", "email", "username", "first_name", "last_name", "hashed_password", "avatar", "created_at"}).
					AddRow("user-1", "big@bird.org", "bigbird", "Big", "Bird", "$2a$10$notarealhash", "https://example.com/a.png", createdAt))
			dbPool.ExpectCommit()

			u, err := identity.ByEmail(ctx, "big@bird.org")
			Expect(err).To(BeNil())
			Expect(u.Username).To(Equal("bigbird"))
			Expect(u.Avatar).To(Equal("https://example.com/a.png"))
		})

		It("treats a null avatar as empty", func() {
			createdAt := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM users WHERE id").
				WithArgs("user-1").
				WillReturnRows(pgxmock.NewRows([]string{"id", "email", "username", "first_name", "last_name", "hashed_password", "avatar", "created_at"}).
					AddRow("user-1", "big@bird.org", "bigbird", "Big", "Bird", "$2a$10$notarealhash", nil, createdAt))
			dbPool.ExpectCommit()

			u, err := identity.ByID(ctx, "user-1")
			Expect(err).To(BeNil())
			Expect(u.Avatar).To(BeEmpty())
		})

		It("returns ErrNotFound for an unknown email", func() {
			dbPool.ExpectBegin()
			dbPool.ExpectQuery("FROM users WHERE email").
				WithArgs("nobody@bird.org").
				WillReturnError(pgx.ErrNoRows)
			dbPool.ExpectRollback()

			_, err := identity.ByEmail(ctx, "nobody@bird.org")
			Expect(err).To(Equal(identity.ErrNotFound))
		})
	})
})
