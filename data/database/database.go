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

package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PgxIface is the subset of pgxpool.Pool the repositories use; it exists so
// tests can swap in a pgxmock connection via SetPool
type PgxIface interface {
	Begin(context.Context) (pgx.Tx, error)
}

var (
	// ErrMissingDatabaseURL indicates database.url is not configured; this is
	// fatal at startup and never retried
	ErrMissingDatabaseURL = errors.New("database.url not set")
)

var (
	pool             PgxIface
	openTransactions map[string]string

	// guards openTransactions; Trx, Commit and Rollback run on concurrent
	// request handlers
	trxAuditLock sync.Mutex
)

// SetPool replaces the active pool. Tests use this to inject a pgxmock
// connection.
func SetPool(myPool PgxIface) {
	trxAuditLock.Lock()
	openTransactions = make(map[string]string)
	trxAuditLock.Unlock()
	pool = myPool
}

// Connect establishes the connection pool described by the database.url
// setting. Any prior pool is closed first so repeated calls do not leak
// connections.
func Connect(ctx context.Context) error {
	url := viper.GetString("database.url")
	if url == "" {
		log.Error().Stack().Msg("database.url is not set")
		return ErrMissingDatabaseURL
	}

	if old, ok := pool.(*pgxpool.Pool); ok && old != nil {
		old.Close()
	}

	myPool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		log.Error().Stack().Err(err).Msg("could not connect to database")
		return err
	}
	if err = myPool.Ping(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("could not ping database server")
		return err
	}

	SetPool(myPool)
	return nil
}

// Trx begins a transaction on the shared pool. If the pool has gone stale a
// single reconnect is attempted before the error propagates to the caller.
func Trx(ctx context.Context) (pgx.Tx, error) {
	if pool == nil {
		return nil, ErrMissingDatabaseURL
	}

	trx, err := pool.Begin(ctx)
	if err != nil {
		log.Warn().Stack().Err(err).Msg("could not begin transaction; attempting reconnect")
		if cerr := Connect(ctx); cerr != nil {
			return nil, err
		}
		if trx, err = pool.Begin(ctx); err != nil {
			log.Error().Stack().Err(err).Msg("could not begin transaction after reconnect")
			return nil, err
		}
	}

	// record transactions in the openTransactions log
	_, file, lineno, ok := runtime.Caller(1)
	caller := fmt.Sprintf("[%v] %s:%d", ok, file, lineno)
	trxID := uuid.New().String()
	trxAuditLock.Lock()
	openTransactions[trxID] = caller
	trxAuditLock.Unlock()

	return &trackedTx{
		id: trxID,
		tx: trx,
	}, nil
}

// LogOpenTransactions writes an INFO log for each open transaction
func LogOpenTransactions() {
	trxAuditLock.Lock()
	defer trxAuditLock.Unlock()
	for k, v := range openTransactions {
		log.Info().Str("TrxId", k).Str("Caller", v).Msg("open transaction")
	}
}

func closeTrackedTx(id string) {
	trxAuditLock.Lock()
	delete(openTransactions, id)
	trxAuditLock.Unlock()
}
