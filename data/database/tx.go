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

// Wrapper around a pgx transaction to help debug if transactions are leaking

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupported = errors.New("unsupported function")
)

type trackedTx struct {
	id string
	tx pgx.Tx
}

// Begin starts a pseudo nested transaction.
func (t *trackedTx) Begin(_ context.Context) (pgx.Tx, error) {
	log.Panic().Msg("sub-transactions not supported")
	return nil, ErrUnsupported
}

// BeginFunc starts a pseudo nested transaction and executes f.
func (t *trackedTx) BeginFunc(_ context.Context, _ func(pgx.Tx) error) error {
	log.Panic().Msg("sub-transactions not supported")
	return ErrUnsupported
}

// Commit commits the transaction and removes it from the open transaction log.
// Safe to call multiple times; the second call returns pgx.ErrTxClosed.
func (t *trackedTx) Commit(ctx context.Context) error {
	closeTrackedTx(t.id)
	return t.tx.Commit(ctx)
}

// Rollback rolls the transaction back; a defer trx.Rollback() is safe even
// when trx.Commit() is called first.
func (t *trackedTx) Rollback(ctx context.Context) error {
	closeTrackedTx(t.id)
	return t.tx.Rollback(ctx)
}

func (t *trackedTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return t.tx.CopyFrom(ctx, tableName, columnNames, rowSrc)
}

func (t *trackedTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return t.tx.SendBatch(ctx, b)
}

func (t *trackedTx) LargeObjects() pgx.LargeObjects {
	return t.tx.LargeObjects()
}

func (t *trackedTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return t.tx.Prepare(ctx, name, sql)
}

func (t *trackedTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, arguments...)
}

func (t *trackedTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *trackedTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *trackedTx) QueryFunc(ctx context.Context, sql string, args []interface{}, scans []interface{}, f func(pgx.QueryFuncRow) error) (pgconn.CommandTag, error) {
	return t.tx.QueryFunc(ctx, sql, args, scans, f)
}

// Conn returns the underlying *Conn on which this transaction is executing.
func (t *trackedTx) Conn() *pgx.Conn {
	return t.tx.Conn()
}
