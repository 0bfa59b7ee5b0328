/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"github.com/tomoncle/querykit/plan"
)

// Storage executes rendered statements through bun raw queries. It works
// on a *bun.DB or a bun.Tx alike.
type Storage struct {
	db      bun.IDB
	dialect plan.Dialect
}

// NewStorage wraps db. The rendering dialect follows db's bun dialect.
func NewStorage(db bun.IDB) *Storage {
	return &Storage{db: db, dialect: plan.DialectOf(db.Dialect().Name())}
}

func (s *Storage) Dialect() plan.Dialect { return s.dialect }

// Tx returns the transaction s is bound to, if any.
func (s *Storage) Tx() (bun.Tx, bool) {
	tx, ok := s.db.(bun.Tx)
	return tx, ok
}

// Query scans every row into a column-keyed map.
func (s *Storage) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := s.db.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ClassifyError(err, query)
	}
	return rows, nil
}

// Exec runs a statement and returns the affected-row count.
func (s *Storage) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := s.db.NewRaw(query, args...).Exec(ctx)
	if err != nil {
		return 0, ClassifyError(err, query)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ClassifyError(err, query)
	}
	return n, nil
}

// RunInTx runs fn with a Storage bound to a new transaction, committing when
// fn returns nil. Locking reads hold their row locks until then.
func (s *Storage) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Storage) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Storage{db: tx, dialect: s.dialect})
	})
}
