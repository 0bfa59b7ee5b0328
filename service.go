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

// Package querykit wires the query engine to the global database: one
// engine per initialized database and repositories that combine the Bun
// CRUD base with declared query methods.
package querykit

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/engine"
	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/repository"
)

var (
	globalMu       sync.Mutex
	globalDB       *bun.DB
	globalProvider *metadata.BunProvider
	globalEngine   *engine.Engine
)

// Engine returns the engine over the global database, building it on first
// use and again whenever the database has been re-initialized.
func Engine() (*engine.Engine, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	return engineLocked()
}

func engineLocked() (*engine.Engine, error) {
	db := database.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if globalEngine != nil && globalDB == db {
		return globalEngine, nil
	}

	opts := []engine.Option{engine.WithLogger(database.GetLogger())}
	if cfg := database.GetConfig(); cfg != nil {
		opts = append(opts, engine.WithConfig(cfg.EngineConfig))
	}
	provider := metadata.NewBunProvider(db, database.RegisteredModelInstances()...)
	e, err := engine.New(provider, database.NewStorage(db), opts...)
	if err != nil {
		return nil, err
	}
	globalDB, globalProvider, globalEngine = db, provider, e
	return e, nil
}

// Repository is the CRUD repository of T over the global database plus its
// declared query methods. CRUD writes evict the written entities from the
// engine's unit of work.
type Repository[T any] struct {
	repository.Repository[T]
	Methods *repository.Declarative[T]
	db      *bun.DB
}

// NewRepository registers T with the global engine and declares methods
// on it. Every method is validated here.
func NewRepository[T any](methods ...repository.Method) (*Repository[T], error) {
	globalMu.Lock()
	e, err := engineLocked()
	if err == nil {
		globalProvider.Register((*T)(nil))
	}
	db := globalDB
	globalMu.Unlock()
	if err != nil {
		return nil, err
	}

	declared, err := repository.Declare[T](e, methods...)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{Repository: repository.NewRepository[T](db), Methods: declared, db: db}, nil
}

// InTx runs fn with a copy of r bound to one transaction, committed when fn
// returns nil. CRUD calls and declared methods of the copy both run in the
// transaction, and locking reads keep their row locks until it ends.
// Entities read by the copy are tracked apart from r and dropped with the
// transaction; a commit clears r's unit of work.
func (r *Repository[T]) InTx(ctx context.Context, fn func(ctx context.Context, tx *Repository[T]) error) error {
	storage, err := database.NewGlobalStorage()
	if err != nil {
		return err
	}
	e := r.Methods.Engine()
	err = storage.RunInTx(ctx, func(ctx context.Context, s *database.Storage) error {
		tx, ok := s.Tx()
		if !ok {
			return fmt.Errorf("storage is not bound to a transaction")
		}
		scoped, err := e.WithStorage(s)
		if err != nil {
			return err
		}
		return fn(ctx, &Repository[T]{
			Repository: repository.NewTxRepository[T](r.db, tx),
			Methods:    r.Methods.WithEngine(scoped),
			db:         r.db,
		})
	})
	if err != nil {
		return err
	}
	e.UnitOfWork().InvalidateAll()
	return nil
}

func (r *Repository[T]) Create(ctx context.Context, entity ...*T) error {
	return r.evictAfter(r.Repository.Create(ctx, entity...), entity...)
}

func (r *Repository[T]) CreateWithTx(ctx context.Context, tx bun.Tx, entity ...*T) error {
	return r.evictAfter(r.Repository.CreateWithTx(ctx, tx, entity...), entity...)
}

func (r *Repository[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.evictAfter(r.Repository.Upsert(ctx, fields, duplicateKeys, entity...), entity...)
}

func (r *Repository[T]) UpsertWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.evictAfter(r.Repository.UpsertWithTx(ctx, tx, fields, duplicateKeys, entity...), entity...)
}

func (r *Repository[T]) Update(ctx context.Context, entity *T) error {
	return r.evictAfter(r.Repository.Update(ctx, entity), entity)
}

func (r *Repository[T]) UpdateWithTx(ctx context.Context, tx bun.Tx, entity *T) error {
	return r.evictAfter(r.Repository.UpdateWithTx(ctx, tx, entity), entity)
}

func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	err := r.Repository.Delete(ctx, id)
	if evictErr := r.Methods.Engine().Evict(r.Methods.Entity(), id); err == nil {
		err = evictErr
	}
	return err
}

func (r *Repository[T]) DeleteWithTx(ctx context.Context, tx bun.Tx, id any) error {
	err := r.Repository.DeleteWithTx(ctx, tx, id)
	if evictErr := r.Methods.Engine().Evict(r.Methods.Entity(), id); err == nil {
		err = evictErr
	}
	return err
}

// evictAfter evicts entities whether or not the write succeeded and
// returns the write error first.
func (r *Repository[T]) evictAfter(err error, entities ...*T) error {
	instances := make([]interface{}, 0, len(entities))
	for _, e := range entities {
		if e != nil {
			instances = append(instances, e)
		}
	}
	if evictErr := r.Methods.Engine().EvictInstances(r.Methods.Entity(), instances...); err == nil {
		err = evictErr
	}
	return err
}
