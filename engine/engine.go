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

// Package engine executes query plans against a StorageExecutor and
// materializes the rows into entities, pages, slices, DTOs and scalars.
package engine

import (
	"context"
	"fmt"
	"reflect"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/plan"
	"github.com/tomoncle/querykit/predicate"
	"github.com/tomoncle/querykit/types"
)

const methodCacheSize = 1024

// Result is the untyped outcome of one execution. Which fields are set
// depends on Kind.
type Result struct {
	ExecutionID string
	Kind        types.ResultKind
	Entities    []interface{}
	Values      []interface{}
	Page        int
	PageSize    int
	Total       int64
	HasNext     bool
	Exists      bool
	Affected    int64
}

// Engine turns plans into storage round trips. It holds no per-call state;
// the unit of work and the parsed method cache are safe for concurrent use.
type Engine struct {
	provider metadata.Provider
	storage  StorageExecutor
	uow      UnitOfWork
	dtos     *DtoRegistry
	trees    *lru.Cache[string, *predicate.Tree]
	logger   database.Logger
	config   database.EngineConfig
}

type Option func(*Engine)

func WithConfig(c database.EngineConfig) Option {
	return func(e *Engine) { e.config = c }
}

func WithLogger(l database.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithUnitOfWork(u UnitOfWork) Option {
	return func(e *Engine) { e.uow = u }
}

func WithDtoRegistry(r *DtoRegistry) Option {
	return func(e *Engine) { e.dtos = r }
}

// New returns an Engine over storage. Without options it uses
// database.DefaultEngineConfig, the database logger, a fresh DTO registry
// and an LRU unit of work sized by the config.
func New(provider metadata.Provider, storage StorageExecutor, opts ...Option) (*Engine, error) {
	e := &Engine{
		provider: provider,
		storage:  storage,
		config:   database.DefaultEngineConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = database.GetLogger()
	}
	if e.dtos == nil {
		e.dtos = NewDtoRegistry()
	}
	if e.uow == nil {
		uow, err := NewUnitOfWork(e.config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create unit of work: %w", err)
		}
		e.uow = uow
	}
	trees, err := lru.New[string, *predicate.Tree](methodCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create method cache: %w", err)
	}
	e.trees = trees
	return e, nil
}

func (e *Engine) Provider() metadata.Provider { return e.provider }

func (e *Engine) Dtos() *DtoRegistry { return e.dtos }

func (e *Engine) UnitOfWork() UnitOfWork { return e.uow }

func (e *Engine) Config() database.EngineConfig { return e.config }

func (e *Engine) Dialect() plan.Dialect { return e.storage.Dialect() }

// WithStorage returns an Engine executing on s, typically a
// transaction-bound storage. It shares this engine's method and DTO caches
// but tracks entities in a unit of work of its own, so nothing read through
// s is visible to other callers. Discarding the engine discards what it
// tracked.
func (e *Engine) WithStorage(s StorageExecutor) (*Engine, error) {
	uow, err := NewUnitOfWork(e.config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create unit of work: %w", err)
	}
	c := *e
	c.storage = s
	c.uow = uow
	return &c, nil
}

// Evict drops the tracked instances of entity with the given primary key
// values. Writes that bypass the engine call it so later reads see storage.
func (e *Engine) Evict(entity string, keys ...interface{}) error {
	ent, err := e.provider.Entity(entity)
	if err != nil {
		return err
	}
	for _, k := range keys {
		e.uow.Evict(Identity{Entity: ent.Name, Key: cast.ToString(k)})
	}
	return nil
}

// EvictInstances drops the tracked instances sharing a primary key with
// instances, which are entity structs or pointers to them.
func (e *Engine) EvictInstances(entity string, instances ...interface{}) error {
	ent, err := e.provider.Entity(entity)
	if err != nil {
		return err
	}
	pk, ok := ent.PrimaryKey()
	if !ok {
		return nil
	}
	for _, inst := range instances {
		v := reflect.Indirect(reflect.ValueOf(inst))
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("evict %s: %T is not an entity", ent.Name, inst)
		}
		f := v.FieldByName(pk.GoField)
		if !f.IsValid() {
			return fmt.Errorf("evict %s: %T has no field %s", ent.Name, inst, pk.GoField)
		}
		e.uow.Evict(Identity{Entity: ent.Name, Key: cast.ToString(f.Interface())})
	}
	return nil
}

// Query starts a plan for entity, checked against the engine's DTO
// registry.
func (e *Engine) Query(entity string) *plan.Builder {
	return plan.NewBuilder(entity, e.provider).Projections(e.dtos)
}

// Derive starts a plan from a derived method name.
func (e *Engine) Derive(entity, method string) (*plan.Builder, error) {
	tree, err := e.ParseMethod(entity, method)
	if err != nil {
		return nil, err
	}
	return e.Query(entity).Tree(tree), nil
}

// ParseMethod parses a derived method name once per entity.
func (e *Engine) ParseMethod(entity, method string) (*predicate.Tree, error) {
	key := entity + "." + method
	if tree, ok := e.trees.Get(key); ok {
		return tree, nil
	}
	ent, err := e.provider.Entity(entity)
	if err != nil {
		return nil, err
	}
	tree, err := predicate.ParseMethod(method, ent)
	if err != nil {
		return nil, err
	}
	e.trees.Add(key, tree)
	return tree, nil
}

// Run builds the plan and executes it. Build errors are returned before
// any storage round trip.
func (e *Engine) Run(ctx context.Context, b *plan.Builder) (*Result, error) {
	p, err := b.Build()
	if err != nil {
		e.logger.Debug("plan rejected", "error", err)
		return nil, err
	}
	return e.Execute(ctx, p)
}

// Execute runs a built plan.
func (e *Engine) Execute(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("execute: nil plan")
	}
	exec := plan.NewExecution(p)
	exec.Validated()
	exec.Executing()
	e.logger.Debug("execute", "id", exec.ID, "plan", p)

	res, err := e.dispatch(ctx, p)
	if err != nil {
		e.logger.Error("execution failed", "id", exec.ID, "entity", p.Entity().Name, "error", err)
		return nil, exec.Failed(err)
	}
	exec.Committed()
	res.ExecutionID = exec.ID
	res.Kind = p.Result()
	e.logger.Debug("execution committed", "id", exec.ID, "state", exec.State())
	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	switch p.Result() {
	case types.ResultAffected:
		return e.mutate(ctx, p)
	case types.ResultPage:
		return e.page(ctx, p)
	case types.ResultSlice:
		return e.slice(ctx, p)
	case types.ResultCount:
		total, err := e.count(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Result{Total: total}, nil
	case types.ResultExists:
		rows, err := e.query(ctx, p.ExistsStatement(e.Dialect()))
		if err != nil {
			return nil, err
		}
		return &Result{Exists: len(rows) > 0}, nil
	case types.ResultScalars:
		return e.scalars(ctx, p)
	case types.ResultDtos:
		return e.project(ctx, p)
	}

	entities, err := e.load(ctx, p, plan.Window{})
	if err != nil {
		return nil, err
	}
	if (p.Result() == types.ResultOne || p.Result() == types.ResultOptional) && len(entities) > 1 {
		return nil, errors.Wrapf(types.ErrNotUnique, "%s: %d results", p.Entity().Name, len(entities))
	}
	return &Result{Entities: entities}, nil
}

// load runs the content query and materializes entities inside a
// tracking scope that is discarded unless materialization completes.
func (e *Engine) load(ctx context.Context, p *plan.QueryPlan, w plan.Window) ([]interface{}, error) {
	rows, err := e.query(ctx, p.SelectStatement(e.Dialect(), w))
	if err != nil {
		return nil, err
	}
	t := newTracker(e.uow, p.ReadOnly())
	defer t.close()

	m := newMaterializer(p, t)
	if err := m.addAll(rows); err != nil {
		return nil, err
	}
	t.commit()
	return m.entities(), nil
}

func (e *Engine) count(ctx context.Context, p *plan.QueryPlan) (int64, error) {
	rows, err := e.query(ctx, p.CountStatement(e.Dialect()))
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	for _, v := range rows[0] {
		n, err := cast.ToInt64E(scalar(v))
		if err != nil {
			return 0, errors.Wrap(err, "count")
		}
		return n, nil
	}
	return 0, nil
}

func (e *Engine) scalars(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	rows, err := e.query(ctx, p.SelectStatement(e.Dialect(), plan.Window{}))
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		v, ok := row[plan.DtoColumn(0)]
		if !ok {
			if len(row) != 1 {
				return nil, fmt.Errorf("scalar query returned %d columns", len(row))
			}
			for _, only := range row {
				v = only
			}
		}
		values = append(values, scalar(v))
	}
	return &Result{Values: values}, nil
}

func (e *Engine) project(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	spec := p.Projection()
	rows, err := e.query(ctx, p.SelectStatement(e.Dialect(), plan.Window{}))
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		args := make([]interface{}, len(spec.Fields))
		for i := range args {
			args[i] = scalar(row[plan.DtoColumn(i)])
		}
		dto, err := e.dtos.Construct(spec.TypeName, args)
		if err != nil {
			return nil, err
		}
		values = append(values, dto)
	}
	return &Result{Values: values}, nil
}

func (e *Engine) query(ctx context.Context, stmt plan.Statement) ([]map[string]interface{}, error) {
	e.logger.Debug("query", "sql", stmt.Text, "args", stmt.Args)
	return e.storage.Query(ctx, stmt.Text, stmt.Args...)
}

func (e *Engine) exec(ctx context.Context, stmt plan.Statement) (int64, error) {
	e.logger.Debug("exec", "sql", stmt.Text, "args", stmt.Args)
	return e.storage.Exec(ctx, stmt.Text, stmt.Args...)
}
