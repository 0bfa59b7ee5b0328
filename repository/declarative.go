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

package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/tomoncle/querykit/engine"
	"github.com/tomoncle/querykit/plan"
	"github.com/tomoncle/querykit/types"
)

var ErrUnknownMethod = errors.New("unknown repository method")

// Declarative runs the declared methods of entity T through the engine.
// Every method is validated by Declare, so a call can only fail on its
// arguments or in storage.
type Declarative[T any] struct {
	engine  *engine.Engine
	entity  string
	methods map[string]Method
}

// Declare validates methods against T's entity metadata: method names
// must parse, template placeholders must be covered by the declared
// params, and directives must not conflict. All problems are reported
// together.
func Declare[T any](e *engine.Engine, methods ...Method) (*Declarative[T], error) {
	entity := reflect.TypeOf((*T)(nil)).Elem().Name()
	if _, err := e.Provider().Entity(entity); err != nil {
		return nil, err
	}
	d := &Declarative[T]{engine: e, entity: entity, methods: make(map[string]Method, len(methods))}

	var errs *multierror.Error
	for _, m := range methods {
		if _, dup := d.methods[m.name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%s.%s declared twice", entity, m.name))
			continue
		}
		b, err := m.builder(e, entity, nil)
		if err == nil {
			err = b.Validate()
		}
		if err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "%s.%s", entity, m.name))
			continue
		}
		d.methods[m.name] = m
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Declarative[T]) Entity() string { return d.entity }

func (d *Declarative[T]) Engine() *engine.Engine { return d.engine }

// Methods returns the declared method names, sorted.
func (d *Declarative[T]) Methods() []string {
	names := make([]string, 0, len(d.methods))
	for name := range d.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Method returns a declared method.
func (d *Declarative[T]) Method(name string) (Method, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// WithEngine returns a copy running on e, e.g. an engine bound to a
// transaction.
func (d *Declarative[T]) WithEngine(e *engine.Engine) *Declarative[T] {
	c := *d
	c.engine = e
	return &c
}

// Builder returns the declared directives of name as an unbound builder,
// with the result kind inferred.
func (d *Declarative[T]) Builder(name string) (*plan.Builder, error) {
	m, ok := d.methods[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%s.%s", d.entity, name)
	}
	return m.builder(d.engine, d.entity, nil)
}

// Plan builds the plan a call would execute.
func (d *Declarative[T]) Plan(name string, kind types.ResultKind, page *types.PageRequest, args ...interface{}) (*plan.QueryPlan, error) {
	b, err := d.prepare(name, kind, page, args)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

// Explain renders the statements a call would issue, in order.
func (d *Declarative[T]) Explain(name string, kind types.ResultKind, page *types.PageRequest, args ...interface{}) ([]plan.Statement, error) {
	p, err := d.Plan(name, kind, page, args...)
	if err != nil {
		return nil, err
	}
	return d.engine.Explain(p), nil
}

func (d *Declarative[T]) prepare(name string, kind types.ResultKind, page *types.PageRequest, args []interface{}) (*plan.Builder, error) {
	m, ok := d.methods[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "%s.%s", d.entity, name)
	}
	if m.hasResult && !compatible(m.result, kind) {
		return nil, &types.ConflictingDirectiveError{
			First:  "returns " + m.result.String(),
			Second: "called as " + kind.String(),
			Reason: fmt.Sprintf("%s.%s is declared with another result", d.entity, name),
		}
	}
	b, err := m.builder(d.engine, d.entity, &kind)
	if err != nil {
		return nil, err
	}
	b.Args(args...)
	if page != nil {
		b.Page(page)
	}
	return b, nil
}

func compatible(declared, called types.ResultKind) bool {
	single := func(k types.ResultKind) bool { return k == types.ResultOne || k == types.ResultOptional }
	return declared == called || (single(declared) && single(called))
}

func (d *Declarative[T]) run(ctx context.Context, name string, kind types.ResultKind, page *types.PageRequest, args []interface{}) (*engine.Result, error) {
	b, err := d.prepare(name, kind, page, args)
	if err != nil {
		return nil, err
	}
	return d.engine.Run(ctx, b)
}

func (d *Declarative[T]) List(ctx context.Context, name string, args ...interface{}) ([]*T, error) {
	res, err := d.run(ctx, name, types.ResultList, nil, args)
	if err != nil {
		return nil, err
	}
	return entitiesOf[T](res.Entities)
}

// One returns nil when nothing matches and ErrNotUnique when more than one
// entity does.
func (d *Declarative[T]) One(ctx context.Context, name string, args ...interface{}) (*T, error) {
	res, err := d.run(ctx, name, types.ResultOne, nil, args)
	if err != nil {
		return nil, err
	}
	items, err := entitiesOf[T](res.Entities)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (d *Declarative[T]) Optional(ctx context.Context, name string, args ...interface{}) (types.Optional[T], error) {
	res, err := d.run(ctx, name, types.ResultOptional, nil, args)
	if err != nil {
		return types.None[T](), err
	}
	items, err := entitiesOf[T](res.Entities)
	if err != nil || len(items) == 0 {
		return types.None[T](), err
	}
	return types.Some(items[0]), nil
}

// Page runs the count query, then the content query unless the requested
// window lies past the last row.
func (d *Declarative[T]) Page(ctx context.Context, name string, req *types.PageRequest, args ...interface{}) (*types.Page[T], error) {
	res, err := d.run(ctx, name, types.ResultPage, req, args)
	if err != nil {
		return nil, err
	}
	page := types.NewDefaultPage[T](res.Page, res.PageSize)
	page.Total = res.Total
	if page.Items, err = entitiesOf[T](res.Entities); err != nil {
		return nil, err
	}
	return page, nil
}

func (d *Declarative[T]) Slice(ctx context.Context, name string, req *types.PageRequest, args ...interface{}) (*types.Slice[T], error) {
	res, err := d.run(ctx, name, types.ResultSlice, req, args)
	if err != nil {
		return nil, err
	}
	slice := types.NewDefaultSlice[T](res.Page, res.PageSize)
	slice.HasNext = res.HasNext
	if slice.Items, err = entitiesOf[T](res.Entities); err != nil {
		return nil, err
	}
	return slice, nil
}

func (d *Declarative[T]) Scalars(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	res, err := d.run(ctx, name, types.ResultScalars, nil, args)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

func (d *Declarative[T]) Dtos(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	res, err := d.run(ctx, name, types.ResultDtos, nil, args)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

func (d *Declarative[T]) Count(ctx context.Context, name string, args ...interface{}) (int64, error) {
	res, err := d.run(ctx, name, types.ResultCount, nil, args)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

func (d *Declarative[T]) Exists(ctx context.Context, name string, args ...interface{}) (bool, error) {
	res, err := d.run(ctx, name, types.ResultExists, nil, args)
	if err != nil {
		return false, err
	}
	return res.Exists, nil
}

// Modify runs a bulk statement and returns the affected-row count.
func (d *Declarative[T]) Modify(ctx context.Context, name string, args ...interface{}) (int64, error) {
	res, err := d.run(ctx, name, types.ResultAffected, nil, args)
	if err != nil {
		return 0, err
	}
	return res.Affected, nil
}

// ScalarsAs runs a scalar method and converts each value to V.
func ScalarsAs[V any, T any](ctx context.Context, d *Declarative[T], name string, args ...interface{}) ([]V, error) {
	values, err := d.Scalars(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(values))
	target := reflect.TypeOf((*V)(nil)).Elem()
	for _, v := range values {
		if typed, ok := v.(V); ok {
			out = append(out, typed)
			continue
		}
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || !rv.Type().ConvertibleTo(target) {
			return nil, fmt.Errorf("%s.%s: cannot convert %T to %s", d.entity, name, v, target)
		}
		out = append(out, rv.Convert(target).Interface().(V))
	}
	return out, nil
}

// DtosAs runs a projection method whose DTO factory returns *D.
func DtosAs[D any, T any](ctx context.Context, d *Declarative[T], name string, args ...interface{}) ([]*D, error) {
	values, err := d.Dtos(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*D, 0, len(values))
	for _, v := range values {
		dto, ok := v.(*D)
		if !ok {
			return nil, fmt.Errorf("%s.%s: projection produced %T", d.entity, name, v)
		}
		out = append(out, dto)
	}
	return out, nil
}

func entitiesOf[T any](values []interface{}) ([]*T, error) {
	out := make([]*T, 0, len(values))
	for _, v := range values {
		item, ok := v.(*T)
		if !ok {
			return nil, fmt.Errorf("materialized %T, want %T", v, (*T)(nil))
		}
		out = append(out, item)
	}
	return out, nil
}
