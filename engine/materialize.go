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

package engine

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/plan"
)

var timeType = reflect.TypeOf(time.Time{})

type collection struct {
	parent uintptr
	path   string
}

type link struct {
	collection
	child uintptr
}

// materializer folds flat rows into entity graphs for a single call. Root
// rows repeated by to-many joins collapse onto one instance per key.
type materializer struct {
	root    *metadata.Entity
	joins   []plan.Join
	tracker *tracker
	seen    map[string]reflect.Value
	roots   []reflect.Value
	fresh   map[collection]bool
	linked  map[link]bool
}

func newMaterializer(p *plan.QueryPlan, t *tracker) *materializer {
	return &materializer{
		root:    p.Entity(),
		joins:   p.Joins(),
		tracker: t,
		seen:    make(map[string]reflect.Value),
		fresh:   make(map[collection]bool),
		linked:  make(map[link]bool),
	}
}

func (m *materializer) addAll(rows []map[string]interface{}) error {
	for _, row := range rows {
		if err := m.add(row); err != nil {
			return err
		}
	}
	return nil
}

func (m *materializer) add(row map[string]interface{}) error {
	inst, created, err := m.instance(m.root, row, "")
	if err != nil || !inst.IsValid() {
		return err
	}
	if created {
		m.roots = append(m.roots, inst)
	}
	current := map[string]reflect.Value{"": inst}
	for _, j := range m.joins {
		parent := current[parentPath(j.Path)]
		if !parent.IsValid() {
			continue
		}
		child, _, err := m.instance(j.Target, row, j.Path)
		if err != nil {
			return err
		}
		current[j.Path] = child
		if err := m.link(parent, j, child); err != nil {
			return err
		}
	}
	return nil
}

// entities returns the root instances in first-seen order.
func (m *materializer) entities() []interface{} {
	out := make([]interface{}, len(m.roots))
	for i, r := range m.roots {
		out[i] = r.Interface()
	}
	return out
}

// instance builds the entity held by row under the join path prefix, or
// returns the one already built for the same key. An absent key yields an
// invalid Value: the outer join matched nothing.
func (m *materializer) instance(e *metadata.Entity, row map[string]interface{}, path string) (reflect.Value, bool, error) {
	column := func(c string) string {
		if path == "" {
			return c
		}
		return plan.JoinColumn(path, c)
	}
	pk, hasPK := e.PrimaryKey()
	var id Identity
	if hasPK {
		v := row[column(pk.Column)]
		if v == nil {
			return reflect.Value{}, false, nil
		}
		id = Identity{Entity: e.Name, Key: cast.ToString(v)}
		if inst, ok := m.seen[id.Entity+"#"+id.Key]; ok {
			return inst, false, nil
		}
	}
	if e.Type == nil {
		return reflect.Value{}, false, fmt.Errorf("entity %s has no Go type to materialize", e.Name)
	}
	ptr := reflect.New(e.Type)
	for _, a := range e.Attributes {
		v, ok := row[column(a.Column)]
		if !ok {
			continue
		}
		f := ptr.Elem().FieldByName(a.GoField)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		if err := assign(f, v); err != nil {
			return reflect.Value{}, false, fmt.Errorf("materialize %s.%s: %w", e.Name, a.GoField, err)
		}
	}
	if !hasPK {
		return ptr, true, nil
	}
	inst := reflect.ValueOf(m.tracker.attach(id, ptr.Interface()))
	m.seen[id.Entity+"#"+id.Key] = inst
	return inst, true, nil
}

func (m *materializer) link(parent reflect.Value, j plan.Join, child reflect.Value) error {
	f := parent.Elem().FieldByName(j.Association.GoField)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("materialize %s: no settable field %q for association %s",
			parent.Elem().Type().Name(), j.Association.GoField, j.Association.Name)
	}
	if !j.Association.ToMany {
		if !child.IsValid() {
			return nil
		}
		if f.Kind() == reflect.Ptr {
			f.Set(child)
		} else {
			f.Set(child.Elem())
		}
		return nil
	}

	// a fetched collection is rebuilt from this result, never merged
	c := collection{parent: parent.Pointer(), path: j.Path}
	if !m.fresh[c] {
		m.fresh[c] = true
		f.Set(reflect.MakeSlice(f.Type(), 0, 0))
	}
	if !child.IsValid() {
		return nil
	}
	l := link{collection: c, child: child.Pointer()}
	if m.linked[l] {
		return nil
	}
	m.linked[l] = true
	if f.Type().Elem().Kind() == reflect.Ptr {
		f.Set(reflect.Append(f, child))
	} else {
		f.Set(reflect.Append(f, child.Elem()))
	}
	return nil
}

func parentPath(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[:i]
	}
	return ""
}

// assign stores a driver value into f, coercing with cast where the types
// differ.
func assign(f reflect.Value, v interface{}) error {
	if v == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	if b, ok := v.([]byte); ok && f.Kind() != reflect.Slice {
		v = string(b)
	}
	if f.CanAddr() {
		if s, ok := f.Addr().Interface().(sql.Scanner); ok {
			return s.Scan(v)
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
		return nil
	}

	var err error
	switch f.Kind() {
	case reflect.Ptr:
		elem := reflect.New(f.Type().Elem())
		if err = assign(elem.Elem(), v); err == nil {
			f.Set(elem)
		}
		return err
	case reflect.String:
		var s string
		if s, err = cast.ToStringE(v); err == nil {
			f.SetString(s)
		}
		return err
	case reflect.Bool:
		var b bool
		if b, err = cast.ToBoolE(v); err == nil {
			f.SetBool(b)
		}
		return err
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var n int64
		if n, err = cast.ToInt64E(v); err == nil {
			f.SetInt(n)
		}
		return err
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		if n, err = cast.ToUint64E(v); err == nil {
			f.SetUint(n)
		}
		return err
	case reflect.Float32, reflect.Float64:
		var n float64
		if n, err = cast.ToFloat64E(v); err == nil {
			f.SetFloat(n)
		}
		return err
	case reflect.Struct:
		if f.Type() == timeType {
			var t time.Time
			if t, err = cast.ToTimeE(v); err == nil {
				f.Set(reflect.ValueOf(t))
			}
			return err
		}
	}
	if rv.Type().ConvertibleTo(f.Type()) {
		f.Set(rv.Convert(f.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, f.Type())
}

// scalar normalizes a driver value for scalar and count results.
func scalar(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
