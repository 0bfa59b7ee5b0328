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

package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Attribute is a mapped column of an entity.
type Attribute struct {
	Name    string // lower camel, as used in method names: "username"
	Column  string
	GoField string
	Type    reflect.Type
	PK      bool
}

// Association links an entity to another one. The join condition is
// target.TargetColumn = owner.LocalColumn.
type Association struct {
	Name         string
	GoField      string
	Target       string
	LocalColumn  string
	TargetColumn string
	ToMany       bool
}

// Entity is the schema of one mapped type.
type Entity struct {
	Name         string
	Table        string
	Alias        string
	Type         reflect.Type
	Attributes   []Attribute
	Associations []Association

	once     sync.Once
	byName   map[string]int
	byFold   map[string]int
	byColumn map[string]int
	assocs   map[string]int
}

func (e *Entity) index() {
	e.once.Do(func() {
		e.byName = make(map[string]int, len(e.Attributes))
		e.byFold = make(map[string]int, len(e.Attributes))
		e.byColumn = make(map[string]int, len(e.Attributes))
		e.assocs = make(map[string]int, len(e.Associations))
		for i, a := range e.Attributes {
			e.byName[a.Name] = i
			e.byFold[strings.ToLower(a.Name)] = i
			e.byColumn[a.Column] = i
		}
		for i, a := range e.Associations {
			e.assocs[a.Name] = i
		}
	})
}

// HasAttribute reports whether name is a mapped attribute.
func (e *Entity) HasAttribute(name string) bool {
	_, ok := e.Attribute(name)
	return ok
}

// Attribute looks name up exactly, then case-insensitively so "teamId"
// finds a TeamID field.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	e.index()
	i, ok := e.byName[name]
	if !ok {
		i, ok = e.byFold[strings.ToLower(name)]
	}
	if !ok {
		return Attribute{}, false
	}
	return e.Attributes[i], true
}

func (e *Entity) AttributeByColumn(column string) (Attribute, bool) {
	e.index()
	i, ok := e.byColumn[column]
	if !ok {
		return Attribute{}, false
	}
	return e.Attributes[i], true
}

func (e *Entity) Association(name string) (Association, bool) {
	e.index()
	i, ok := e.assocs[name]
	if !ok {
		return Association{}, false
	}
	return e.Associations[i], true
}

// PrimaryKey returns the first primary key attribute.
func (e *Entity) PrimaryKey() (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.PK {
			return a, true
		}
	}
	return Attribute{}, false
}

// Columns lists the mapped columns in declaration order.
func (e *Entity) Columns() []string {
	cols := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		cols[i] = a.Column
	}
	return cols
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s AS %s)", e.Name, e.Table, e.Alias)
}

// Provider resolves entity schemas by type name.
type Provider interface {
	Entity(name string) (*Entity, error)
}

// ErrUnknownEntity is returned by providers for unregistered names.
type ErrUnknownEntity struct {
	Name string
}

func (e *ErrUnknownEntity) Error() string {
	return fmt.Sprintf("unknown entity: %s", e.Name)
}

// Registry is a Provider over explicitly registered schemas.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

func NewRegistry(entities ...*Entity) *Registry {
	r := &Registry{entities: make(map[string]*Entity)}
	for _, e := range entities {
		r.Register(e)
	}
	return r
}

func (r *Registry) Register(e *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.Name] = e
}

func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		return nil, &ErrUnknownEntity{Name: name}
	}
	return e, nil
}
