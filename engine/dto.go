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
	"fmt"
	"reflect"
	"sync"
)

// DtoFactory builds a DTO from constructor arguments in declaration order.
type DtoFactory func(args []interface{}) (interface{}, error)

// DtoRegistry maps projection type names to constructors.
type DtoRegistry struct {
	mu        sync.RWMutex
	factories map[string]DtoFactory
}

func NewDtoRegistry() *DtoRegistry {
	return &DtoRegistry{factories: make(map[string]DtoFactory)}
}

// Register adds or replaces the constructor for name.
func (r *DtoRegistry) Register(name string, factory DtoFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

func (r *DtoRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Construct calls the constructor registered for name.
func (r *DtoRegistry) Construct(name string, args []interface{}) (interface{}, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no DTO constructor registered for %s", name)
	}
	return factory(args)
}

// RegisterStruct registers T under its type name. The constructor assigns
// its arguments to T's exported fields in declaration order and returns *T.
func RegisterStruct[T any](r *DtoRegistry) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	var fields []int
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).IsExported() {
			fields = append(fields, i)
		}
	}
	r.Register(typ.Name(), func(args []interface{}) (interface{}, error) {
		if len(args) != len(fields) {
			return nil, fmt.Errorf("%s takes %d arguments, got %d", typ.Name(), len(fields), len(args))
		}
		dto := new(T)
		v := reflect.ValueOf(dto).Elem()
		for i, idx := range fields {
			if err := assign(v.Field(idx), args[i]); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", typ.Name(), typ.Field(idx).Name, err)
			}
		}
		return dto, nil
	})
}
