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
	lru "github.com/hashicorp/golang-lru/v2"
)

// Identity keys a tracked entity instance: entity name and primary key.
type Identity struct {
	Entity string
	Key    string
}

// UnitOfWork is the identity map of entities materialized by non read-only
// queries. Register returns the instance already tracked for the identity,
// if any, so repeated reads of a row yield the same pointer.
type UnitOfWork interface {
	Get(id Identity) (interface{}, bool)
	Register(id Identity, instance interface{}) (tracked interface{}, loaded bool)
	Evict(id Identity)
	InvalidateAll()
	Len() int
}

// DefaultCacheSize bounds the identity map when no size is configured.
const DefaultCacheSize = 4096

type lruUnitOfWork struct {
	entries *lru.Cache[Identity, interface{}]
}

// NewUnitOfWork returns an LRU-bounded identity map. Evicted entries are
// simply reloaded on the next read.
func NewUnitOfWork(size int) (UnitOfWork, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[Identity, interface{}](size)
	if err != nil {
		return nil, err
	}
	return &lruUnitOfWork{entries: entries}, nil
}

func (u *lruUnitOfWork) Get(id Identity) (interface{}, bool) {
	return u.entries.Get(id)
}

func (u *lruUnitOfWork) Register(id Identity, instance interface{}) (interface{}, bool) {
	if prev, ok, _ := u.entries.PeekOrAdd(id, instance); ok {
		u.entries.Get(id)
		return prev, true
	}
	return instance, false
}

func (u *lruUnitOfWork) Evict(id Identity) {
	u.entries.Remove(id)
}

func (u *lruUnitOfWork) InvalidateAll() {
	u.entries.Purge()
}

func (u *lruUnitOfWork) Len() int {
	return u.entries.Len()
}

// tracker is the per-call registration scope. Identities registered by a
// call that does not commit are evicted again on close.
type tracker struct {
	uow       UnitOfWork
	readOnly  bool
	added     []Identity
	committed bool
}

func newTracker(uow UnitOfWork, readOnly bool) *tracker {
	return &tracker{uow: uow, readOnly: readOnly}
}

func (t *tracker) attach(id Identity, instance interface{}) interface{} {
	if t.readOnly || t.uow == nil {
		return instance
	}
	tracked, loaded := t.uow.Register(id, instance)
	if !loaded {
		t.added = append(t.added, id)
	}
	return tracked
}

func (t *tracker) commit() { t.committed = true }

func (t *tracker) close() {
	if t.committed || t.uow == nil {
		return
	}
	for _, id := range t.added {
		t.uow.Evict(id)
	}
	t.added = nil
}
