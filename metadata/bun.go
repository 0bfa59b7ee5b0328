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
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/inflect"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// BunProvider derives entity schemas from bun table metadata, so the
// engine and bun agree on table, alias and column names.
type BunProvider struct {
	db     *bun.DB
	mu     sync.Mutex
	types  map[string]reflect.Type
	cached map[string]*Entity
}

// NewBunProvider registers models (struct pointers such as (*Member)(nil))
// with the provider.
func NewBunProvider(db *bun.DB, models ...interface{}) *BunProvider {
	p := &BunProvider{
		db:     db,
		types:  make(map[string]reflect.Type),
		cached: make(map[string]*Entity),
	}
	for _, m := range models {
		p.Register(m)
	}
	return p
}

func (p *BunProvider) Register(model interface{}) {
	typ := indirectType(reflect.TypeOf(model))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types[typ.Name()] = typ
}

func (p *BunProvider) Entity(name string) (*Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.cached[name]; ok {
		return e, nil
	}
	typ, ok := p.types[name]
	if !ok {
		return nil, &ErrUnknownEntity{Name: name}
	}
	e, err := p.build(typ)
	if err != nil {
		return nil, err
	}
	p.cached[name] = e
	return e, nil
}

func (p *BunProvider) build(typ reflect.Type) (e *Entity, err error) {
	defer func() {
		// bun panics on malformed struct tags
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read bun metadata of %s: %v", typ.Name(), r)
		}
	}()
	table := p.db.Table(typ)
	e = &Entity{
		Name:  typ.Name(),
		Table: table.Name,
		Alias: table.Alias,
		Type:  typ,
	}
	for _, f := range table.Fields {
		e.Attributes = append(e.Attributes, Attribute{
			Name:    LowerCamel(f.GoName),
			Column:  f.Name,
			GoField: f.GoName,
			Type:    f.StructField.Type,
			PK:      f.IsPK,
		})
	}
	relations := make([]*schema.Relation, 0, len(table.Relations))
	for _, rel := range table.Relations {
		relations = append(relations, rel)
	}
	// map order is random; keep struct declaration order
	sort.Slice(relations, func(i, j int) bool {
		return lessIndex(relations[i].Field.StructField.Index, relations[j].Field.StructField.Index)
	})
	for _, rel := range relations {
		if rel.Type == schema.ManyToManyRelation {
			continue
		}
		a := Association{
			Name:    LowerCamel(rel.Field.GoName),
			GoField: rel.Field.GoName,
			Target:  rel.JoinTable.Type.Name(),
			ToMany:  rel.Type == schema.HasManyRelation,
		}
		a.LocalColumn, a.TargetColumn = joinColumns(rel, e)
		e.Associations = append(e.Associations, a)
	}
	return e, nil
}

// joinColumns reads "join:local=target" from the bun tag, falling back to
// bun's naming conventions.
func joinColumns(rel *schema.Relation, owner *Entity) (string, string) {
	for _, opt := range strings.Split(rel.Field.StructField.Tag.Get("bun"), ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(opt), "join:"); ok {
			if local, target, ok := strings.Cut(v, "="); ok {
				return local, target
			}
		}
	}
	ownerPK := "id"
	if pk, ok := owner.PrimaryKey(); ok {
		ownerPK = pk.Column
	}
	if rel.Type == schema.BelongsToRelation {
		return inflect.Underscore(rel.Field.GoName) + "_id", "id"
	}
	return ownerPK, inflect.Underscore(owner.Name) + "_" + ownerPK
}

// LowerCamel lower-cases the leading upper-case run of a Go name:
// "Username" -> "username", "ID" -> "id", "URLPath" -> "urlPath".
func LowerCamel(goName string) string {
	r := []rune(goName)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	if n > 1 && n < len(r) {
		n--
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

func lessIndex(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t
}
