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
	"github.com/tomoncle/querykit/engine"
	"github.com/tomoncle/querykit/plan"
	"github.com/tomoncle/querykit/predicate"
	"github.com/tomoncle/querykit/types"
)

// Method declares one repository method. Build it with Derived or Query and
// chain directives:
//
//	repository.Derived("findByUsername").Fetch("team").ReadOnly()
//	repository.Query("bulkAgePlus", "update members set age = age + 1 where age >= :age", "age").Modifying()
type Method struct {
	name      string
	query     string
	params    []string
	fetch     []string
	lock      types.LockMode
	readOnly  bool
	modifying bool
	clear     *bool
	result    types.ResultKind
	hasResult bool
	project   *plan.DtoSpec
	sort      []types.Order
}

// Derived declares a method whose predicate comes from its name.
func Derived(name string) Method {
	return Method{name: name}
}

// Query declares a method backed by a SQL template. params names the
// template placeholders in argument order.
func Query(name, query string, params ...string) Method {
	return Method{name: name, query: query, params: params}
}

func (m Method) Name() string { return m.name }

// Literal reports whether the method carries a SQL template.
func (m Method) Literal() bool { return m.query != "" }

func (m Method) Fetch(paths ...string) Method {
	m.fetch = append(append([]string(nil), m.fetch...), paths...)
	return m
}

func (m Method) Lock(mode types.LockMode) Method {
	m.lock = mode
	return m
}

func (m Method) ReadOnly() Method {
	m.readOnly = true
	return m
}

// Modifying marks a bulk UPDATE or DELETE. Unless ClearAutomatically says
// otherwise the unit of work is cleared per the engine's default.
func (m Method) Modifying() Method {
	m.modifying = true
	return m
}

func (m Method) ClearAutomatically(clear bool) Method {
	m.modifying = true
	m.clear = &clear
	return m
}

// Returns pins the result kind; calling the method through another
// accessor is then an error.
func (m Method) Returns(kind types.ResultKind) Method {
	m.result = kind
	m.hasResult = true
	return m
}

// Project shapes a derived method's rows into the registered DTO typeName,
// one attribute per constructor argument.
func (m Method) Project(typeName string, attributes ...string) Method {
	m.project = &plan.DtoSpec{TypeName: typeName, Fields: attributes}
	return m
}

// Sort appends default sort keys such as "age DESC".
func (m Method) Sort(orders ...string) Method {
	m.sort = append([]types.Order(nil), m.sort...)
	for _, o := range orders {
		if po := types.ParseOrder(o); po.Property != "" {
			m.sort = append(m.sort, po)
		}
	}
	return m
}

// builder starts a plan carrying every declared directive. kind overrides
// the inferred result when non-nil.
func (m Method) builder(e *engine.Engine, entity string, kind *types.ResultKind) (*plan.Builder, error) {
	var b *plan.Builder
	modifying := m.modifying
	if m.query != "" {
		b = e.Query(entity).Name(m.name).Literal(m.query).Params(m.params...)
	} else {
		tree, err := e.ParseMethod(entity, m.name)
		if err != nil {
			return nil, err
		}
		b = e.Query(entity).Tree(tree)
		modifying = modifying || tree.Subject == predicate.SubjectDelete
	}
	b.Fetch(m.fetch...).Lock(m.lock).ReadOnly(m.readOnly).Sort(m.sort...)
	if modifying {
		clear := e.Config().ClearAutomaticallyDefault
		if m.clear != nil {
			clear = *m.clear
		}
		b.Modifying(clear)
	}
	if m.project != nil {
		b.Project(m.project)
	}
	switch {
	case kind != nil:
		b.Result(*kind)
	case m.hasResult:
		b.Result(m.result)
	}
	return b, nil
}
