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

package predicate

import (
	"strings"

	"github.com/tomoncle/querykit/types"
)

// Subject is what a derived method does with the rows it matches.
type Subject int

const (
	SubjectFind Subject = iota
	SubjectCount
	SubjectExists
	SubjectDelete
)

func (s Subject) String() string {
	switch s {
	case SubjectCount:
		return "count"
	case SubjectExists:
		return "exists"
	case SubjectDelete:
		return "delete"
	default:
		return "find"
	}
}

// Clause is one attribute comparison.
type Clause struct {
	Field       string
	Operator    Operator
	Conjunction Conjunction
	IgnoreCase  bool
}

// Tree is the parsed form of a derived method name. An empty Clauses
// list matches every row.
type Tree struct {
	Method   string
	Subject  Subject
	Distinct bool
	Limit    int
	Clauses  []Clause
	Orders   []types.Order
}

// Arity is the number of arguments all clauses consume together.
func (t *Tree) Arity() int {
	n := 0
	for _, c := range t.Clauses {
		n += c.Operator.Arity()
	}
	return n
}

// Groups splits the clauses into OR-separated groups of AND-ed clauses.
func (t *Tree) Groups() [][]Clause {
	if len(t.Clauses) == 0 {
		return nil
	}
	groups := [][]Clause{{t.Clauses[0]}}
	for _, c := range t.Clauses[1:] {
		if c.Conjunction == Or {
			groups = append(groups, []Clause{c})
			continue
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], c)
	}
	return groups
}

func (t *Tree) String() string {
	var b strings.Builder
	b.WriteString(t.Subject.String())
	for i, c := range t.Clauses {
		if i > 0 {
			b.WriteString(" " + c.Conjunction.String())
		}
		b.WriteString(" " + c.Field + " " + c.Operator.String())
		if c.IgnoreCase {
			b.WriteString(" IGNORE_CASE")
		}
	}
	for _, o := range t.Orders {
		b.WriteString(" ORDER " + o.String())
	}
	return b.String()
}
