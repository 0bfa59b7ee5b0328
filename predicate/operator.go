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
	"sort"

	"github.com/tomoncle/querykit/types"
)

// Operator is the comparison a clause applies to its attribute.
type Operator int

const (
	Equals Operator = iota
	NotEquals
	GreaterThan
	GreaterThanEqual
	LessThan
	LessThanEqual
	Between
	In
	NotIn
	IsNull
	IsNotNull
	Like
	NotLike
	StartingWith
	EndingWith
	Containing
	True
	False
)

var _ types.BaseEnum = Equals

var operatorNames = [...]string{
	"EQUALS", "NOT_EQUALS", "GREATER_THAN", "GREATER_THAN_EQUAL", "LESS_THAN",
	"LESS_THAN_EQUAL", "BETWEEN", "IN", "NOT_IN", "IS_NULL", "IS_NOT_NULL",
	"LIKE", "NOT_LIKE", "STARTING_WITH", "ENDING_WITH", "CONTAINING", "TRUE", "FALSE",
}

var operatorArity = [...]int{1, 1, 1, 1, 1, 1, 2, 1, 1, 0, 0, 1, 1, 1, 1, 1, 0, 0}

func (o Operator) IsValid() bool { return o >= Equals && o <= False }

func (o Operator) Number() int {
	if !o.IsValid() {
		return types.IllegalValue
	}
	return int(o)
}

func (o Operator) Name() string {
	if !o.IsValid() {
		return types.IllegalName
	}
	return operatorNames[o]
}

func (o Operator) String() string { return o.Name() }

func (o Operator) Desc() string {
	if !o.IsValid() {
		return types.IllegalDesc
	}
	return keywordsOf(o)[0]
}

// Arity is the number of arguments the operator consumes.
func (o Operator) Arity() int {
	if !o.IsValid() {
		return 0
	}
	return operatorArity[o]
}

// Conjunction joins a clause to the one before it.
type Conjunction int

const (
	And Conjunction = iota
	Or
)

var _ types.BaseEnum = And

func (c Conjunction) IsValid() bool { return c == And || c == Or }

func (c Conjunction) Number() int {
	if !c.IsValid() {
		return types.IllegalValue
	}
	return int(c)
}

func (c Conjunction) Name() string {
	switch c {
	case And:
		return "AND"
	case Or:
		return "OR"
	}
	return types.IllegalName
}

func (c Conjunction) String() string { return c.Name() }

func (c Conjunction) Desc() string { return c.Name() }

// keywords maps method-name operator keywords to operators.
var keywords = map[string]Operator{
	"Is":                 Equals,
	"Equals":             Equals,
	"Not":                NotEquals,
	"IsNot":              NotEquals,
	"GreaterThan":        GreaterThan,
	"IsGreaterThan":      GreaterThan,
	"After":              GreaterThan,
	"IsAfter":            GreaterThan,
	"GreaterThanEqual":   GreaterThanEqual,
	"IsGreaterThanEqual": GreaterThanEqual,
	"LessThan":           LessThan,
	"IsLessThan":         LessThan,
	"Before":             LessThan,
	"IsBefore":           LessThan,
	"LessThanEqual":      LessThanEqual,
	"IsLessThanEqual":    LessThanEqual,
	"Between":            Between,
	"IsBetween":          Between,
	"In":                 In,
	"IsIn":               In,
	"NotIn":              NotIn,
	"IsNotIn":            NotIn,
	"IsNull":             IsNull,
	"Null":               IsNull,
	"IsNotNull":          IsNotNull,
	"NotNull":            IsNotNull,
	"Like":               Like,
	"IsLike":             Like,
	"NotLike":            NotLike,
	"IsNotLike":          NotLike,
	"StartingWith":       StartingWith,
	"IsStartingWith":     StartingWith,
	"StartsWith":         StartingWith,
	"EndingWith":         EndingWith,
	"IsEndingWith":       EndingWith,
	"EndsWith":           EndingWith,
	"Containing":         Containing,
	"IsContaining":       Containing,
	"Contains":           Containing,
	"True":               True,
	"IsTrue":             True,
	"False":              False,
	"IsFalse":            False,
}

// keywordsBySuffix is keywords ordered longest first, so "GreaterThanEqual"
// is tried before "GreaterThan" and "Equal".
var keywordsBySuffix = func() []string {
	out := make([]string, 0, len(keywords))
	for k := range keywords {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// LookupKeyword resolves an operator keyword token.
func LookupKeyword(token string) (Operator, bool) {
	op, ok := keywords[token]
	return op, ok
}

func keywordsOf(o Operator) []string {
	var out []string
	for _, k := range keywordsBySuffix {
		if keywords[k] == o {
			out = append(out, k)
		}
	}
	// shortest keyword first reads best in descriptions
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) < len(out[j]) })
	return out
}
