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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/types"
)

type attrs map[string]bool

func (a attrs) HasAttribute(name string) bool { return a[name] }

var member = attrs{"id": true, "username": true, "age": true, "teamId": true, "active": true, "orderCount": true}

func TestTokenize(t *testing.T) {
	tests := []struct {
		method    string
		subject   Subject
		predicate []string
		limit     int
		distinct  bool
	}{
		{"findByUsernameAndAgeGreaterThan", SubjectFind, []string{"username", "And", "age", "GreaterThan"}, 0, false},
		{"findByUsername", SubjectFind, []string{"username"}, 0, false},
		{"findHelloBy", SubjectFind, nil, 0, false},
		{"findAll", SubjectFind, nil, 0, false},
		{"findListByUsername", SubjectFind, []string{"username"}, 0, false},
		{"findByAgeGreaterThanEqual", SubjectFind, []string{"age", "GreaterThanEqual"}, 0, false},
		{"findByAgeIsGreaterThan", SubjectFind, []string{"age", "IsGreaterThan"}, 0, false},
		{"findByAgeBetweenOrUsernameIsNull", SubjectFind, []string{"age", "Between", "Or", "username", "IsNull"}, 0, false},
		{"findByOrderCount", SubjectFind, []string{"orderCount"}, 0, false},
		{"findTop3ByAge", SubjectFind, []string{"age"}, 3, false},
		{"findFirstByAge", SubjectFind, []string{"age"}, 1, false},
		{"findDistinctByTeamId", SubjectFind, []string{"teamId"}, 0, true},
		{"countByAge", SubjectCount, []string{"age"}, 0, false},
		{"existsByUsername", SubjectExists, []string{"username"}, 0, false},
		{"deleteByAgeLessThan", SubjectDelete, []string{"age", "LessThan"}, 0, false},
		{"removeByActiveFalse", SubjectDelete, []string{"active", "False"}, 0, false},
		{"findByUsernameIgnoreCase", SubjectFind, []string{"username", "IgnoreCase"}, 0, false},
		{"findByUsernameAndTeamIdAllIgnoreCase", SubjectFind, []string{"username", "IgnoreCase", "And", "teamId", "IgnoreCase"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			tokens, err := Tokenize(tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, tokens.Subject)
			assert.Equal(t, tt.predicate, tokens.Predicate)
			assert.Equal(t, tt.limit, tokens.Limit)
			assert.Equal(t, tt.distinct, tokens.Distinct)
		})
	}
}

func TestTokenizeOrderBy(t *testing.T) {
	tokens, err := Tokenize("findByAgeOrderByUsernameAscAgeDesc")
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, tokens.Predicate)
	assert.Equal(t, []types.Order{{Property: "username"}, {Property: "age", Desc: true}}, tokens.Orders)

	tokens, err = Tokenize("findAllOrderByAge")
	require.NoError(t, err)
	assert.Empty(t, tokens.Predicate)
	assert.Equal(t, []types.Order{{Property: "age"}}, tokens.Orders)
}

func TestTokenizeRejectsUnknownSubject(t *testing.T) {
	_, err := Tokenize("fetchByUsername")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidPredicate))
}

func TestParseMethod(t *testing.T) {
	tree, err := ParseMethod("findByUsernameAndAgeGreaterThan", member)
	require.NoError(t, err)
	assert.Equal(t, []Clause{
		{Field: "username", Operator: Equals, Conjunction: And},
		{Field: "age", Operator: GreaterThan, Conjunction: And},
	}, tree.Clauses)
	assert.Equal(t, 2, tree.Arity())
	assert.Equal(t, "find username EQUALS AND age GREATER_THAN", tree.String())
}

func TestParseMatchAll(t *testing.T) {
	for _, method := range []string{"findHelloBy", "findAll", "findBy"} {
		tree, err := ParseMethod(method, member)
		require.NoError(t, err, method)
		assert.Empty(t, tree.Clauses, method)
		assert.Equal(t, 0, tree.Arity(), method)
	}
}

func TestParseArity(t *testing.T) {
	tree, err := ParseMethod("findByAgeBetweenAndUsernameIsNotNullAndActiveTrue", member)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Arity())
	assert.Equal(t, Between, tree.Clauses[0].Operator)
	assert.Equal(t, IsNotNull, tree.Clauses[1].Operator)
	assert.Equal(t, True, tree.Clauses[2].Operator)
}

func TestParseGroups(t *testing.T) {
	tree, err := ParseMethod("findByUsernameAndAgeOrTeamIdOrActiveTrue", member)
	require.NoError(t, err)
	groups := tree.Groups()
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
	assert.Len(t, groups[2], 1)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		method string
		token  string
	}{
		{"findByNickname", "nickname"},
		{"findByUsernameAndNickname", "nickname"},
		{"findByAgeOrderByNickname", "nickname"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := ParseMethod(tt.method, member)
			var perr *types.InvalidPredicateError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.token, perr.Token)
			assert.Equal(t, tt.method, perr.Method)
		})
	}
}

func TestParseRejectsMalformedTokens(t *testing.T) {
	_, err := Parse("m", []string{"And", "age"}, member)
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)

	_, err = Parse("m", []string{"age", "And"}, member)
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)

	_, err = Parse("m", []string{"age", "Sideways", "username"}, member)
	var perr *types.InvalidPredicateError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unknown operator", perr.Reason)
}

func TestParseIsDeterministic(t *testing.T) {
	methods := []string{
		"findByUsernameAndAgeGreaterThan",
		"findByAgeBetweenOrUsernameStartingWithIgnoreCase",
		"findTop5ByTeamIdInOrderByAgeDesc",
		"countByActiveTrue",
	}
	for _, method := range methods {
		tokens, err := Tokenize(method)
		require.NoError(t, err)
		first, err := Parse(method, tokens.Predicate, member)
		require.NoError(t, err)
		second, err := Parse(method, tokens.Predicate, member)
		require.NoError(t, err)
		assert.Equal(t, first, second, method)
	}
}

func TestOperatorKeywordsLongestFirst(t *testing.T) {
	prop, kw := splitOperator("AgeGreaterThanEqual")
	assert.Equal(t, "Age", prop)
	assert.Equal(t, "GreaterThanEqual", kw)

	prop, kw = splitOperator("UsernameNotIn")
	assert.Equal(t, "Username", prop)
	assert.Equal(t, "NotIn", kw)

	op, ok := LookupKeyword("IsNotNull")
	assert.True(t, ok)
	assert.Equal(t, IsNotNull, op)
	assert.Equal(t, 0, op.Arity())
	assert.Equal(t, "IS_NOT_NULL", op.Name())
}
