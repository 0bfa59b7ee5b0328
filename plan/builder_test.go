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

package plan

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/types"
)

func member() *Builder { return NewBuilder("Member", testProvider()) }

func TestBuildDerivedDefaults(t *testing.T) {
	p, err := member().Method("findByUsernameAndAgeGreaterThan").Args("kim", 10).Build()
	require.NoError(t, err)
	assert.False(t, p.Literal())
	assert.Equal(t, types.ResultList, p.Result())
	assert.Equal(t, types.LockNone, p.LockMode())
	assert.False(t, p.Modifying())
	assert.Nil(t, p.PageRequest())
	assert.False(t, p.NeedsTotalCount())

	p, err = member().Method("countByAge").Args(10).Build()
	require.NoError(t, err)
	assert.Equal(t, types.ResultCount, p.Result())

	p, err = member().Method("existsByUsername").Args("kim").Build()
	require.NoError(t, err)
	assert.Equal(t, types.ResultExists, p.Result())

	p, err = member().Method("deleteByAgeLessThan").Args(3).Modifying(true).Build()
	require.NoError(t, err)
	assert.Equal(t, types.ResultAffected, p.Result())
	assert.True(t, p.ClearAfterModify())
}

func TestBuildPageDefaults(t *testing.T) {
	p, err := member().Method("findByAge").Args(10).Result(types.ResultPage).Build()
	require.NoError(t, err)
	require.NotNil(t, p.PageRequest())
	assert.Equal(t, 0, p.PageRequest().GetPage())
	assert.Equal(t, types.DefaultPageSize, p.PageRequest().GetPageSize())
	assert.True(t, p.NeedsTotalCount())

	p, err = member().Method("findByAge").Args(10).Page(types.NewPageRequest(2, 10)).Build()
	require.NoError(t, err)
	assert.Equal(t, types.ResultPage, p.Result())
	assert.Equal(t, 20, p.PageRequest().Offset())
}

func TestBuildLockWithModifyingConflicts(t *testing.T) {
	_, err := member().
		Literal("update members set age = age + 1 where age >= :age").
		Params("age").Args(20).
		Modifying(true).
		Lock(types.LockPessimisticWrite).
		Build()
	var conflict *types.ConflictingDirectiveError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "modifying", conflict.Second)
	assert.True(t, IsBuildError(err))
}

func TestBuildAggregatesErrors(t *testing.T) {
	_, err := member().
		Literal("update members set age = age + 1 where age >= :age").
		Params("age").Args(20).
		Modifying(true).
		Lock(types.LockPessimisticWrite).
		Fetch("team").
		Page(types.NewDefaultPageRequest(0, 10)).
		Build()
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 3)
	assert.True(t, errors.Is(err, types.ErrConflictingDirective))
}

func TestBuildRejectsUnmarkedStatements(t *testing.T) {
	_, err := member().Literal("update members set age = 0").Build()
	assert.ErrorIs(t, err, types.ErrConflictingDirective)

	_, err = member().Literal("select m.* from members m").Modifying(false).Build()
	assert.ErrorIs(t, err, types.ErrConflictingDirective)

	_, err = member().Method("findByAge").Args(1).ReadOnly(true).Modifying(false).Build()
	assert.ErrorIs(t, err, types.ErrConflictingDirective)
}

func TestBuildPagingWithToManyFetchConflicts(t *testing.T) {
	_, err := NewBuilder("Team", testProvider()).
		Method("findAll").
		Fetch("members").
		Page(types.NewDefaultPageRequest(0, 10)).
		Build()
	assert.ErrorIs(t, err, types.ErrConflictingDirective)
}

func TestBuildUnboundParameters(t *testing.T) {
	_, err := member().
		Literal("select m.* from members m where m.username = :username and m.age = :age").
		Params("username").Args("kim").
		Build()
	var unbound *types.UnboundParameterError
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, []string{"age"}, unbound.Names)

	_, err = member().
		Literal("select m.* from members m where m.username = :username and m.age = :age").
		Bind("username", "kim").Bind("age", 3).
		Build()
	assert.NoError(t, err)
}

func TestValidateChecksDeclaredParams(t *testing.T) {
	b := member().
		Literal("select m.* from members m where m.username = :username and m.age = :age").
		Params("username", "age")
	assert.NoError(t, b.Validate())

	b = member().
		Literal("select m.* from members m where m.username = :username and m.age = :age").
		Params("username")
	assert.ErrorIs(t, b.Validate(), types.ErrUnboundParameter)

	assert.NoError(t, member().Method("findByUsername").Validate())
}

func TestBuildArgumentCount(t *testing.T) {
	_, err := member().Method("findByAgeBetween").Args(1).Build()
	var perr *types.InvalidPredicateError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "expects 2 arguments")

	_, err = member().Literal("select m.* from members m").Params().Args(1).Build()
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)
}

func TestBuildUnknownSortProperty(t *testing.T) {
	_, err := member().Method("findByAge").Args(1).Page(types.NewPageRequest(0, 10, "nickname DESC")).Build()
	var perr *types.InvalidPredicateError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nickname", perr.Token)
}

func TestBuildFetchUnion(t *testing.T) {
	p, err := member().
		Literal("select m.* from members m left join fetch m.team").
		Fetch("team", "team.league").
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"team", "team.league"}, p.FetchPaths())
	require.Len(t, p.Joins(), 2)
}

func TestBuildFetchOwnerMustBeRoot(t *testing.T) {
	_, err := member().Literal("select m.* from members m left join fetch x.team").Build()
	assert.ErrorIs(t, err, types.ErrInvalidFetchPath)
}

func TestBuildProjection(t *testing.T) {
	registered := projections{"MemberDto": true}
	p, err := member().
		Literal("select new MemberDto(m.id, m.username) from members m").
		Projections(registered).
		Build()
	require.NoError(t, err)
	assert.Equal(t, types.ResultDtos, p.Result())
	assert.Equal(t, "MemberDto", p.Projection().TypeName)

	_, err = member().
		Literal("select new GhostDto(m.id) from members m").
		Projections(registered).
		Build()
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)

	_, err = member().
		Method("findByAge").Args(1).
		Project(&DtoSpec{TypeName: "MemberDto", Fields: []string{"id", "nickname"}}).
		Projections(registered).
		Build()
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)
}

func TestBuildUnknownEntity(t *testing.T) {
	_, err := NewBuilder("Ghost", testProvider()).Method("findAll").Build()
	assert.Error(t, err)
}

func TestBuildNeedsExactlyOneSource(t *testing.T) {
	_, err := member().Build()
	assert.Error(t, err)

	_, err = member().Method("findAll").Literal("select m.* from members m").Build()
	assert.Error(t, err)
}

func TestPlanString(t *testing.T) {
	p, err := member().Method("findByUsername").Args("kim").Lock(types.LockPessimisticWrite).Fetch("team").Build()
	require.NoError(t, err)
	assert.Equal(t, "LIST Member [find username EQUALS] fetch=team lock=PESSIMISTIC_WRITE", p.String())
}
