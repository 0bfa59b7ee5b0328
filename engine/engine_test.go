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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/types"
)

func pageStorage(total int64, content []map[string]interface{}) *fakeStorage {
	return &fakeStorage{respond: func(q string) ([]map[string]interface{}, error) {
		if isCount(q) {
			return []map[string]interface{}{{"count(*)": total}}, nil
		}
		return content, nil
	}}
}

func runPage(t *testing.T, s *fakeStorage, page int) *Result {
	e, _ := newEngine(t, s)
	b, err := e.Derive("Member", "findByAge")
	require.NoError(t, err)
	res, err := e.Run(context.Background(), b.Args(10).Page(types.NewPageRequest(page, 10, "username DESC")))
	require.NoError(t, err)
	return res
}

func TestPageFirst(t *testing.T) {
	s := pageStorage(25, memberRows(1, 10))
	res := runPage(t, s, 0)

	require.Len(t, s.queries, 2)
	assert.True(t, isCount(s.queries[0].Text))
	assert.Contains(t, s.queries[1].Text, `ORDER BY "m"."username" DESC LIMIT 10`)
	assert.Equal(t, types.ResultPage, res.Kind)
	assert.Equal(t, int64(25), res.Total)
	assert.Len(t, res.Entities, 10)
	assert.True(t, res.HasNext)
}

func TestPageLast(t *testing.T) {
	s := pageStorage(25, memberRows(21, 25))
	res := runPage(t, s, 2)

	require.Len(t, s.queries, 2)
	assert.Contains(t, s.queries[1].Text, "LIMIT 10 OFFSET 20")
	assert.Len(t, res.Entities, 5)
	assert.False(t, res.HasNext)
}

func TestPagePastTheEndSkipsContent(t *testing.T) {
	s := pageStorage(25, memberRows(1, 10))
	res := runPage(t, s, 3)

	assert.Len(t, s.queries, 1)
	assert.Empty(t, res.Entities)
	assert.Equal(t, int64(25), res.Total)
	assert.Equal(t, 3, res.Page)

	s = pageStorage(0, nil)
	res = runPage(t, s, 0)
	assert.Len(t, s.queries, 1)
	assert.Zero(t, res.Total)
}

func TestPageSizeIsCapped(t *testing.T) {
	s := pageStorage(25, memberRows(1, 5))
	e, _ := newEngine(t, s)
	e.config.MaxPageSize = 5
	b, err := e.Derive("Member", "findByAge")
	require.NoError(t, err)
	res, err := e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(1, 50)))
	require.NoError(t, err)
	assert.Equal(t, 5, res.PageSize)
	assert.Contains(t, s.queries[1].Text, "LIMIT 5 OFFSET 5")
}

func TestSliceReadsOneExtraRow(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 11), nil }}
	e, _ := newEngine(t, s)
	b, _ := e.Derive("Member", "findByAge")
	res, err := e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(0, 10)).Result(types.ResultSlice))
	require.NoError(t, err)
	require.Len(t, s.queries, 1)
	assert.Contains(t, s.queries[0].Text, "LIMIT 11")
	assert.Len(t, res.Entities, 10)
	assert.True(t, res.HasNext)

	s.respond = func(string) ([]map[string]interface{}, error) { return memberRows(1, 10), nil }
	res, err = e.Run(context.Background(), e.Query("Member").Method("findByAge").Args(10).
		Page(types.NewDefaultPageRequest(0, 10)).Result(types.ResultSlice))
	require.NoError(t, err)
	assert.Len(t, res.Entities, 10)
	assert.False(t, res.HasNext)
}

func bulkAgePlus(e *Engine, clear bool) (*Result, error) {
	return e.Run(context.Background(), e.Query("Member").
		Literal("update members set age = age + 1 where age >= :age").
		Params("age").Args(20).
		Modifying(clear))
}

func TestMutationClearsOnceAfterSuccess(t *testing.T) {
	s := &fakeStorage{affected: 3}
	e, uow := newEngine(t, s)
	res, err := bulkAgePlus(e, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Affected)
	assert.Equal(t, 1, uow.invalidated)
	require.Len(t, s.execs, 1)
	assert.Equal(t, "update members set age = age + 1 where age >= ?", s.execs[0].Text)
	assert.Equal(t, []interface{}{20}, s.execs[0].Args)

	_, err = bulkAgePlus(e, false)
	require.NoError(t, err)
	assert.Equal(t, 1, uow.invalidated)
}

func TestMutationFailureKeepsUnitOfWork(t *testing.T) {
	boom := &types.StorageError{Err: errors.New("disk full")}
	s := &fakeStorage{execErr: boom}
	e, uow := newEngine(t, s)
	_, err := bulkAgePlus(e, true)
	assert.ErrorIs(t, err, types.ErrStorage)
	assert.Zero(t, uow.invalidated)
}

func TestDerivedDelete(t *testing.T) {
	s := &fakeStorage{affected: 2}
	e, uow := newEngine(t, s)
	b, err := e.Derive("Member", "deleteByAgeLessThan")
	require.NoError(t, err)
	res, err := e.Run(context.Background(), b.Args(18).Modifying(true))
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Affected)
	assert.Equal(t, `DELETE FROM "members" WHERE "age" < ?`, s.execs[0].Text)
	assert.Equal(t, 1, uow.invalidated)
}

func TestConflictsFailBeforeStorage(t *testing.T) {
	s := &fakeStorage{affected: 1}
	e, _ := newEngine(t, s)
	_, err := e.Run(context.Background(), e.Query("Member").
		Literal("update members set age = age + 1 where age >= :age").
		Params("age").Args(20).
		Modifying(true).
		Lock(types.LockPessimisticWrite))
	assert.ErrorIs(t, err, types.ErrConflictingDirective)
	assert.Zero(t, s.calls())
}

func TestReadOnlyResultsAreNotTracked(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 3), nil }}
	e, uow := newEngine(t, s)
	b, _ := e.Derive("Member", "findReadOnlyByUsername")
	res, err := e.Run(context.Background(), b.Args("member1").ReadOnly(true))
	require.NoError(t, err)
	assert.Len(t, res.Entities, 3)
	assert.Zero(t, uow.Len())

	b, _ = e.Derive("Member", "findByUsername")
	_, err = e.Run(context.Background(), b.Args("member1"))
	require.NoError(t, err)
	assert.Equal(t, 3, uow.Len())
}

func TestIdentityMap(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 1), nil }}
	e, uow := newEngine(t, s)
	find := func() *member {
		b, _ := e.Derive("Member", "findMemberByUsername")
		res, err := e.Run(context.Background(), b.Args("member1").Result(types.ResultOne))
		require.NoError(t, err)
		require.Len(t, res.Entities, 1)
		return res.Entities[0].(*member)
	}
	first := find()
	first.Age = 99
	assert.Same(t, first, find())
	assert.Equal(t, 99, find().Age)

	uow.InvalidateAll()
	fresh := find()
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 11, fresh.Age)
}

func TestFailedMaterializationEvictsRegistrations(t *testing.T) {
	rows := memberRows(1, 2)
	rows[1]["age"] = "not a number"
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return rows, nil }}
	e, uow := newEngine(t, s)
	_, err := e.Run(context.Background(), e.Query("Member").Method("findAll"))
	assert.Error(t, err)
	assert.Zero(t, uow.Len())
}

func TestFetchToOneSharesInstances(t *testing.T) {
	rows := memberRows(1, 3)
	for _, row := range rows[:2] {
		row["team_id"] = int64(7)
		row["team__id"] = int64(7)
		row["team__name"] = "teamA"
	}
	rows[2]["team__id"] = nil
	rows[2]["team__name"] = nil
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return rows, nil }}
	e, _ := newEngine(t, s)
	res, err := e.Run(context.Background(), e.Query("Member").
		Literal("select m.* from members m left join fetch m.team"))
	require.NoError(t, err)
	assert.Contains(t, s.queries[0].Text, "LEFT JOIN teams AS team ON team.id = m.team_id")

	require.Len(t, res.Entities, 3)
	a, b, c := res.Entities[0].(*member), res.Entities[1].(*member), res.Entities[2].(*member)
	require.NotNil(t, a.Team)
	assert.Equal(t, "teamA", a.Team.Name)
	assert.Same(t, a.Team, b.Team)
	assert.Equal(t, int64(7), *a.TeamID)
	assert.Nil(t, c.Team)
	assert.Nil(t, c.TeamID)
}

func TestFetchToManyCollapsesRoots(t *testing.T) {
	rows := []map[string]interface{}{
		{"id": int64(1), "name": "teamA", "members__id": int64(1), "members__username": "kim", "members__age": int64(10), "members__team_id": int64(1)},
		{"id": int64(1), "name": "teamA", "members__id": int64(2), "members__username": "lee", "members__age": int64(20), "members__team_id": int64(1)},
		{"id": int64(2), "name": "teamB", "members__id": nil, "members__username": nil, "members__age": nil, "members__team_id": nil},
	}
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return rows, nil }}
	e, _ := newEngine(t, s)
	res, err := e.Run(context.Background(), e.Query("Team").Method("findAll").Fetch("members"))
	require.NoError(t, err)

	require.Len(t, res.Entities, 2)
	a, b := res.Entities[0].(*team), res.Entities[1].(*team)
	require.Len(t, a.Members, 2)
	assert.Equal(t, "kim", a.Members[0].Username)
	assert.Equal(t, "lee", a.Members[1].Username)
	assert.NotNil(t, b.Members)
	assert.Empty(t, b.Members)
}

func TestOneRejectsManyRows(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 2), nil }}
	e, _ := newEngine(t, s)
	b, _ := e.Derive("Member", "findMemberByUsername")
	_, err := e.Run(context.Background(), b.Args("member1").Result(types.ResultOne))
	assert.ErrorIs(t, err, types.ErrNotUnique)

	s.respond = func(string) ([]map[string]interface{}, error) { return nil, nil }
	res, err := e.Run(context.Background(), b.Args("nobody").Result(types.ResultOptional))
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestCountAndExists(t *testing.T) {
	s := &fakeStorage{respond: func(q string) ([]map[string]interface{}, error) {
		if isCount(q) {
			return []map[string]interface{}{{"count(*)": []byte("4")}}, nil
		}
		return []map[string]interface{}{{"1": int64(1)}}, nil
	}}
	e, _ := newEngine(t, s)
	b, _ := e.Derive("Member", "countByAge")
	res, err := e.Run(context.Background(), b.Args(10))
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Total)

	b, _ = e.Derive("Member", "existsByUsername")
	res, err = e.Run(context.Background(), b.Args("kim"))
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, `SELECT 1 FROM "members" AS "m" WHERE "m"."username" = ? LIMIT 1`, s.queries[1].Text)
}

func TestProjectionsAndScalars(t *testing.T) {
	s := &fakeStorage{respond: func(q string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"dto_0": int64(1), "dto_1": []byte("kim"), "dto_2": "teamA"}}, nil
	}}
	e, _ := newEngine(t, s)
	res, err := e.Run(context.Background(), e.Query("Member").
		Literal("select new study.datajpa.dto.memberDto(m.id, m.username, t.name) from members m join teams t on t.id = m.team_id"))
	require.NoError(t, err)
	assert.Equal(t, types.ResultDtos, res.Kind)
	assert.Equal(t, []interface{}{&memberDto{ID: 1, Username: "kim", TeamName: "teamA"}}, res.Values)

	s.respond = func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"username": []byte("kim")}, {"username": "lee"}}, nil
	}
	res, err = e.Run(context.Background(), e.Query("Member").
		Literal("select m.username from members m").Result(types.ResultScalars))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"kim", "lee"}, res.Values)
}

func TestUnknownProjectionRejected(t *testing.T) {
	s := &fakeStorage{}
	e, _ := newEngine(t, s)
	_, err := e.Run(context.Background(), e.Query("Member").Literal("select new GhostDto(m.id) from members m"))
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)
	assert.Zero(t, s.calls())
}

func TestParseMethodIsCached(t *testing.T) {
	e, _ := newEngine(t, &fakeStorage{})
	a, err := e.ParseMethod("Member", "findByUsernameAndAgeGreaterThan")
	require.NoError(t, err)
	b, err := e.ParseMethod("Member", "findByUsernameAndAgeGreaterThan")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = e.ParseMethod("Member", "findByNickname")
	assert.ErrorIs(t, err, types.ErrInvalidPredicate)
}

func TestExplainPage(t *testing.T) {
	e, _ := newEngine(t, &fakeStorage{})
	b, _ := e.Derive("Member", "findByAge")
	p, err := b.Args(10).Page(types.NewDefaultPageRequest(1, 10)).Build()
	require.NoError(t, err)
	stmts := e.Explain(p)
	require.Len(t, stmts, 2)
	assert.Equal(t, `SELECT count(*) FROM "members" AS "m" WHERE "m"."age" = ?`, stmts[0].Text)
	assert.Contains(t, stmts[1].Text, "LIMIT 10 OFFSET 10")
}

func TestPageStopsAtTopLimit(t *testing.T) {
	s := pageStorage(25, memberRows(11, 13))
	e, _ := newEngine(t, s)
	b, err := e.Derive("Member", "findTop13ByAge")
	require.NoError(t, err)
	res, err := e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(1, 10)))
	require.NoError(t, err)
	require.Len(t, s.queries, 2)
	assert.Contains(t, s.queries[1].Text, "LIMIT 3 OFFSET 10")
	assert.Equal(t, int64(13), res.Total)
	assert.Len(t, res.Entities, 3)
	assert.False(t, res.HasNext)

	s = pageStorage(25, memberRows(1, 10))
	e, _ = newEngine(t, s)
	b, _ = e.Derive("Member", "findTop13ByAge")
	res, err = e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(2, 10)))
	require.NoError(t, err)
	assert.Len(t, s.queries, 1)
	assert.Equal(t, int64(13), res.Total)
	assert.Empty(t, res.Entities)
}

func TestSliceStopsAtTopLimit(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(3, 3), nil }}
	e, _ := newEngine(t, s)
	b, err := e.Derive("Member", "findTop3ByAge")
	require.NoError(t, err)
	res, err := e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(1, 2)).Result(types.ResultSlice))
	require.NoError(t, err)
	require.Len(t, s.queries, 1)
	assert.Contains(t, s.queries[0].Text, "LIMIT 1 OFFSET 2")
	assert.Len(t, res.Entities, 1)
	assert.False(t, res.HasNext)

	b, _ = e.Derive("Member", "findTop3ByAge")
	res, err = e.Run(context.Background(), b.Args(10).Page(types.NewDefaultPageRequest(2, 2)).Result(types.ResultSlice))
	require.NoError(t, err)
	assert.Len(t, s.queries, 1)
	assert.Empty(t, res.Entities)
	assert.False(t, res.HasNext)
}

func TestScopedEngineTracksApart(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 1), nil }}
	e, uow := newEngine(t, s)
	scoped, err := e.WithStorage(s)
	require.NoError(t, err)

	b, _ := scoped.Derive("Member", "findByUsername")
	res, err := scoped.Run(context.Background(), b.Args("member1"))
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 1, scoped.UnitOfWork().Len())
	assert.Zero(t, uow.Len())

	b, _ = e.Derive("Member", "findByUsername")
	shared, err := e.Run(context.Background(), b.Args("member1"))
	require.NoError(t, err)
	assert.NotSame(t, res.Entities[0], shared.Entities[0])
	assert.Equal(t, 1, uow.Len())
}

func TestEvictTrackedInstances(t *testing.T) {
	s := &fakeStorage{respond: func(string) ([]map[string]interface{}, error) { return memberRows(1, 2), nil }}
	e, uow := newEngine(t, s)
	load := func() []interface{} {
		b, _ := e.Derive("Member", "findByAge")
		res, err := e.Run(context.Background(), b.Args(11))
		require.NoError(t, err)
		return res.Entities
	}
	first := load()
	require.Equal(t, 2, uow.Len())

	require.NoError(t, e.EvictInstances("Member", &member{ID: 1}))
	assert.Equal(t, 1, uow.Len())
	require.NoError(t, e.Evict("Member", int64(2)))
	assert.Zero(t, uow.Len())

	again := load()
	assert.NotSame(t, first[0], again[0])
	assert.NotSame(t, first[1], again[1])

	assert.Error(t, e.EvictInstances("Member", "not an entity"))
	assert.Error(t, e.Evict("Nobody", 1))
}
