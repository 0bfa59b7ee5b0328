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
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/plan"
)

type team struct {
	ID      int64
	Name    string
	Members []*member
}

type member struct {
	ID       int64
	Username string
	Age      int
	TeamID   *int64
	Team     *team
}

type memberDto struct {
	ID       int64
	Username string
	TeamName string
}

func testProvider() *metadata.Registry {
	return metadata.NewRegistry(
		&metadata.Entity{
			Name: "Member", Table: "members", Alias: "m", Type: reflect.TypeOf(member{}),
			Attributes: []metadata.Attribute{
				{Name: "id", Column: "id", GoField: "ID", PK: true},
				{Name: "username", Column: "username", GoField: "Username"},
				{Name: "age", Column: "age", GoField: "Age"},
				{Name: "teamId", Column: "team_id", GoField: "TeamID"},
			},
			Associations: []metadata.Association{
				{Name: "team", GoField: "Team", Target: "Team", LocalColumn: "team_id", TargetColumn: "id"},
			},
		},
		&metadata.Entity{
			Name: "Team", Table: "teams", Alias: "t", Type: reflect.TypeOf(team{}),
			Attributes: []metadata.Attribute{
				{Name: "id", Column: "id", GoField: "ID", PK: true},
				{Name: "name", Column: "name", GoField: "Name"},
			},
			Associations: []metadata.Association{
				{Name: "members", GoField: "Members", Target: "Member", LocalColumn: "id", TargetColumn: "team_id", ToMany: true},
			},
		},
	)
}

// fakeStorage records statements and answers queries from respond.
type fakeStorage struct {
	queries  []plan.Statement
	execs    []plan.Statement
	respond  func(query string) ([]map[string]interface{}, error)
	affected int64
	execErr  error
}

func (f *fakeStorage) Query(_ context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, plan.Statement{Text: query, Args: args})
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(query)
}

func (f *fakeStorage) Exec(_ context.Context, query string, args ...interface{}) (int64, error) {
	f.execs = append(f.execs, plan.Statement{Text: query, Args: args})
	if f.execErr != nil {
		return 0, f.execErr
	}
	return f.affected, nil
}

func (f *fakeStorage) Dialect() plan.Dialect { return plan.SQLite }

func (f *fakeStorage) calls() int { return len(f.queries) + len(f.execs) }

// countingUnitOfWork counts invalidations of a real identity map.
type countingUnitOfWork struct {
	UnitOfWork
	invalidated int
}

func (c *countingUnitOfWork) InvalidateAll() {
	c.invalidated++
	c.UnitOfWork.InvalidateAll()
}

func isCount(query string) bool { return strings.HasPrefix(query, "SELECT count(") }

func memberRows(from, to int) []map[string]interface{} {
	var rows []map[string]interface{}
	for i := from; i <= to; i++ {
		rows = append(rows, map[string]interface{}{
			"id":       int64(i),
			"username": []byte(fmt.Sprintf("member%d", i)),
			"age":      int64(10 + i),
			"team_id":  nil,
		})
	}
	return rows
}

func newEngine(t *testing.T, storage *fakeStorage) (*Engine, *countingUnitOfWork) {
	uow, err := NewUnitOfWork(64)
	require.NoError(t, err)
	counting := &countingUnitOfWork{UnitOfWork: uow}
	dtos := NewDtoRegistry()
	RegisterStruct[memberDto](dtos)
	e, err := New(testProvider(), storage, WithUnitOfWork(counting), WithDtoRegistry(dtos))
	require.NoError(t, err)
	return e, counting
}
