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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/types"
)

func paths(ps ...string) []FetchPath {
	out := make([]FetchPath, len(ps))
	for i, p := range ps {
		out[i] = FetchPath{Path: p}
	}
	return out
}

func joinPaths(joins []Join) []string {
	out := make([]string, len(joins))
	for i, j := range joins {
		out[i] = j.Path + "@" + j.Alias + "<" + j.ParentAlias
	}
	return out
}

func TestResolveFetchGraphReusesPrefixes(t *testing.T) {
	provider := testProvider()
	root, _ := provider.Entity("Member")

	joins, err := ResolveFetchGraph(root, provider, paths("team.league", "team"))
	require.NoError(t, err)
	assert.Equal(t, []string{"team@team<", "team.league@team__league<team"}, joinPaths(joins))
	assert.Equal(t, "teams", joins[0].Target.Table)
	assert.Equal(t, "leagues", joins[1].Target.Table)
	assert.False(t, HasToMany(joins))
}

func TestResolveFetchGraphOrderIsStable(t *testing.T) {
	provider := testProvider()
	root, _ := provider.Entity("Member")

	want, err := ResolveFetchGraph(root, provider, paths("team", "team.league"))
	require.NoError(t, err)
	for _, in := range [][]string{
		{"team", "team.league", "team"},
		{"team", "team", "team.league", "team.league"},
		{"team", "team.league."},
	} {
		got, err := ResolveFetchGraph(root, provider, paths(in...))
		require.NoError(t, err)
		assert.Equal(t, joinPaths(want), joinPaths(got), in)
	}
}

func TestResolveFetchGraphRejectsCycles(t *testing.T) {
	provider := testProvider()
	root, _ := provider.Entity("Member")

	_, err := ResolveFetchGraph(root, provider, paths("team.members"))
	var cyc *types.CyclicFetchPathError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, "team.members", cyc.Path)
	assert.Equal(t, "Member", cyc.Entity)
	assert.ErrorIs(t, err, types.ErrCyclicFetchPath)
}

func TestResolveFetchGraphRejectsUnknownAssociations(t *testing.T) {
	provider := testProvider()
	root, _ := provider.Entity("Member")

	_, err := ResolveFetchGraph(root, provider, paths("team.coach"))
	var inv *types.InvalidFetchPathError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "coach", inv.Segment)
	assert.Equal(t, "Team", inv.Entity)
}

func TestResolveFetchGraphExplicitAlias(t *testing.T) {
	provider := testProvider()
	root, _ := provider.Entity("Team")

	joins, err := ResolveFetchGraph(root, provider, []FetchPath{{Path: "members", Alias: "mm", Inner: true}})
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "mm", joins[0].Alias)
	assert.True(t, joins[0].Inner)
	assert.True(t, HasToMany(joins))
}
