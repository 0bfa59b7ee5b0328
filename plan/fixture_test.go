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

import "github.com/tomoncle/querykit/metadata"

// schema: Member -> Team -> League, Team -> []Member
func testProvider() *metadata.Registry {
	return metadata.NewRegistry(
		&metadata.Entity{
			Name: "Member", Table: "members", Alias: "m",
			Attributes: []metadata.Attribute{
				{Name: "id", Column: "id", PK: true},
				{Name: "username", Column: "username"},
				{Name: "age", Column: "age"},
				{Name: "teamId", Column: "team_id"},
			},
			Associations: []metadata.Association{
				{Name: "team", Target: "Team", LocalColumn: "team_id", TargetColumn: "id"},
			},
		},
		&metadata.Entity{
			Name: "Team", Table: "teams", Alias: "t",
			Attributes: []metadata.Attribute{
				{Name: "id", Column: "id", PK: true},
				{Name: "name", Column: "name"},
				{Name: "leagueId", Column: "league_id"},
			},
			Associations: []metadata.Association{
				{Name: "league", Target: "League", LocalColumn: "league_id", TargetColumn: "id"},
				{Name: "members", Target: "Member", LocalColumn: "id", TargetColumn: "team_id", ToMany: true},
			},
		},
		&metadata.Entity{
			Name: "League", Table: "leagues", Alias: "l",
			Attributes: []metadata.Attribute{
				{Name: "id", Column: "id", PK: true},
				{Name: "name", Column: "name"},
			},
		},
	)
}

type projections map[string]bool

func (p projections) Has(name string) bool { return p[name] }
