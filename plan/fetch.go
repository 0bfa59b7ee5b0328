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
	"strings"

	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/types"
)

// Join is one resolved fetch join. ParentAlias is empty for joins hanging
// off the root entity.
type Join struct {
	Path        string
	Alias       string
	ParentAlias string
	Inner       bool
	Association metadata.Association
	Target      *metadata.Entity
}

// FetchPath is a requested attribute path with an optional explicit
// alias and join type, as written in a literal "JOIN FETCH m.team t".
type FetchPath struct {
	Path  string
	Alias string
	Inner bool
}

// ResolveFetchGraph expands attribute paths into join clauses. Joins are
// ordered by the first declaration of each path prefix, and a prefix that
// was already joined is reused, so "team.league" followed by "team"
// yields exactly two joins.
func ResolveFetchGraph(root *metadata.Entity, provider metadata.Provider, paths []FetchPath) ([]Join, error) {
	var joins []Join
	byPath := make(map[string]int)
	for _, fp := range paths {
		path := strings.Trim(strings.TrimSpace(fp.Path), ".")
		if path == "" {
			continue
		}
		segments := strings.Split(path, ".")
		cur := root
		visited := map[string]bool{root.Name: true}
		parentAlias := ""
		prefix := ""
		for i, seg := range segments {
			if prefix == "" {
				prefix = seg
			} else {
				prefix += "." + seg
			}
			assoc, ok := cur.Association(seg)
			if !ok {
				return nil, &types.InvalidFetchPathError{Path: path, Segment: seg, Entity: cur.Name}
			}
			target, err := provider.Entity(assoc.Target)
			if err != nil {
				return nil, &types.InvalidFetchPathError{Path: path, Segment: seg, Entity: cur.Name}
			}
			if visited[target.Name] {
				return nil, &types.CyclicFetchPathError{Path: path, Entity: target.Name}
			}
			visited[target.Name] = true

			if idx, ok := byPath[prefix]; ok {
				parentAlias = joins[idx].Alias
				cur = target
				continue
			}
			alias := strings.ReplaceAll(prefix, ".", "__")
			if i == len(segments)-1 && fp.Alias != "" {
				alias = fp.Alias
			}
			joins = append(joins, Join{
				Path:        prefix,
				Alias:       alias,
				ParentAlias: parentAlias,
				Inner:       fp.Inner && i == len(segments)-1,
				Association: assoc,
				Target:      target,
			})
			byPath[prefix] = len(joins) - 1
			parentAlias = alias
			cur = target
		}
	}
	return joins, nil
}

// HasToMany reports whether any join fans out the root rows.
func HasToMany(joins []Join) bool {
	for _, j := range joins {
		if j.Association.ToMany {
			return true
		}
	}
	return false
}
