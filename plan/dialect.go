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

	"github.com/uptrace/bun/dialect"
)

// Dialect carries the few rendering differences between storage engines.
// Bound parameters are always written as "?"; bun rewrites them for the
// driver.
type Dialect struct {
	Name       dialect.Name
	QuoteChar  byte
	LockClause string
	// LockOf appends "OF <root alias>" to the lock clause so outer joined
	// rows are not locked.
	LockOf bool
}

var (
	Postgres = Dialect{Name: dialect.PG, QuoteChar: '"', LockClause: "FOR UPDATE", LockOf: true}
	MySQL    = Dialect{Name: dialect.MySQL, QuoteChar: '`', LockClause: "FOR UPDATE"}
	// SQLite has no row locks; a write transaction locks the database.
	SQLite = Dialect{Name: dialect.SQLite, QuoteChar: '"'}
)

// DialectOf returns the preset for a bun dialect name, defaulting to
// Postgres.
func DialectOf(name dialect.Name) Dialect {
	switch name {
	case dialect.MySQL:
		return MySQL
	case dialect.SQLite:
		return SQLite
	default:
		return Postgres
	}
}

// Quote quotes an identifier, doubling embedded quote characters.
func (d Dialect) Quote(ident string) string {
	q := string(d.QuoteChar)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// Column renders a qualified column reference, or a bare one when alias
// is empty.
func (d Dialect) Column(alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return d.Quote(alias) + "." + d.Quote(column)
}

func (d Dialect) lock(alias string) string {
	if d.LockClause == "" {
		return ""
	}
	if d.LockOf && alias != "" {
		return " " + d.LockClause + " OF " + alias
	}
	return " " + d.LockClause
}
