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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/predicate"
	"github.com/tomoncle/querykit/types"
)

// Statement is rendered query text with its bound arguments in order.
type Statement struct {
	Text string
	Args []interface{}
}

func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.Text
	}
	return fmt.Sprintf("%s %v", s.Text, s.Args)
}

// Window restricts a select. A zero Limit means unbounded; None selects no
// rows at all.
type Window struct {
	Offset int
	Limit  int
	None   bool
}

// clamp fits w inside the first top rows of a result.
func (w Window) clamp(top int) Window {
	if top <= 0 || w.None {
		return w
	}
	remaining := top - w.Offset
	if remaining <= 0 {
		return Window{None: true}
	}
	if w.Limit == 0 || remaining < w.Limit {
		w.Limit = remaining
	}
	return w
}

// JoinColumn is the result column name of a fetched association column:
// "team__name" for column "name" of path "team".
func JoinColumn(path, column string) string {
	return strings.ReplaceAll(path, ".", "__") + "__" + column
}

// SelectStatement renders the content query.
func (p *QueryPlan) SelectStatement(d Dialect, w Window) Statement {
	w = w.clamp(p.MaxResults())
	if p.template != nil {
		return p.literalSelect(d, w)
	}
	r := &renderer{d: d, entity: p.entity, alias: p.entity.Alias}
	r.WriteString("SELECT ")
	if p.tree.Distinct {
		r.WriteString("DISTINCT ")
	}
	r.WriteString(strings.Join(p.selectList(d), ", "))
	r.from(p)
	for _, j := range p.joins {
		r.WriteString(p.joinClause(d, j, d.Quote(p.entity.Alias), true))
	}
	r.where(p.tree, p.args)
	orders := append(append([]types.Order(nil), p.tree.Orders...), p.orders...)
	if len(orders) > 0 {
		r.WriteString(" ORDER BY ")
		r.WriteString(strings.Join(p.orderList(d, orders, d.Quote(p.entity.Alias)), ", "))
	}
	r.WriteString(d.window(w))
	if p.lock == types.LockPessimisticWrite {
		r.WriteString(d.lock(d.Quote(p.entity.Alias)))
	}
	return r.statement()
}

// CountStatement renders the total-count query of a Page: same predicate,
// no fetch joins and no ordering.
func (p *QueryPlan) CountStatement(d Dialect) Statement {
	if p.template != nil {
		var b strings.Builder
		b.WriteString("SELECT count(*) FROM (")
		text, args := p.literalText(0, p.template.unorderedEnd(), nil)
		b.WriteString(strings.TrimSpace(text))
		b.WriteString(") AS q")
		return Statement{Text: b.String(), Args: args}
	}
	r := &renderer{d: d, entity: p.entity, alias: p.entity.Alias}
	if pk, ok := p.entity.PrimaryKey(); ok && p.tree.Distinct {
		r.WriteString("SELECT count(DISTINCT " + d.Column(p.entity.Alias, pk.Column) + ")")
	} else {
		r.WriteString("SELECT count(*)")
	}
	r.from(p)
	r.where(p.tree, p.args)
	return r.statement()
}

// ExistsStatement renders a query returning at most one row when any row
// matches.
func (p *QueryPlan) ExistsStatement(d Dialect) Statement {
	if p.template != nil {
		text, args := p.literalText(0, p.template.unorderedEnd(), nil)
		return Statement{Text: "SELECT 1 FROM (" + strings.TrimSpace(text) + ") AS q LIMIT 1", Args: args}
	}
	r := &renderer{d: d, entity: p.entity, alias: p.entity.Alias}
	r.WriteString("SELECT 1")
	r.from(p)
	r.where(p.tree, p.args)
	r.WriteString(" LIMIT 1")
	return r.statement()
}

// MutationStatement renders a bulk UPDATE or DELETE.
func (p *QueryPlan) MutationStatement(d Dialect) Statement {
	if p.template != nil {
		text, args := p.literalText(0, len(p.template.Text), nil)
		return Statement{Text: text, Args: args}
	}
	r := &renderer{d: d, entity: p.entity}
	r.WriteString("DELETE FROM " + d.Quote(p.entity.Table))
	r.where(p.tree, p.args)
	return r.statement()
}

func (p *QueryPlan) selectList(d Dialect) []string {
	alias := p.entity.Alias
	if p.projection != nil {
		cols := make([]string, len(p.projection.Fields))
		for i, f := range p.projection.Fields {
			attr, _ := p.entity.Attribute(f)
			cols[i] = d.Column(alias, attr.Column) + " AS " + DtoColumn(i)
		}
		return cols
	}
	var cols []string
	for _, c := range p.entity.Columns() {
		cols = append(cols, d.Column(alias, c))
	}
	return append(cols, p.joinColumns(d, true)...)
}

func (p *QueryPlan) joinColumns(d Dialect, quote bool) []string {
	var cols []string
	for _, j := range p.joins {
		for _, c := range j.Target.Columns() {
			if quote {
				cols = append(cols, d.Column(j.Alias, c)+" AS "+d.Quote(JoinColumn(j.Path, c)))
			} else {
				cols = append(cols, j.Alias+"."+c+" AS "+JoinColumn(j.Path, c))
			}
		}
	}
	return cols
}

func (p *QueryPlan) joinClause(d Dialect, j Join, rootAlias string, quote bool) string {
	kind := " LEFT JOIN "
	if j.Inner {
		kind = " INNER JOIN "
	}
	if !quote {
		parent := rootAlias
		if j.ParentAlias != "" {
			parent = j.ParentAlias
		}
		return fmt.Sprintf("%s%s AS %s ON %s.%s = %s.%s", kind, j.Target.Table, j.Alias,
			j.Alias, j.Association.TargetColumn, parent, j.Association.LocalColumn)
	}
	parent := rootAlias
	if j.ParentAlias != "" {
		parent = d.Quote(j.ParentAlias)
	}
	return fmt.Sprintf("%s%s AS %s ON %s = %s.%s", kind, d.Quote(j.Target.Table), d.Quote(j.Alias),
		d.Column(j.Alias, j.Association.TargetColumn), parent, d.Quote(j.Association.LocalColumn))
}

func (p *QueryPlan) orderList(d Dialect, orders []types.Order, alias string) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		attr, ok := p.entity.Attribute(o.Property)
		if !ok {
			continue
		}
		col := alias + "." + d.Quote(attr.Column)
		if o.Desc {
			col += " DESC"
		} else {
			col += " ASC"
		}
		out = append(out, col)
	}
	return out
}

func (p *QueryPlan) literalSelect(d Dialect, w Window) Statement {
	t := p.template
	var edits []edit
	if len(p.joins) > 0 && t.selectEnd > 0 {
		edits = append(edits, edit{
			at:   trimLeft(t.Text, t.selectEnd),
			text: ", " + strings.Join(p.joinColumns(d, false), ", "),
		})
		var joins strings.Builder
		for _, j := range p.joins {
			joins.WriteString(p.joinClause(d, j, t.RootAlias, false))
		}
		edits = append(edits, edit{at: t.fromEnd, text: joins.String()})
	}
	if len(p.orders) > 0 {
		list := strings.Join(p.orderList(d, p.orders, t.RootAlias), ", ")
		at := trimLeft(t.Text, t.bodyEnd())
		if t.orderAt >= 0 {
			edits = append(edits, edit{at: at, text: ", " + list})
		} else {
			edits = append(edits, edit{at: at, text: " ORDER BY " + list})
		}
	}
	text, args := p.literalText(0, len(t.Text), edits)
	text += d.window(w)
	if p.lock == types.LockPessimisticWrite {
		text += d.lock(t.RootAlias)
	}
	return Statement{Text: text, Args: args}
}

// edit splices text into the template, or replaces a placeholder.
type edit struct {
	at   int
	text string
	ph   *Placeholder
}

// literalText renders template text in [start, end) with placeholders
// replaced by bound arguments and edits spliced in. Slice arguments expand
// to one parameter per element.
func (p *QueryPlan) literalText(start, end int, edits []edit) (string, []interface{}) {
	t := p.template
	for i := range t.Placeholders {
		ph := &t.Placeholders[i]
		if ph.Start >= start && ph.End <= end {
			edits = append(edits, edit{at: ph.Start, ph: ph})
		}
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].at < edits[j].at })

	var b strings.Builder
	var args []interface{}
	pos := start
	for _, e := range edits {
		if e.at > end {
			continue
		}
		b.WriteString(t.Text[pos:e.at])
		pos = e.at
		if e.ph == nil {
			b.WriteString(e.text)
			continue
		}
		v := p.named[e.ph.Name]
		if elems, ok := expand(v); ok {
			marks := placeholders(len(elems))
			if len(elems) == 0 {
				marks = "NULL"
			}
			if i := trimLeft(t.Text, e.at); i == 0 || t.Text[i-1] != '(' {
				marks = "(" + marks + ")"
			}
			b.WriteString(marks)
			args = append(args, elems...)
		} else {
			b.WriteString("?")
			args = append(args, v)
		}
		pos = e.ph.End
	}
	if pos < end {
		b.WriteString(t.Text[pos:end])
	}
	return b.String(), args
}

// trimLeft moves i back over whitespace so insertions land right after
// the preceding token.
func trimLeft(s string, i int) int {
	for i > 0 && (s[i-1] == ' ' || s[i-1] == '\n' || s[i-1] == '\t' || s[i-1] == '\r') {
		i--
	}
	return i
}

func (d Dialect) window(w Window) string {
	if w.None {
		return " LIMIT 0"
	}
	var s string
	if w.Limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", w.Limit)
	}
	if w.Offset > 0 {
		if w.Limit == 0 {
			switch d.Name {
			case dialect.MySQL:
				s += " LIMIT 18446744073709551615"
			case dialect.SQLite:
				s += " LIMIT -1"
			}
		}
		s += fmt.Sprintf(" OFFSET %d", w.Offset)
	}
	return s
}

// expand flattens slice and array arguments, leaving []byte alone.
func expand(v interface{}) ([]interface{}, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type renderer struct {
	strings.Builder
	d      Dialect
	entity *metadata.Entity
	alias  string
	args   []interface{}
}

func (r *renderer) column(field string) string {
	attr, _ := r.entity.Attribute(field)
	return r.d.Column(r.alias, attr.Column)
}

func (r *renderer) statement() Statement {
	return Statement{Text: r.String(), Args: r.args}
}

func (r *renderer) from(p *QueryPlan) {
	r.WriteString(" FROM " + r.d.Quote(p.entity.Table))
	if r.alias != "" {
		r.WriteString(" AS " + r.d.Quote(r.alias))
	}
}

func (r *renderer) where(tree *predicate.Tree, args []interface{}) {
	groups := tree.Groups()
	if len(groups) == 0 {
		return
	}
	r.WriteString(" WHERE ")
	next := 0
	for gi, group := range groups {
		if gi > 0 {
			r.WriteString(" OR ")
		}
		wrap := len(groups) > 1 && len(group) > 1
		if wrap {
			r.WriteString("(")
		}
		for ci, c := range group {
			if ci > 0 {
				r.WriteString(" AND ")
			}
			n := c.Operator.Arity()
			r.clause(c, args[next:next+n])
			next += n
		}
		if wrap {
			r.WriteString(")")
		}
	}
}

func (r *renderer) clause(c predicate.Clause, args []interface{}) {
	col := r.column(c.Field)
	bind := func(v interface{}) string {
		r.args = append(r.args, v)
		if c.IgnoreCase {
			return "lower(?)"
		}
		return "?"
	}
	if c.IgnoreCase {
		col = "lower(" + col + ")"
	}
	switch c.Operator {
	case predicate.Equals:
		if args[0] == nil {
			r.WriteString(col + " IS NULL")
			return
		}
		r.WriteString(col + " = " + bind(args[0]))
	case predicate.NotEquals:
		if args[0] == nil {
			r.WriteString(col + " IS NOT NULL")
			return
		}
		r.WriteString(col + " <> " + bind(args[0]))
	case predicate.GreaterThan:
		r.WriteString(col + " > " + bind(args[0]))
	case predicate.GreaterThanEqual:
		r.WriteString(col + " >= " + bind(args[0]))
	case predicate.LessThan:
		r.WriteString(col + " < " + bind(args[0]))
	case predicate.LessThanEqual:
		r.WriteString(col + " <= " + bind(args[0]))
	case predicate.Between:
		r.WriteString(col + " BETWEEN " + bind(args[0]) + " AND " + bind(args[1]))
	case predicate.In, predicate.NotIn:
		elems, ok := expand(args[0])
		if !ok {
			elems = []interface{}{args[0]}
		}
		if len(elems) == 0 {
			if c.Operator == predicate.In {
				r.WriteString("1 = 0")
			} else {
				r.WriteString("1 = 1")
			}
			return
		}
		marks := make([]string, len(elems))
		for i, e := range elems {
			marks[i] = bind(e)
		}
		op := " IN ("
		if c.Operator == predicate.NotIn {
			op = " NOT IN ("
		}
		r.WriteString(col + op + strings.Join(marks, ", ") + ")")
	case predicate.IsNull:
		r.WriteString(col + " IS NULL")
	case predicate.IsNotNull:
		r.WriteString(col + " IS NOT NULL")
	case predicate.Like:
		r.WriteString(col + " LIKE " + bind(args[0]))
	case predicate.NotLike:
		r.WriteString(col + " NOT LIKE " + bind(args[0]))
	case predicate.StartingWith:
		r.WriteString(col + " LIKE " + bind(cast.ToString(args[0])+"%"))
	case predicate.EndingWith:
		r.WriteString(col + " LIKE " + bind("%"+cast.ToString(args[0])))
	case predicate.Containing:
		r.WriteString(col + " LIKE " + bind("%"+cast.ToString(args[0])+"%"))
	case predicate.True:
		r.WriteString(col + " = " + bind(true))
	case predicate.False:
		r.WriteString(col + " = " + bind(false))
	}
}
