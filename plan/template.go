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
	"regexp"
	"strings"
)

// StatementKind is the leading verb of a literal query.
type StatementKind int

const (
	StatementSelect StatementKind = iota
	StatementUpdate
	StatementDelete
)

func (k StatementKind) String() string {
	switch k {
	case StatementUpdate:
		return "UPDATE"
	case StatementDelete:
		return "DELETE"
	default:
		return "SELECT"
	}
}

// Placeholder is one ":name" occurrence in a template.
type Placeholder struct {
	Name  string
	Start int
	End   int
}

// FetchClause is a "[LEFT] JOIN FETCH alias.path [alias]" clause stripped
// from a literal query.
type FetchClause struct {
	Owner string
	Path  string
	Alias string
	Inner bool
}

// DtoSpec names a projection constructor and its ordered arguments.
type DtoSpec struct {
	TypeName string
	Fields   []string
}

// Template is a parsed literal query. Text has fetch clauses removed and
// constructor expressions rewritten to "expr AS dto_N" columns.
type Template struct {
	Original     string
	Text         string
	Kind         StatementKind
	RootTable    string
	RootAlias    string
	Placeholders []Placeholder
	Fetches      []FetchClause
	Projection   *DtoSpec

	selectEnd int // index of the top-level FROM keyword
	fromEnd   int // index just past "FROM table [AS alias]"
	orderAt   int // index of a trailing top-level ORDER BY, or -1
	tailAt    int // index of a top-level LIMIT, OFFSET or FOR clause, or -1
}

var (
	fetchPattern = regexp.MustCompile(`(?i)\s+(LEFT\s+(?:OUTER\s+)?|INNER\s+)?JOIN\s+FETCH\s+([A-Za-z_]\w*)\.([A-Za-z_][\w.]*)(\s+(?:AS\s+)?([A-Za-z_]\w*))?`)
	newPattern   = regexp.MustCompile(`(?is)^\s*SELECT\s+NEW\s+([\w.]+)\s*\(`)
	fromPattern  = regexp.MustCompile(`(?i)^FROM\s+([\w."` + "`" + `]+)(\s+(?:AS\s+)?([A-Za-z_]\w*))?`)
	updPattern   = regexp.MustCompile(`(?i)^\s*UPDATE\s+([\w."` + "`" + `]+)(\s+(?:AS\s+)?([A-Za-z_]\w*))?`)
	verbPattern  = regexp.MustCompile(`(?i)^\s*(SELECT|WITH|UPDATE|DELETE)\b`)
)

var reserved = map[string]bool{
	"WHERE": true, "LEFT": true, "RIGHT": true, "INNER": true, "OUTER": true, "JOIN": true,
	"ORDER": true, "GROUP": true, "LIMIT": true, "ON": true, "CROSS": true, "FULL": true,
	"UNION": true, "HAVING": true, "FOR": true, "SET": true, "OFFSET": true, "USING": true,
}

// ParseTemplate parses a literal SQL query with ":name" placeholders.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{Original: text, orderAt: -1, tailAt: -1}
	vm := verbPattern.FindStringSubmatch(text)
	if vm == nil {
		return nil, fmt.Errorf("literal query must start with SELECT, UPDATE or DELETE: %q", text)
	}
	switch strings.ToUpper(vm[1]) {
	case "UPDATE":
		t.Kind = StatementUpdate
	case "DELETE":
		t.Kind = StatementDelete
	}

	body := text
	if t.Kind == StatementSelect {
		var err error
		if body, err = t.rewriteConstructor(body); err != nil {
			return nil, err
		}
		body = t.stripFetches(body)
	}
	t.Text = strings.TrimSpace(body)
	t.Placeholders = scanPlaceholders(t.Text)
	t.locate()
	return t, nil
}

// Names lists distinct placeholder names in first-occurrence order.
func (t *Template) Names() []string {
	seen := make(map[string]bool, len(t.Placeholders))
	var names []string
	for _, p := range t.Placeholders {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names
}

func (t *Template) rewriteConstructor(body string) (string, error) {
	loc := newPattern.FindStringSubmatchIndex(body)
	if loc == nil {
		return body, nil
	}
	open := loc[1] - 1
	closeAt := matchParen(body, open)
	if closeAt < 0 {
		return "", fmt.Errorf("unbalanced constructor expression in %q", body)
	}
	args := splitTopLevel(body[open+1 : closeAt])
	spec := &DtoSpec{TypeName: body[loc[2]:loc[3]]}
	if i := strings.LastIndex(spec.TypeName, "."); i >= 0 {
		spec.TypeName = spec.TypeName[i+1:]
	}
	cols := make([]string, len(args))
	for i, a := range args {
		a = strings.TrimSpace(a)
		spec.Fields = append(spec.Fields, a)
		cols[i] = fmt.Sprintf("%s AS %s", a, DtoColumn(i))
	}
	t.Projection = spec
	return "SELECT " + strings.Join(cols, ", ") + body[closeAt+1:], nil
}

func (t *Template) stripFetches(body string) string {
	var b strings.Builder
	last := 0
	for _, m := range fetchPattern.FindAllStringSubmatchIndex(body, -1) {
		fc := FetchClause{
			Owner: body[m[4]:m[5]],
			Path:  strings.TrimSuffix(body[m[6]:m[7]], "."),
			Inner: m[2] < 0 || strings.HasPrefix(strings.ToUpper(body[m[2]:m[3]]), "INNER"),
		}
		end := m[1]
		if m[10] >= 0 {
			alias := body[m[10]:m[11]]
			if reserved[strings.ToUpper(alias)] {
				end = m[8]
			} else {
				fc.Alias = alias
			}
		}
		t.Fetches = append(t.Fetches, fc)
		b.WriteString(body[last:m[0]])
		last = end
	}
	b.WriteString(body[last:])
	return b.String()
}

// locate finds the root FROM clause, the select list end and a trailing
// ORDER BY, all at parenthesis depth zero.
func (t *Template) locate() {
	text := t.Text
	if t.Kind == StatementUpdate {
		if m := updPattern.FindStringSubmatch(text); m != nil {
			t.RootTable, t.RootAlias = m[1], aliasOrEmpty(m[3])
		}
	}
	depth := 0
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && wordAt(text, i, "FROM") && t.selectEnd == 0:
			t.selectEnd = i
			if m := fromPattern.FindStringSubmatchIndex(text[i:]); m != nil {
				t.RootTable = text[i+m[2] : i+m[3]]
				t.fromEnd = i + m[3]
				if m[6] >= 0 && !reserved[strings.ToUpper(text[i+m[6]:i+m[7]])] {
					t.RootAlias = text[i+m[6] : i+m[7]]
					t.fromEnd = i + m[7]
				}
			}
		case depth == 0 && wordAt(text, i, "ORDER"):
			t.orderAt = i
		case depth == 0 && t.tailAt < 0 && t.selectEnd > 0 &&
			(wordAt(text, i, "LIMIT") || wordAt(text, i, "OFFSET") || wordAt(text, i, "FOR")):
			t.tailAt = i
		}
	}
	if t.RootAlias == "" {
		t.RootAlias = t.RootTable
	}
}

// bodyEnd is where the statement body ends and trailing clauses begin.
func (t *Template) bodyEnd() int {
	if t.tailAt >= 0 {
		return t.tailAt
	}
	return len(t.Text)
}

// unorderedEnd is bodyEnd without the ORDER BY clause.
func (t *Template) unorderedEnd() int {
	if t.orderAt >= 0 {
		return t.orderAt
	}
	return t.bodyEnd()
}

func aliasOrEmpty(s string) string {
	if reserved[strings.ToUpper(s)] {
		return ""
	}
	return s
}

// DtoColumn is the result column of the i-th projection argument.
func DtoColumn(i int) string { return fmt.Sprintf("dto_%d", i) }

func scanPlaceholders(text string) []Placeholder {
	var out []Placeholder
	inQuote := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote || c != ':' {
			continue
		}
		if i+1 < len(text) && text[i+1] == ':' {
			i++
			continue
		}
		if i > 0 && text[i-1] == ':' {
			continue
		}
		j := i + 1
		for j < len(text) && isIdent(text[j], j == i+1) {
			j++
		}
		if j > i+1 {
			out = append(out, Placeholder{Name: text[i+1 : j], Start: i, End: j})
			i = j - 1
		}
	}
	return out
}

func isIdent(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

func wordAt(s string, i int, word string) bool {
	if i+len(word) > len(s) || !strings.EqualFold(s[i:i+len(word)], word) {
		return false
	}
	if i > 0 && isIdent(s[i-1], false) {
		return false
	}
	return i+len(word) == len(s) || !isIdent(s[i+len(word)], false)
}

func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
