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
	"regexp"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/tomoncle/querykit/types"
)

const (
	tokenAnd        = "And"
	tokenOr         = "Or"
	tokenIgnoreCase = "IgnoreCase"
)

// AttributeSet is the part of an entity schema the parser needs.
type AttributeSet interface {
	HasAttribute(name string) bool
}

var (
	methodPattern = regexp.MustCompile(`^(find|read|get|query|search|stream|count|exists|delete|remove)(.*?)(By(.*))?$`)
	limitPattern  = regexp.MustCompile(`(Top|First)(\d*)`)
)

var subjects = map[string]Subject{
	"find":   SubjectFind,
	"read":   SubjectFind,
	"get":    SubjectFind,
	"query":  SubjectFind,
	"search": SubjectFind,
	"stream": SubjectFind,
	"count":  SubjectCount,
	"exists": SubjectExists,
	"delete": SubjectDelete,
	"remove": SubjectDelete,
}

// Tokens is a method name split into its subject, its predicate token
// sequence (e.g. ["username", "And", "age", "GreaterThan"]) and its
// ordering.
type Tokens struct {
	Method     string
	Subject    Subject
	Decoration string
	Distinct   bool
	Limit      int
	Predicate  []string
	Orders     []types.Order
}

// Tokenize splits a derived method name. Anything between the verb and
// "By" other than Distinct/TopN/FirstN is decorative and ignored, so
// "findHelloBy" is a match-all find.
func Tokenize(method string) (*Tokens, error) {
	m := methodPattern.FindStringSubmatch(method)
	if m == nil {
		return nil, &types.InvalidPredicateError{Method: method, Reason: "method name has no query subject"}
	}
	t := &Tokens{Method: method, Subject: subjects[m[1]], Decoration: m[2]}
	body := m[4]
	if m[3] != "" && strings.HasSuffix(t.Decoration, "Order") {
		// "findAllOrderByAge": the first "By" belongs to OrderBy
		t.Decoration = strings.TrimSuffix(t.Decoration, "Order")
		body = "OrderBy" + body
	}
	if strings.Contains(t.Decoration, "Distinct") {
		t.Distinct = true
	}
	if lm := limitPattern.FindStringSubmatch(t.Decoration); lm != nil {
		t.Limit = 1
		if lm[2] != "" {
			n, err := strconv.Atoi(lm[2])
			if err != nil || n < 1 {
				return nil, &types.InvalidPredicateError{Method: method, Token: lm[0], Reason: "invalid result limit"}
			}
			t.Limit = n
		}
	}

	if i := lastKeywordIndex(body, "OrderBy"); i >= 0 {
		orders, err := tokenizeOrders(method, body[i+len("OrderBy"):])
		if err != nil {
			return nil, err
		}
		t.Orders = orders
		body = body[:i]
	}

	allIgnoreCase := false
	for _, suffix := range []string{"AllIgnoreCase", "AllIgnoringCase"} {
		if strings.HasSuffix(body, suffix) {
			allIgnoreCase = true
			body = strings.TrimSuffix(body, suffix)
			break
		}
	}
	if body == "" {
		return t, nil
	}

	parts, conjunctions := splitConjunctions(body)
	for i, part := range parts {
		if i > 0 {
			t.Predicate = append(t.Predicate, conjunctions[i-1])
		}
		if part == "" {
			return nil, &types.InvalidPredicateError{Method: method, Reason: "empty condition"}
		}
		ignoreCase := allIgnoreCase
		for _, suffix := range []string{"IgnoreCase", "IgnoringCase"} {
			if strings.HasSuffix(part, suffix) && len(part) > len(suffix) {
				ignoreCase = true
				part = strings.TrimSuffix(part, suffix)
				break
			}
		}
		property, keyword := splitOperator(part)
		t.Predicate = append(t.Predicate, inflect.CamelizeDownFirst(property))
		if keyword != "" {
			t.Predicate = append(t.Predicate, keyword)
		}
		if ignoreCase {
			t.Predicate = append(t.Predicate, tokenIgnoreCase)
		}
	}
	return t, nil
}

// Parse turns a predicate token sequence into a Tree, resolving every
// attribute token against attrs.
func Parse(method string, tokens []string, attrs AttributeSet) (*Tree, error) {
	tree := &Tree{Method: method}
	conj := And
	for i := 0; i < len(tokens); {
		field := tokens[i]
		if field == tokenAnd || field == tokenOr {
			return nil, &types.InvalidPredicateError{Method: method, Token: field, Reason: "conjunction without a preceding condition"}
		}
		if _, isOp := LookupKeyword(field); isOp && !attrs.HasAttribute(field) {
			return nil, &types.InvalidPredicateError{Method: method, Token: field, Reason: "operator without an attribute"}
		}
		if !attrs.HasAttribute(field) {
			return nil, &types.InvalidPredicateError{Method: method, Token: field, Reason: "no such attribute"}
		}
		clause := Clause{Field: field, Operator: Equals, Conjunction: conj}
		i++
		if i < len(tokens) {
			if op, ok := LookupKeyword(tokens[i]); ok {
				clause.Operator = op
				i++
			}
		}
		if i < len(tokens) && tokens[i] == tokenIgnoreCase {
			clause.IgnoreCase = true
			i++
		}
		tree.Clauses = append(tree.Clauses, clause)
		if i == len(tokens) {
			break
		}
		switch tokens[i] {
		case tokenAnd:
			conj = And
		case tokenOr:
			conj = Or
		default:
			return nil, &types.InvalidPredicateError{Method: method, Token: tokens[i], Reason: "unknown operator"}
		}
		i++
		if i == len(tokens) {
			return nil, &types.InvalidPredicateError{Method: method, Token: tokens[i-1], Reason: "dangling conjunction"}
		}
	}
	return tree, nil
}

// ParseMethod tokenizes and parses a derived method name, validating
// ordering properties as well.
func ParseMethod(method string, attrs AttributeSet) (*Tree, error) {
	tokens, err := Tokenize(method)
	if err != nil {
		return nil, err
	}
	tree, err := Parse(method, tokens.Predicate, attrs)
	if err != nil {
		return nil, err
	}
	for _, o := range tokens.Orders {
		if !attrs.HasAttribute(o.Property) {
			return nil, &types.InvalidPredicateError{Method: method, Token: o.Property, Reason: "no such attribute to order by"}
		}
	}
	tree.Subject = tokens.Subject
	tree.Distinct = tokens.Distinct
	tree.Limit = tokens.Limit
	tree.Orders = tokens.Orders
	return tree, nil
}

// splitConjunctions splits on "And"/"Or" only at a camel-case boundary,
// so "BrandName" and "OrderCount" stay whole.
func splitConjunctions(s string) ([]string, []string) {
	var parts, conjunctions []string
	start := 0
	for i := 1; i < len(s); i++ {
		for _, kw := range []string{tokenAnd, tokenOr} {
			end := i + len(kw)
			if end < len(s) && s[i:end] == kw && isUpper(s[end]) {
				parts = append(parts, s[start:i])
				conjunctions = append(conjunctions, kw)
				start = end
				i = end - 1
				break
			}
		}
	}
	return append(parts, s[start:]), conjunctions
}

// splitOperator matches operator keywords longest suffix first and
// returns the remaining property name.
func splitOperator(part string) (string, string) {
	for _, kw := range keywordsBySuffix {
		if len(part) > len(kw) && strings.HasSuffix(part, kw) {
			return part[:len(part)-len(kw)], kw
		}
	}
	return part, ""
}

func tokenizeOrders(method, s string) ([]types.Order, error) {
	var orders []types.Order
	for s != "" {
		i, desc, n := nextDirection(s)
		if i <= 0 {
			return nil, &types.InvalidPredicateError{Method: method, Token: s, Reason: "invalid order clause"}
		}
		orders = append(orders, types.Order{Property: inflect.CamelizeDownFirst(s[:i]), Desc: desc})
		s = s[i+n:]
	}
	return orders, nil
}

// nextDirection finds the first Asc/Desc keyword that ends the string or
// is followed by an upper-case letter. Without one the whole rest is an
// ascending property.
func nextDirection(s string) (int, bool, int) {
	for i := 1; i < len(s); i++ {
		for _, kw := range []string{"Desc", "Asc"} {
			end := i + len(kw)
			if end <= len(s) && s[i:end] == kw && (end == len(s) || isUpper(s[end])) {
				return i, kw == "Desc", len(kw)
			}
		}
	}
	return len(s), false, 0
}

func lastKeywordIndex(s, kw string) int {
	for i := len(s) - len(kw) - 1; i >= 0; i-- {
		if s[i:i+len(kw)] == kw && isUpper(s[i+len(kw)]) {
			return i
		}
	}
	return -1
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
