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
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/predicate"
	"github.com/tomoncle/querykit/types"
)

// Projections reports whether a DTO constructor is registered.
type Projections interface {
	Has(name string) bool
}

// QueryPlan is an immutable, validated query description. A plan is built
// per call and owned by that call.
type QueryPlan struct {
	entity     *metadata.Entity
	tree       *predicate.Tree
	template   *Template
	args       []interface{}
	named      map[string]interface{}
	fetchPaths []string
	joins      []Join
	lock       types.LockMode
	readOnly   bool
	modifying  bool
	clear      bool
	page       *types.PageRequest
	result     types.ResultKind
	projection *DtoSpec
	orders     []types.Order
}

func (p *QueryPlan) Entity() *metadata.Entity { return p.entity }

// Tree is the predicate of a derived plan, nil for literal plans.
func (p *QueryPlan) Tree() *predicate.Tree { return p.tree }

// Template is the parsed literal query, nil for derived plans.
func (p *QueryPlan) Template() *Template { return p.template }

func (p *QueryPlan) Literal() bool { return p.template != nil }

func (p *QueryPlan) FetchPaths() []string { return append([]string(nil), p.fetchPaths...) }

func (p *QueryPlan) Joins() []Join { return append([]Join(nil), p.joins...) }

func (p *QueryPlan) LockMode() types.LockMode { return p.lock }

func (p *QueryPlan) ReadOnly() bool { return p.readOnly }

func (p *QueryPlan) Modifying() bool { return p.modifying }

// ClearAfterModify reports whether the unit of work is invalidated after
// the statement succeeds.
func (p *QueryPlan) ClearAfterModify() bool { return p.clear }

// PageRequest is the requested window. Paged results without an explicit
// request use page 0 with the default size.
func (p *QueryPlan) PageRequest() *types.PageRequest { return p.page }

func (p *QueryPlan) Result() types.ResultKind { return p.result }

func (p *QueryPlan) Projection() *DtoSpec { return p.projection }

// Orders are the sort keys added on top of the predicate's own ordering.
func (p *QueryPlan) Orders() []types.Order { return append([]types.Order(nil), p.orders...) }

// NeedsTotalCount is true for Page results only.
// MaxResults is the Top/First cap of a derived plan, zero when uncapped.
func (p *QueryPlan) MaxResults() int {
	if p.tree == nil {
		return 0
	}
	return p.tree.Limit
}

func (p *QueryPlan) NeedsTotalCount() bool { return p.result == types.ResultPage }

func (p *QueryPlan) String() string {
	var b strings.Builder
	b.WriteString(p.result.String())
	b.WriteString(" ")
	b.WriteString(p.entity.Name)
	if p.tree != nil {
		b.WriteString(" [" + p.tree.String() + "]")
	} else {
		b.WriteString(" [" + p.template.Text + "]")
	}
	if len(p.fetchPaths) > 0 {
		b.WriteString(" fetch=" + strings.Join(p.fetchPaths, ","))
	}
	if p.lock != types.LockNone {
		b.WriteString(" lock=" + p.lock.String())
	}
	if p.readOnly {
		b.WriteString(" readOnly")
	}
	if p.modifying {
		fmt.Fprintf(&b, " modifying(clear=%t)", p.clear)
	}
	if p.page != nil {
		fmt.Fprintf(&b, " page=%d size=%d", p.page.GetPage(), p.page.GetPageSize())
	}
	return b.String()
}

// Builder collects directives and produces a QueryPlan. A Builder is not
// safe for concurrent use; build one per call.
type Builder struct {
	name        string
	entity      string
	provider    metadata.Provider
	method      string
	tree        *predicate.Tree
	literal     string
	params      []string
	args        []interface{}
	named       map[string]interface{}
	fetch       []string
	lock        types.LockMode
	readOnly    bool
	modifying   bool
	clear       bool
	page        *types.PageRequest
	result      types.ResultKind
	resultSet   bool
	projection  *DtoSpec
	projections Projections
	sort        []types.Order
}

// NewBuilder starts a plan for the named entity.
func NewBuilder(entity string, provider metadata.Provider) *Builder {
	return &Builder{entity: entity, provider: provider}
}

// Method derives the predicate from a method name such as
// "findByUsernameAndAgeGreaterThan".
func (b *Builder) Method(name string) *Builder {
	b.method = name
	return b
}

// Name labels a literal plan in error messages, usually with the
// repository method it backs.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) label() string {
	if b.name != "" {
		return b.name
	}
	return b.method
}

// Tree uses an already parsed predicate.
func (b *Builder) Tree(tree *predicate.Tree) *Builder {
	b.tree = tree
	if b.method == "" {
		b.method = tree.Method
	}
	return b
}

// Literal uses a SQL template with ":name" placeholders.
func (b *Builder) Literal(text string) *Builder {
	b.literal = text
	return b
}

// Params names the positional arguments of a literal query.
func (b *Builder) Params(names ...string) *Builder {
	b.params = names
	return b
}

// Args binds positional arguments: in clause order for derived plans, in
// Params order for literal ones.
func (b *Builder) Args(args ...interface{}) *Builder {
	b.args = args
	return b
}

// Bind binds a literal placeholder by name.
func (b *Builder) Bind(name string, value interface{}) *Builder {
	if b.named == nil {
		b.named = make(map[string]interface{})
	}
	b.named[name] = value
	return b
}

// Fetch adds attribute paths to load eagerly, e.g. "team".
func (b *Builder) Fetch(paths ...string) *Builder {
	b.fetch = append(b.fetch, paths...)
	return b
}

func (b *Builder) Lock(mode types.LockMode) *Builder {
	b.lock = mode
	return b
}

// ReadOnly suppresses unit-of-work registration of the results.
func (b *Builder) ReadOnly(readOnly bool) *Builder {
	b.readOnly = readOnly
	return b
}

// Modifying marks a bulk statement; clear invalidates the unit of work
// after it succeeds.
func (b *Builder) Modifying(clear bool) *Builder {
	b.modifying = true
	b.clear = clear
	return b
}

func (b *Builder) Page(req *types.PageRequest) *Builder {
	b.page = req
	return b
}

func (b *Builder) Result(kind types.ResultKind) *Builder {
	b.result = kind
	b.resultSet = true
	return b
}

// Project shapes rows into a registered DTO. Fields are attribute names
// for derived plans.
func (b *Builder) Project(spec *DtoSpec) *Builder {
	b.projection = spec
	return b
}

// Projections sets the registry projection names are checked against.
func (b *Builder) Projections(p Projections) *Builder {
	b.projections = p
	return b
}

// Sort appends sort keys after the predicate's OrderBy keys.
func (b *Builder) Sort(orders ...types.Order) *Builder {
	b.sort = append(b.sort, orders...)
	return b
}

// Validate checks everything that does not depend on argument values.
// Literal placeholders only need to be covered by Params.
func (b *Builder) Validate() error {
	_, err := b.build(false)
	return err
}

// Build validates the directives and bound arguments and returns the plan.
// Every problem found is reported; a single problem is returned as is.
func (b *Builder) Build() (*QueryPlan, error) {
	return b.build(true)
}

func (b *Builder) build(bound bool) (*QueryPlan, error) {
	root, err := b.provider.Entity(b.entity)
	if err != nil {
		return nil, err
	}
	p := &QueryPlan{
		entity:    root,
		lock:      b.lock,
		readOnly:  b.readOnly,
		modifying: b.modifying,
		clear:     b.clear,
		page:      b.page,
		named:     make(map[string]interface{}, len(b.named)),
	}
	var errs *multierror.Error

	switch {
	case b.literal != "" && (b.method != "" || b.tree != nil):
		return nil, fmt.Errorf("plan for %s has both a method name and a literal query", root.Name)
	case b.literal != "":
		if p.template, err = ParseTemplate(b.literal); err != nil {
			return nil, &types.InvalidPredicateError{Method: b.label(), Reason: err.Error()}
		}
	case b.tree != nil:
		p.tree = b.tree
	case b.method != "":
		if p.tree, err = predicate.ParseMethod(b.method, root); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("plan for %s needs a method name or a literal query", root.Name)
	}

	if p.tree != nil && p.tree.Subject == predicate.SubjectDelete && !p.modifying {
		p.modifying = true
		p.clear = b.clear
	}
	p.result = b.resultKind(p)
	if p.result.Paged() && p.page == nil {
		p.page = types.NewDefaultPageRequest(0, types.DefaultPageSize)
	}

	errs = multierror.Append(errs, b.checkDirectives(p)...)
	errs = multierror.Append(errs, b.bindArgs(p, bound)...)
	errs = multierror.Append(errs, b.resolveOrders(p)...)
	errs = multierror.Append(errs, b.resolveProjection(p)...)
	if err := b.resolveFetch(p); err != nil {
		errs = multierror.Append(errs, err)
	} else if p.result.Paged() && HasToMany(p.joins) {
		errs = multierror.Append(errs, &types.ConflictingDirectiveError{
			First: "paging", Second: "to-many fetch join",
			Reason: "row limits would truncate the joined collection",
		})
	}

	if err := errs.ErrorOrNil(); err != nil {
		if len(errs.Errors) == 1 {
			return nil, errs.Errors[0]
		}
		return nil, err
	}
	return p, nil
}

func (b *Builder) resultKind(p *QueryPlan) types.ResultKind {
	switch {
	case b.resultSet:
		return b.result
	case p.modifying:
		return types.ResultAffected
	case b.page != nil:
		return types.ResultPage
	case b.projection != nil || (p.template != nil && p.template.Projection != nil):
		return types.ResultDtos
	case p.tree != nil && p.tree.Subject == predicate.SubjectCount:
		return types.ResultCount
	case p.tree != nil && p.tree.Subject == predicate.SubjectExists:
		return types.ResultExists
	}
	return types.ResultList
}

func (b *Builder) checkDirectives(p *QueryPlan) []error {
	var errs []error
	conflict := func(first, second, reason string) {
		errs = append(errs, &types.ConflictingDirectiveError{First: first, Second: second, Reason: reason})
	}
	fetching := len(b.fetch) > 0 || (p.template != nil && len(p.template.Fetches) > 0)
	if p.modifying {
		if p.lock != types.LockNone {
			conflict("lock "+p.lock.String(), "modifying", "a bulk statement performs the write itself")
		}
		if fetching {
			conflict("fetch graph", "modifying", "a bulk statement loads no entities")
		}
		if p.page != nil || p.result.Paged() {
			conflict("paging", "modifying", "a bulk statement returns an affected-row count")
		}
		if p.readOnly {
			conflict("read-only", "modifying", "a read-only hint cannot write")
		}
		if p.template != nil && p.template.Kind == StatementSelect {
			conflict("modifying", "SELECT statement", "only UPDATE and DELETE statements can be modifying")
		}
		if p.result != types.ResultAffected {
			conflict("modifying", "result "+p.result.String(), "a bulk statement returns an affected-row count")
		}
	} else {
		if p.template != nil && p.template.Kind != StatementSelect {
			conflict(p.template.Kind.String()+" statement", "non-modifying", "bulk statements must be declared modifying")
		}
		if p.result == types.ResultAffected {
			conflict("result "+p.result.String(), "non-modifying", "only bulk statements return an affected-row count")
		}
	}
	return errs
}

// bindArgs resolves arguments. Derived plans take positional arguments
// matching the operator arities; literal plans need every placeholder
// bound, by name or through Params.
func (b *Builder) bindArgs(p *QueryPlan, bound bool) []error {
	if p.tree != nil {
		if bound && len(b.args) != p.tree.Arity() {
			return []error{&types.InvalidPredicateError{
				Method: p.tree.Method,
				Reason: fmt.Sprintf("expects %d arguments, got %d", p.tree.Arity(), len(b.args)),
			}}
		}
		p.args = append([]interface{}(nil), b.args...)
		return nil
	}

	var errs []error
	if len(b.args) > len(b.params) {
		errs = append(errs, &types.InvalidPredicateError{
			Method: b.label(),
			Reason: fmt.Sprintf("%d arguments for %d declared parameters", len(b.args), len(b.params)),
		})
	}
	for k, v := range b.named {
		p.named[k] = v
	}
	available := make(map[string]bool, len(b.params)+len(b.named))
	for i, name := range b.params {
		switch {
		case i < len(b.args):
			p.named[name] = b.args[i]
			available[name] = true
		case !bound:
			available[name] = true
		}
	}
	for name := range b.named {
		available[name] = true
	}
	var missing []string
	for _, name := range p.template.Names() {
		if !available[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, &types.UnboundParameterError{Names: missing})
	}
	return errs
}

func (b *Builder) resolveOrders(p *QueryPlan) []error {
	var errs []error
	orders := append([]types.Order(nil), b.sort...)
	if p.page != nil {
		orders = append(orders, p.page.GetOrders()...)
	}
	for _, o := range orders {
		if !p.entity.HasAttribute(o.Property) {
			errs = append(errs, &types.InvalidPredicateError{
				Method: b.label(), Token: o.Property, Reason: "no such attribute to order by",
			})
			continue
		}
		p.orders = append(p.orders, o)
	}
	return errs
}

func (b *Builder) resolveProjection(p *QueryPlan) []error {
	spec := b.projection
	if p.template != nil && p.template.Projection != nil {
		if spec != nil && spec.TypeName != p.template.Projection.TypeName {
			return []error{&types.ConflictingDirectiveError{
				First: "projection " + spec.TypeName, Second: "constructor " + p.template.Projection.TypeName,
				Reason: "a query has one projection",
			}}
		}
		spec = p.template.Projection
	}
	if spec == nil {
		if p.result == types.ResultDtos {
			return []error{&types.InvalidPredicateError{Method: b.label(), Reason: "DTO result without a projection"}}
		}
		return nil
	}
	var errs []error
	if b.projections != nil && !b.projections.Has(spec.TypeName) {
		errs = append(errs, &types.InvalidPredicateError{Method: b.label(), Token: spec.TypeName, Reason: "unknown projection"})
	}
	if p.tree != nil {
		for _, f := range spec.Fields {
			if !p.entity.HasAttribute(f) {
				errs = append(errs, &types.InvalidPredicateError{Method: b.label(), Token: f, Reason: "no such attribute to project"})
			}
		}
	}
	p.projection = spec
	return errs
}

// resolveFetch unions literal fetch joins with the explicit graph, literal
// paths first.
func (b *Builder) resolveFetch(p *QueryPlan) error {
	var paths []FetchPath
	if p.template != nil {
		for _, fc := range p.template.Fetches {
			if fc.Owner != p.template.RootAlias {
				return &types.InvalidFetchPathError{Path: fc.Owner + "." + fc.Path, Segment: fc.Owner, Entity: p.entity.Name}
			}
			paths = append(paths, FetchPath{Path: fc.Path, Alias: fc.Alias, Inner: fc.Inner})
		}
	}
	for _, f := range b.fetch {
		paths = append(paths, FetchPath{Path: f})
	}
	joins, err := ResolveFetchGraph(p.entity, b.provider, paths)
	if err != nil {
		return err
	}
	p.joins = joins
	seen := make(map[string]bool, len(paths))
	for _, fp := range paths {
		if path := strings.Trim(fp.Path, "."); !seen[path] {
			seen[path] = true
			p.fetchPaths = append(p.fetchPaths, path)
		}
	}
	return nil
}

// IsBuildError reports whether err was raised while building a plan.
func IsBuildError(err error) bool {
	for _, target := range []error{
		types.ErrInvalidPredicate, types.ErrUnboundParameter, types.ErrConflictingDirective,
		types.ErrCyclicFetchPath, types.ErrInvalidFetchPath,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
