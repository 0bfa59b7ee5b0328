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

	"github.com/tomoncle/querykit/plan"
	"github.com/tomoncle/querykit/types"
)

// pageRequest is the plan's request clamped to the configured maximum.
func (e *Engine) pageRequest(p *plan.QueryPlan) *types.PageRequest {
	req := p.PageRequest()
	if req == nil {
		req = types.NewDefaultPageRequest(0, e.config.DefaultPageSize)
	}
	return req.WithSize(e.config.MaxPageSize)
}

// page counts first. The total never exceeds a Top/First cap. An empty
// result or an offset past the end skips the content query.
func (e *Engine) page(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	req := e.pageRequest(p)
	res := &Result{Page: req.GetPage(), PageSize: req.GetPageSize()}
	total, err := e.count(ctx, p)
	if err != nil {
		return nil, err
	}
	if top := int64(p.MaxResults()); top > 0 && total > top {
		total = top
	}
	res.Total = total
	if total == 0 || int64(req.Offset()) >= total {
		e.logger.Debug("page content skipped", "total", total, "offset", req.Offset())
		return res, nil
	}
	if res.Entities, err = e.load(ctx, p, pageWindow(req)); err != nil {
		return nil, err
	}
	res.HasNext = int64(req.Offset()+req.GetPageSize()) < total
	return res, nil
}

// slice reads one row past the window to learn whether another slice
// follows, without counting.
func (e *Engine) slice(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	req := e.pageRequest(p)
	res := &Result{Page: req.GetPage(), PageSize: req.GetPageSize()}
	if top := p.MaxResults(); top > 0 && req.Offset() >= top {
		return res, nil
	}
	entities, err := e.load(ctx, p, sliceWindow(req))
	if err != nil {
		return nil, err
	}
	if len(entities) > req.GetPageSize() {
		res.HasNext = true
		entities = entities[:req.GetPageSize()]
	}
	res.Entities = entities
	return res, nil
}

func pageWindow(req *types.PageRequest) plan.Window {
	return plan.Window{Offset: req.Offset(), Limit: req.Limit()}
}

func sliceWindow(req *types.PageRequest) plan.Window {
	return plan.Window{Offset: req.Offset(), Limit: req.Limit() + 1}
}

// Explain renders the statements Execute would issue for p, in order. A
// page that turns out empty skips its second statement.
func (e *Engine) Explain(p *plan.QueryPlan) []plan.Statement {
	return Explain(p, e.Dialect(), e.pageRequest(p))
}

// Explain renders p's statements for dialect d. req windows paged results
// and may be nil for the others.
func Explain(p *plan.QueryPlan, d plan.Dialect, req *types.PageRequest) []plan.Statement {
	if req == nil {
		req = p.PageRequest()
	}
	switch p.Result() {
	case types.ResultAffected:
		return []plan.Statement{p.MutationStatement(d)}
	case types.ResultCount:
		return []plan.Statement{p.CountStatement(d)}
	case types.ResultExists:
		return []plan.Statement{p.ExistsStatement(d)}
	case types.ResultPage:
		return []plan.Statement{p.CountStatement(d), p.SelectStatement(d, pageWindow(req))}
	case types.ResultSlice:
		return []plan.Statement{p.SelectStatement(d, sliceWindow(req))}
	}
	return []plan.Statement{p.SelectStatement(d, plan.Window{})}
}
