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
)

// mutate runs a bulk UPDATE or DELETE. With ClearAfterModify the unit of
// work is invalidated once, and only after the statement succeeded.
func (e *Engine) mutate(ctx context.Context, p *plan.QueryPlan) (*Result, error) {
	n, err := e.exec(ctx, p.MutationStatement(e.Dialect()))
	if err != nil {
		return nil, err
	}
	if p.ClearAfterModify() {
		e.uow.InvalidateAll()
		e.logger.Debug("unit of work cleared", "entity", p.Entity().Name, "affected", n)
	}
	return &Result{Affected: n}, nil
}
