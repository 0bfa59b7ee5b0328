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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionLifecycle(t *testing.T) {
	e := NewExecution(nil)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, StateBuilt, e.State())

	e.Validated()
	e.Executing()
	e.Committed()
	assert.Equal(t, StateCommitted, e.State())
	assert.True(t, e.State().Terminal())
	assert.Nil(t, e.Cause())
}

func TestExecutionFailure(t *testing.T) {
	cause := errors.New("boom")
	e := NewExecution(nil)
	e.Validated()
	e.Executing()
	assert.Same(t, cause, e.Failed(cause))
	assert.Equal(t, StateFailed, e.State())
	assert.Equal(t, cause, e.Cause())
}

func TestExecutionIllegalTransitionsPanic(t *testing.T) {
	e := NewExecution(nil)
	assert.Panics(t, func() { e.Executing() })

	e = NewExecution(nil)
	e.Validated()
	e.Executing()
	e.Committed()
	assert.Panics(t, func() { e.Failed(errors.New("late")) })
	assert.Panics(t, func() { e.Committed() })
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "EXECUTING", StateExecuting.String())
	assert.Equal(t, 3, StateCommitted.Number())
	assert.False(t, State(42).IsValid())
}
