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

	"github.com/google/uuid"

	"github.com/tomoncle/querykit/types"
)

// State is the lifecycle position of one plan execution.
type State int

const (
	StateBuilt State = iota
	StateValidated
	StateExecuting
	StateCommitted
	StateFailed
)

var _ types.BaseEnum = StateBuilt

var stateNames = [...]string{"BUILT", "VALIDATED", "EXECUTING", "COMMITTED", "FAILED"}

func (s State) IsValid() bool { return s >= StateBuilt && s <= StateFailed }

func (s State) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s State) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return stateNames[s]
}

func (s State) String() string { return s.Name() }

func (s State) Desc() string { return s.Name() }

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateCommitted || s == StateFailed }

var transitions = map[State][]State{
	StateBuilt:     {StateValidated, StateFailed},
	StateValidated: {StateExecuting, StateFailed},
	StateExecuting: {StateCommitted, StateFailed},
}

// Execution tracks one run of a plan. It is owned by a single call and is
// not safe for concurrent use.
type Execution struct {
	ID    string
	Plan  *QueryPlan
	state State
	cause error
}

// NewExecution starts tracking a built plan.
func NewExecution(p *QueryPlan) *Execution {
	return &Execution{ID: uuid.NewString(), Plan: p}
}

func (e *Execution) State() State { return e.state }

// Cause is the error that failed the execution.
func (e *Execution) Cause() error { return e.cause }

func (e *Execution) Validated() { e.moveTo(StateValidated) }

func (e *Execution) Executing() { e.moveTo(StateExecuting) }

func (e *Execution) Committed() { e.moveTo(StateCommitted) }

// Failed records the cause and returns it.
func (e *Execution) Failed(cause error) error {
	e.moveTo(StateFailed)
	e.cause = cause
	return cause
}

// moveTo panics on an illegal transition; that is always a bug in the
// caller.
func (e *Execution) moveTo(next State) {
	for _, s := range transitions[e.state] {
		if s == next {
			e.state = next
			return
		}
	}
	panic(fmt.Sprintf("execution %s: illegal transition %s -> %s", e.ID, e.state, next))
}
