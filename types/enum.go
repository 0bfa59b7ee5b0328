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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// LockMode is the row lock a read acquires at the storage level.
type LockMode int

const (
	LockNone LockMode = iota
	LockPessimisticWrite
)

var _ BaseEnum = LockNone

var lockModeNames = [...]string{"NONE", "PESSIMISTIC_WRITE"}

var lockModeDescs = [...]string{
	"plain read",
	"locking read (SELECT ... FOR UPDATE)",
}

func (m LockMode) IsValid() bool { return m >= LockNone && m <= LockPessimisticWrite }

func (m LockMode) Number() int {
	if !m.IsValid() {
		return IllegalValue
	}
	return int(m)
}

func (m LockMode) Name() string {
	if !m.IsValid() {
		return IllegalName
	}
	return lockModeNames[m]
}

func (m LockMode) String() string { return m.Name() }

func (m LockMode) Desc() string {
	if !m.IsValid() {
		return IllegalDesc
	}
	return lockModeDescs[m]
}

// ResultKind selects the envelope a plan's rows are materialized into.
type ResultKind int

const (
	ResultList ResultKind = iota
	ResultOne
	ResultOptional
	ResultPage
	ResultSlice
	ResultScalars
	ResultDtos
	ResultCount
	ResultExists
	ResultAffected
)

var _ BaseEnum = ResultList

var resultKindNames = [...]string{
	"LIST", "ONE", "OPTIONAL", "PAGE", "SLICE", "SCALARS", "DTOS", "COUNT", "EXISTS", "AFFECTED",
}

var resultKindDescs = [...]string{
	"list of entities",
	"single entity, nil when absent",
	"optional entity",
	"page of entities with total count",
	"slice of entities with has-next flag",
	"list of scalar values",
	"list of constructed DTOs",
	"row count",
	"existence flag",
	"affected row count of a bulk statement",
}

func (k ResultKind) IsValid() bool { return k >= ResultList && k <= ResultAffected }

func (k ResultKind) Number() int {
	if !k.IsValid() {
		return IllegalValue
	}
	return int(k)
}

func (k ResultKind) Name() string {
	if !k.IsValid() {
		return IllegalName
	}
	return resultKindNames[k]
}

func (k ResultKind) String() string { return k.Name() }

func (k ResultKind) Desc() string {
	if !k.IsValid() {
		return IllegalDesc
	}
	return resultKindDescs[k]
}

// Paged reports whether the kind is windowed by a PageRequest.
func (k ResultKind) Paged() bool { return k == ResultPage || k == ResultSlice }
