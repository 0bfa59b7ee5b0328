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

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrInvalidPredicate     = errors.New("invalid predicate")
	ErrUnboundParameter     = errors.New("unbound parameter")
	ErrConflictingDirective = errors.New("conflicting directive")
	ErrCyclicFetchPath      = errors.New("cyclic fetch path")
	ErrInvalidFetchPath     = errors.New("invalid fetch path")
	ErrConstraintViolation  = errors.New("constraint violation")
	ErrStorage              = errors.New("storage error")
	ErrLockTimeout          = errors.New("lock wait timeout")
	ErrNotFound             = errors.New("entity not found")
	ErrNotUnique            = errors.New("query returned more than one row")
)

// InvalidPredicateError reports a method name or sort key that does not
// resolve against the entity's attributes.
type InvalidPredicateError struct {
	Method string
	Token  string
	Reason string
}

func (e *InvalidPredicateError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("invalid predicate %q: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("invalid predicate %q at %q: %s", e.Method, e.Token, e.Reason)
}

func (e *InvalidPredicateError) Is(target error) bool { return target == ErrInvalidPredicate }

// UnboundParameterError lists literal placeholders with no bound argument.
type UnboundParameterError struct {
	Names []string
}

func (e *UnboundParameterError) Error() string {
	return fmt.Sprintf("unbound parameter(s): :%s", strings.Join(e.Names, ", :"))
}

func (e *UnboundParameterError) Is(target error) bool { return target == ErrUnboundParameter }

// ConflictingDirectiveError reports two plan directives that cannot coexist.
type ConflictingDirectiveError struct {
	First  string
	Second string
	Reason string
}

func (e *ConflictingDirectiveError) Error() string {
	return fmt.Sprintf("%s conflicts with %s: %s", e.First, e.Second, e.Reason)
}

func (e *ConflictingDirectiveError) Is(target error) bool { return target == ErrConflictingDirective }

// CyclicFetchPathError reports a fetch path that revisits an entity.
type CyclicFetchPathError struct {
	Path   string
	Entity string
}

func (e *CyclicFetchPathError) Error() string {
	return fmt.Sprintf("fetch path %q revisits entity %s", e.Path, e.Entity)
}

func (e *CyclicFetchPathError) Is(target error) bool { return target == ErrCyclicFetchPath }

// InvalidFetchPathError reports a fetch path segment that is not an association.
type InvalidFetchPathError struct {
	Path    string
	Segment string
	Entity  string
}

func (e *InvalidFetchPathError) Error() string {
	return fmt.Sprintf("fetch path %q: %s has no association %q", e.Path, e.Entity, e.Segment)
}

func (e *InvalidFetchPathError) Is(target error) bool { return target == ErrInvalidFetchPath }

// StorageErrorKind narrows a StorageError.
type StorageErrorKind int

const (
	StorageFailure StorageErrorKind = iota
	StorageLockTimeout
	StorageDeadlock
)

// StorageError wraps a failure reported by the storage engine, unchanged.
type StorageError struct {
	Kind  StorageErrorKind
	Query string
	Err   error
}

func (e *StorageError) Error() string {
	switch e.Kind {
	case StorageLockTimeout:
		return fmt.Sprintf("lock wait timeout: %v", e.Err)
	case StorageDeadlock:
		return fmt.Sprintf("deadlock detected: %v", e.Err)
	default:
		return fmt.Sprintf("storage error: %v", e.Err)
	}
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	if target == ErrStorage {
		return true
	}
	return target == ErrLockTimeout && (e.Kind == StorageLockTimeout || e.Kind == StorageDeadlock)
}

// ConstraintViolationError is a write rejected by a storage constraint.
type ConstraintViolationError struct {
	Constraint string
	Query      string
	Err        error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%s violation: %v", e.Constraint, e.Err)
}

func (e *ConstraintViolationError) Unwrap() error { return e.Err }

func (e *ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraintViolation || target == ErrStorage
}
