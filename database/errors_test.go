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

package database

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/types"
)

func TestClassifyErrorConstraint(t *testing.T) {
	err := ClassifyError(&pq.Error{Code: "23505", Message: "duplicate key value"}, "INSERT INTO members")
	var cv *types.ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, "unique", cv.Constraint)
	assert.Equal(t, "INSERT INTO members", cv.Query)
	assert.ErrorIs(t, err, types.ErrConstraintViolation)
	assert.ErrorIs(t, err, types.ErrStorage)

	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
}

func TestClassifyErrorLocking(t *testing.T) {
	for name, driverErr := range map[string]error{
		"postgres lock": &pq.Error{Code: "55P03"},
		"mysql lock":    &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"},
		"sqlite busy":   errors.New("database is locked (5) (SQLITE_BUSY)"),
	} {
		err := ClassifyError(driverErr, "SELECT 1")
		var se *types.StorageError
		require.ErrorAs(t, err, &se, name)
		assert.Equal(t, types.StorageLockTimeout, se.Kind, name)
		assert.ErrorIs(t, err, types.ErrLockTimeout, name)
	}

	err := ClassifyError(&mysql.MySQLError{Number: 1213}, "UPDATE members")
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.StorageDeadlock, se.Kind)
}

func TestClassifyErrorFallback(t *testing.T) {
	assert.NoError(t, ClassifyError(nil, "SELECT 1"))

	cause := errors.New("connection reset")
	err := ClassifyError(cause, "SELECT 1")
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, types.StorageFailure, se.Kind)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, types.ErrLockTimeout)
}

func TestIsSqlErrorText(t *testing.T) {
	cases := map[string]SQLError{
		"UNIQUE constraint failed: members.username": DuplicateKeyErr,
		"no such table: members":                     NoTableErr,
		"NOT NULL constraint failed: members.age":    NotNullViolationErr,
		"FOREIGN KEY constraint failed":              ForeignKeyViolationErr,
	}
	for msg, want := range cases {
		is, kind := IsSqlError(errors.New(msg))
		assert.True(t, is, msg)
		assert.Equal(t, want, kind, msg)
	}

	is, kind := IsSqlError(errors.New("boom"))
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)
	assert.Equal(t, "unknown", SQLError(99).String())
	assert.True(t, CheckConstraintViolationErr.IsConstraint())
	assert.False(t, LockTimeoutErr.IsConstraint())
}
