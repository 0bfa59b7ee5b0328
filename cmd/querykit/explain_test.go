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

package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/querykit/plan"
)

func TestParseArg(t *testing.T) {
	assert.Equal(t, int64(10), parseArg("10"))
	assert.Equal(t, "kim", parseArg("kim"))
	assert.Equal(t, []interface{}{"a", int64(2)}, parseArg("a, 2"))
}

func TestDialectNamed(t *testing.T) {
	d, err := dialectNamed("PG")
	require.NoError(t, err)
	assert.Equal(t, plan.Postgres, d)

	_, err = dialectNamed("oracle")
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) string {
	color.NoColor = true
	explainCmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestExplainPagedMethod(t *testing.T) {
	out := execute(t, "explain", "findByAge", "--arg", "10", "--page", "1", "--size", "3", "--sort", "username DESC", "--dialect", "postgres")
	assert.Contains(t, out, "count(*)")
	assert.Contains(t, out, "LIMIT 3 OFFSET 3")
	assert.Contains(t, out, "args: [10]")
}

func TestExplainDeclaredFetchAndLock(t *testing.T) {
	out := execute(t, "explain", "findLockByUsername", "--arg", "member1", "--dialect", "postgres")
	assert.Contains(t, out, "FOR UPDATE OF")

	out = execute(t, "explain", "findMemberFetchJoin")
	assert.Contains(t, out, "LEFT JOIN teams AS team")
}
