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
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/engine"
	"github.com/tomoncle/querykit/examples/member"
	"github.com/tomoncle/querykit/plan"
	"github.com/tomoncle/querykit/types"
)

type explainOptions struct {
	entity    string
	query     string
	params    []string
	args      []string
	fetch     []string
	sort      []string
	lock      bool
	readOnly  bool
	modifying bool
	clear     bool
	page      int
	size      int
	dialect   string
}

var explainOpts explainOptions

var explainCmd = &cobra.Command{
	Use:   "explain <method>",
	Short: "Print the SQL a repository method issues against the member schema",
	Example: `  querykit explain findByUsernameAndAgeGreaterThan --arg kim --arg 10
  querykit explain findByAge --arg 10 --page 0 --size 3 --sort "username DESC" --dialect postgres
  querykit explain bulk --query "update members set age = age + 1 where age >= :age" --param age --arg 20 --modifying`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := member.Open(database.DefaultConfig())
		if err != nil {
			return err
		}
		defer func() { _ = database.CloseDB() }()

		o := explainOpts
		b, err := o.builder(repo, args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("page") || cmd.Flags().Changed("size") {
			b.Page(types.NewPageRequest(o.page, o.size, o.sort...))
		} else {
			for _, s := range o.sort {
				b.Sort(types.ParseOrder(s))
			}
		}
		p, err := b.Build()
		if err != nil {
			return err
		}

		d, err := dialectNamed(o.dialect)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, color.CyanString("plan:"), p)
		for i, stmt := range engine.Explain(p, d, p.PageRequest()) {
			fmt.Fprintf(out, "%s %s\n", color.GreenString("[%d]", i+1), stmt.Text)
			if len(stmt.Args) > 0 {
				fmt.Fprintf(out, "    args: %v\n", stmt.Args)
			}
		}
		return nil
	},
}

func (o explainOptions) builder(repo *member.MemberRepository, method string) (*plan.Builder, error) {
	e := repo.Methods.Engine()
	var (
		b   *plan.Builder
		err error
	)
	switch _, declared := repo.Methods.Method(method); {
	case o.query != "":
		b = e.Query(o.entity).Name(method).Literal(o.query).Params(o.params...)
	case declared && o.entity == repo.Methods.Entity():
		b, err = repo.Methods.Builder(method)
	default:
		b, err = e.Derive(o.entity, method)
	}
	if err != nil {
		return nil, err
	}
	b.Fetch(o.fetch...)
	if o.lock {
		b.Lock(types.LockPessimisticWrite)
	}
	if o.readOnly {
		b.ReadOnly(true)
	}
	if o.modifying {
		b.Modifying(o.clear)
	}
	values := make([]interface{}, len(o.args))
	for i, a := range o.args {
		values[i] = parseArg(a)
	}
	return b.Args(values...), nil
}

// parseArg reads integers as int64 and comma-separated values as a list.
func parseArg(s string) interface{} {
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = parseArg(strings.TrimSpace(p))
		}
		return out
	}
	if n, err := cast.ToInt64E(s); err == nil {
		return n
	}
	return s
}

func dialectNamed(name string) (plan.Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return plan.Postgres, nil
	case "mysql":
		return plan.MySQL, nil
	case "sqlite", "sqlite3":
		return plan.SQLite, nil
	}
	return plan.Dialect{}, fmt.Errorf("unknown dialect %q", name)
}

func init() {
	f := explainCmd.Flags()
	f.StringVar(&explainOpts.entity, "entity", "Member", "entity the method belongs to: Member or Team")
	f.StringVar(&explainOpts.query, "query", "", "SQL template with :name placeholders instead of a derived method")
	f.StringSliceVar(&explainOpts.params, "param", nil, "template placeholder names in argument order")
	f.StringArrayVar(&explainOpts.args, "arg", nil, "argument value; integers are bound as numbers, a,b,c as a list")
	f.StringSliceVar(&explainOpts.fetch, "fetch", nil, "association paths to fetch, e.g. team")
	f.StringArrayVar(&explainOpts.sort, "sort", nil, `sort key such as "age DESC"`)
	f.BoolVar(&explainOpts.lock, "lock", false, "pessimistic write lock")
	f.BoolVar(&explainOpts.readOnly, "read-only", false, "read-only hint")
	f.BoolVar(&explainOpts.modifying, "modifying", false, "bulk UPDATE or DELETE")
	f.BoolVar(&explainOpts.clear, "clear", true, "clear the unit of work after a bulk statement")
	f.IntVar(&explainOpts.page, "page", 0, "zero-based page number")
	f.IntVar(&explainOpts.size, "size", types.DefaultPageSize, "page size")
	f.StringVar(&explainOpts.dialect, "dialect", "sqlite", "SQL dialect: postgres, mysql or sqlite")
	rootCmd.AddCommand(explainCmd)
}
