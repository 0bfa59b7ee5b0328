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
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/examples/member"
	"github.com/tomoncle/querykit/types"
)

var demoConfig string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed the member schema and run every example repository method",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := database.DefaultConfig()
		if demoConfig != "" {
			var err error
			if cfg, err = database.LoadConfig(demoConfig); err != nil {
				return err
			}
		}
		cfg.MigrateConfig.EnableMigrateOnStartup = true
		cfg.MigrateConfig.DropTablesFirst = true

		repo, err := member.Open(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = database.CloseDB() }()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if _, _, err := member.Seed(ctx, repo); err != nil {
			return err
		}
		return runDemo(ctx, cmd.OutOrStdout(), repo)
	},
}

func init() {
	demoCmd.Flags().StringVarP(&demoConfig, "config", "c", "", "YAML config file; defaults to in-memory sqlite")
	rootCmd.AddCommand(demoCmd)
}

type step struct {
	name string
	run  func(ctx context.Context) (interface{}, error)
}

func runDemo(ctx context.Context, out io.Writer, r *member.MemberRepository) error {
	steps := []step{
		{"findByUsernameAndAgeGreaterThan(member3, 15)", func(ctx context.Context) (interface{}, error) {
			return r.FindByUsernameAndAgeGreaterThan(ctx, "member3", 15)
		}},
		{"findHelloBy()", func(ctx context.Context) (interface{}, error) { return r.FindHelloBy(ctx) }},
		{"findByUsername(member1)", func(ctx context.Context) (interface{}, error) { return r.FindByUsername(ctx, "member1") }},
		{"findUser(member1, 10)", func(ctx context.Context) (interface{}, error) { return r.FindUser(ctx, "member1", 10) }},
		{"findUsernameList()", func(ctx context.Context) (interface{}, error) { return r.FindUsernameList(ctx) }},
		{"findMemberDto()", func(ctx context.Context) (interface{}, error) { return r.FindMemberDto(ctx) }},
		{"findByNames([member1 member2])", func(ctx context.Context) (interface{}, error) {
			return r.FindByNames(ctx, []string{"member1", "member2"})
		}},
		{"findListByUsername(nobody)", func(ctx context.Context) (interface{}, error) { return r.FindListByUsername(ctx, "nobody") }},
		{"findMemberByUsername(member2)", func(ctx context.Context) (interface{}, error) { return r.FindMemberByUsername(ctx, "member2") }},
		{"findOptionalByUsername(nobody)", func(ctx context.Context) (interface{}, error) {
			opt, err := r.FindOptionalByUsername(ctx, "nobody")
			return map[string]bool{"present": opt.IsPresent()}, err
		}},
		{"findByAge(10, page 0 size 3 username DESC)", func(ctx context.Context) (interface{}, error) {
			page, err := r.FindByAge(ctx, 10, types.NewPageRequest(0, 3, "username DESC"))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"total": page.Total, "totalPages": page.TotalPages(), "hasNext": page.HasNext(), "items": page.Items}, nil
		}},
		{"bulkAgePlus(20)", func(ctx context.Context) (interface{}, error) { return r.BulkAgePlus(ctx, 20) }},
		{"findMemberFetchJoin()", func(ctx context.Context) (interface{}, error) { return r.FindMemberFetchJoin(ctx) }},
		{"findAll() with team", func(ctx context.Context) (interface{}, error) { return r.FindAll(ctx) }},
		{"findMemberEntityGraph()", func(ctx context.Context) (interface{}, error) { return r.FindMemberEntityGraph(ctx) }},
		{"findEntityGraphByUsername(member1)", func(ctx context.Context) (interface{}, error) {
			return r.FindEntityGraphByUsername(ctx, "member1")
		}},
		{"findReadOnlyByUsername(member1)", func(ctx context.Context) (interface{}, error) {
			return r.FindReadOnlyByUsername(ctx, "member1")
		}},
		{"findLockByUsername(member1) in a transaction", func(ctx context.Context) (interface{}, error) {
			var locked []*member.Member
			err := r.InTx(ctx, func(ctx context.Context, tx *member.MemberRepository) error {
				var err error
				locked, err = tx.FindLockByUsername(ctx, "member1")
				return err
			})
			return locked, err
		}},
		{"database health", func(ctx context.Context) (interface{}, error) {
			return map[string]interface{}{"health": database.GetHealthStatus(ctx), "stats": database.GetDatabaseStats()}, nil
		}},
	}

	for _, s := range steps {
		result, err := s.run(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		fmt.Fprintln(out, color.New(color.FgCyan, color.Bold).Sprint(s.name))
		fmt.Fprintln(out, string(data))
	}
	return nil
}
