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
	"context"
	"fmt"
	"os"
	"reflect"

	"github.com/uptrace/bun"
)

// MigrationManager creates and drops the tables of the registered models.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	models []interface{}
}

// NewMigrationManager uses the models of the default registry, lowest
// priority first.
func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	return &MigrationManager{db: db, logger: logger, models: RegisteredModelInstances()}
}

// WithModels replaces the model list, in creation order.
func (mm *MigrationManager) WithModels(models ...interface{}) *MigrationManager {
	mm.models = models
	return mm
}

// RunMigrations creates every missing table in one transaction.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}
	mm.db.RegisterModel(mm.models...)

	err := mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range mm.models {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create table for %s: %w", modelName(model), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if mm.logger != nil {
		mm.logger.Info("Database migrations completed!", "models", len(mm.models))
	}
	return nil
}

// DropTables drops the registered tables in reverse creation order.
func (mm *MigrationManager) DropTables(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	for i := len(mm.models) - 1; i >= 0; i-- {
		if _, err := mm.db.NewDropTable().Model(mm.models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %s: %w", modelName(mm.models[i]), err)
		}
	}
	return nil
}

func modelName(model interface{}) string {
	t := reflect.TypeOf(model)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
