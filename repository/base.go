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

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/querykit/database"
	"github.com/tomoncle/querykit/metadata"
	"github.com/tomoncle/querykit/types"
)

type baseRepositoryImpl[T any] struct {
	db    *bun.DB
	conn  bun.IDB
	table *schema.Table
}

// NewRepository returns a generic repository backed by the provided Bun DB.
// T must be a bun model with a single-column primary key.
func NewRepository[T any](db *bun.DB) Repository[T] {
	return &baseRepositoryImpl[T]{db: db, conn: db, table: db.Table(reflect.TypeOf((*T)(nil)).Elem())}
}

// NewTxRepository returns a repository of db whose queries all run in tx,
// including the plain CRUD methods.
func NewTxRepository[T any](db *bun.DB, tx bun.Tx) Repository[T] {
	return &baseRepositoryImpl[T]{db: db, conn: tx, table: db.Table(reflect.TypeOf((*T)(nil)).Elem())}
}

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.conn.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.conn.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.conn.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.conn.NewDelete() }

func (r *baseRepositoryImpl[T]) pk() bun.Ident {
	if len(r.table.PKs) == 0 {
		return bun.Ident("id")
	}
	return bun.Ident(r.table.PKs[0].Name)
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.conn.NewSelect().Model(entity).Where("?TableAlias.? = ?", r.pk(), id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(types.ErrNotFound, "%s %v", r.table.TypeName, id)
	}
	if err != nil {
		return nil, database.ClassifyError(err, "")
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.List(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, fn QueryFunc) ([]*T, error) {
	entities := make([]*T, 0)
	query := r.conn.NewSelect().Model(&entities)
	if fn != nil {
		query = fn(query)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, database.ClassifyError(err, "")
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, fn QueryFunc) (int64, error) {
	query := r.conn.NewSelect().Model((*T)(nil))
	if fn != nil {
		query = fn(query)
	}
	n, err := query.Count(ctx)
	if err != nil {
		return 0, database.ClassifyError(err, "")
	}
	return int64(n), nil
}

// Page counts first and skips the content query when the window lies past
// the last row.
func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest, fn QueryFunc) (*types.Page[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(0, types.DefaultPageSize)
	}
	page := types.NewDefaultPage[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := r.Count(ctx, fn)
	if err != nil {
		return nil, err
	}
	page.Total = total
	if total <= int64(pageRequest.Offset()) {
		return page, nil
	}

	entities := make([]*T, 0, pageRequest.Limit())
	query := r.conn.NewSelect().Model(&entities)
	if fn != nil {
		query = fn(query)
	}
	for _, o := range pageRequest.GetOrders() {
		column, err := r.column(o.Property)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		query = query.OrderExpr("?TableAlias.? "+dir, bun.Ident(column))
	}
	err = query.Offset(pageRequest.Offset()).Limit(pageRequest.Limit()).Scan(ctx)
	if err != nil {
		return nil, database.ClassifyError(err, "")
	}
	page.Items = entities
	return page, nil
}

// column resolves a sort property by column name or lowerCamel field name.
func (r *baseRepositoryImpl[T]) column(property string) (string, error) {
	if f, ok := r.table.FieldMap[property]; ok {
		return f.Name, nil
	}
	for _, f := range r.table.Fields {
		if metadata.LowerCamel(f.GoName) == property {
			return f.Name, nil
		}
	}
	return "", &types.InvalidPredicateError{
		Method: "Page",
		Token:  property,
		Reason: fmt.Sprintf("%s has no attribute %q", r.table.TypeName, property),
	}
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, entity ...*T) error {
	return r.CreateWithTx(ctx, bun.Tx{}, entity...)
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, r.conn, fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) error {
	return r.UpdateWithTx(ctx, bun.Tx{}, entity)
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) error {
	return r.DeleteWithTx(ctx, bun.Tx{}, id)
}

// idb returns tx, or the repository's own connection when tx is the zero
// Tx.
func (r *baseRepositoryImpl[T]) idb(tx bun.Tx) bun.IDB {
	if tx.Tx == nil {
		return r.conn
	}
	return tx
}

func (r *baseRepositoryImpl[T]) CreateWithTx(ctx context.Context, tx bun.Tx, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)
	_, err := r.idb(tx).NewInsert().Model(&entities).Exec(ctx)
	return database.ClassifyError(err, "")
}

func (r *baseRepositoryImpl[T]) UpsertWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, entity ...*T) error {
	return r.multipleUpsert(ctx, r.idb(tx), fields, duplicateKeys, entity...)
}

func (r *baseRepositoryImpl[T]) UpdateWithTx(ctx context.Context, tx bun.Tx, entity *T) error {
	_, err := r.idb(tx).NewUpdate().Model(entity).WherePK().Exec(ctx)
	return database.ClassifyError(err, "")
}

func (r *baseRepositoryImpl[T]) DeleteWithTx(ctx context.Context, tx bun.Tx, id any) error {
	_, err := r.idb(tx).NewDelete().Model((*T)(nil)).Where("? = ?", r.pk(), id).Exec(ctx)
	return database.ClassifyError(err, "")
}

func (r *baseRepositoryImpl[T]) multipleUpsert(ctx context.Context, db bun.IDB, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	entities := append([]*T(nil), entity...)
	var err error
	switch {
	case r.db.HasFeature(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, db.NewInsert(), fields, duplicateKeys, entities)
	case r.db.HasFeature(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, db.NewInsert(), fields, entities)
	default:
		err = r.upsertFallback(ctx, db, entities)
	}
	return database.ClassifyError(err, "")
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, entities []*T) error {
	set := make([]string, 0, len(fields))
	for _, field := range fields {
		set = append(set, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	_, err := insertQuery.
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(set, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, insertQuery *bun.InsertQuery, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{string(r.pk())}
	}
	set := make([]string, 0, len(fields))
	for _, field := range fields {
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	_, err := insertQuery.
		Model(&entities).
		On("CONFLICT (" + strings.Join(duplicateKeys, ",") + ") DO UPDATE").
		Set(strings.Join(set, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, entities []*T) error {
	for _, entity := range entities {
		if _, err := db.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := db.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %v", err, updateErr)
			}
		}
	}
	return nil
}
