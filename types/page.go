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

import "strings"

// DefaultPageSize is used when a PageRequest carries no usable size.
const DefaultPageSize = 10

// Order is a single sort key, "username DESC" style.
type Order struct {
	Property string
	Desc     bool
}

// ParseOrder parses "prop", "prop ASC" or "prop DESC".
func ParseOrder(s string) Order {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Order{}
	}
	o := Order{Property: fields[0]}
	if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
		o.Desc = true
	}
	return o
}

func (o Order) String() string {
	if o.Desc {
		return o.Property + " DESC"
	}
	return o.Property + " ASC"
}

// PageRequest describes a zero-based page window and optional ordering.
type PageRequest struct {
	page     int
	pageSize int
	orders   []Order
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 0 {
		p.page = 0
	}
	return p.page
}

// Offset is page * size.
func (p *PageRequest) Offset() int {
	return p.GetPage() * p.GetPageSize()
}

// Limit is the page size.
func (p *PageRequest) Limit() int {
	return p.GetPageSize()
}

func (p *PageRequest) GetOrders() []Order {
	return p.orders
}

// WithSize returns a copy whose size is clamped to max when max > 0.
func (p *PageRequest) WithSize(max int) *PageRequest {
	c := *p
	if max > 0 && c.GetPageSize() > max {
		c.pageSize = max
	}
	return &c
}

// NewPageRequest constructs a PageRequest with ordering, e.g. "username DESC".
func NewPageRequest(page int, pageSize int, orders ...string) *PageRequest {
	parsed := make([]Order, 0, len(orders))
	for _, o := range orders {
		if po := ParseOrder(o); po.Property != "" {
			parsed = append(parsed, po)
		}
	}
	return &PageRequest{page: page, pageSize: pageSize, orders: parsed}
}

// NewDefaultPageRequest constructs a PageRequest with no ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize)
}

// Page holds a result window along with the total number of matching rows.
type Page[T any] struct {
	Page     int
	PageSize int
	Total    int64
	Items    []*T
}

// NewDefaultPage constructs an empty page container.
func NewDefaultPage[T any](page int, pageSize int) *Page[T] {
	return &Page[T]{Page: page, PageSize: pageSize, Items: make([]*T, 0)}
}

// TotalPages is ceil(Total / PageSize).
func (p *Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// HasNext reports whether a later page holds rows.
func (p *Page[T]) HasNext() bool {
	return int64((p.Page+1)*p.PageSize) < p.Total
}

// Slice holds a result window and whether more rows follow, without a total.
type Slice[T any] struct {
	Page     int
	PageSize int
	Items    []*T
	HasNext  bool
}

// NewDefaultSlice constructs an empty slice container.
func NewDefaultSlice[T any](page int, pageSize int) *Slice[T] {
	return &Slice[T]{Page: page, PageSize: pageSize, Items: make([]*T, 0)}
}

// Optional wraps a single entity that may be absent.
type Optional[T any] struct {
	value *T
}

func Some[T any](v *T) Optional[T] { return Optional[T]{value: v} }

func None[T any]() Optional[T] { return Optional[T]{} }

func (o Optional[T]) IsPresent() bool { return o.value != nil }

func (o Optional[T]) Get() (*T, bool) { return o.value, o.value != nil }

func (o Optional[T]) OrElse(v *T) *T {
	if o.value == nil {
		return v
	}
	return o.value
}
