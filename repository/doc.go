// Package repository provides the generic Bun CRUD repository and
// Declarative, which runs named query methods, derived from their names or
// declared with a SQL template, through the query engine.
package repository
