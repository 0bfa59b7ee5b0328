// Package database provides connection management, configuration loading,
// table creation for registered models, query hooks, logging and the bun
// storage the query engine executes on.
package database
