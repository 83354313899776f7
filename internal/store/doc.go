// Package store declares the persistence contracts for run history and the
// entity catalog. Implementations live in internal/storage; this package must
// not import database drivers.
package store
