// Package store defines interfaces for persistence dependencies (e.g. run
// progress repositories). Implementations live in other packages; this package
// must not import database drivers or concrete clients.
package store
