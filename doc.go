// Package fluentsql is a small query-construction and execution layer over
// database/sql and pgx. It turns :named placeholders into dialect-specific
// positional ones (expanding IN (:ids) automatically), binds values through a
// registry of per-type parameter setters, runs single, batch and callable
// statements, and scans rows into structs.
//
// A template is lexed once and cached; quoted strings, quoted identifiers and
// comments never yield placeholders:
//
//	fs := fluentsql.New(fluentsql.Postgres)
//	var users []User
//	err := fs.Query(`SELECT id, name FROM users WHERE id IN (:ids) AND name <> ':ids'`).
//		NamedParam("ids", []int{1, 2, 3}).
//		ScanAll(ctx, fluentsql.SQL(db), &users)
//
// Builders are single-use: a second execution returns ErrAlreadyExecuted,
// and mixing Param and NamedParam on one builder returns
// ErrMixedParameterMode.
package fluentsql
