package fluentsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transaction runs fn inside a database/sql transaction opened with
// Config.TxOptions. The transaction is committed if fn returns nil and
// rolled back otherwise, including on panic.
func (s *FluentSQL) Transaction(ctx context.Context, db *sql.DB, fn func(conn Conn) error) (err error) {
	tx, err := db.BeginTx(ctx, s.config.TxOptions)
	if err != nil {
		return fmt.Errorf("fluentsql: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(SQL(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("fluentsql: rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fluentsql: commit: %w", err)
	}
	return nil
}

// pgxBeginner abstracts *pgxpool.Pool and *pgx.Conn.
type pgxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PgxTransaction runs fn inside a pgx transaction opened with the
// equivalent of Config.TxOptions.
func (s *FluentSQL) PgxTransaction(ctx context.Context, db pgxBeginner, fn func(conn Conn) error) error {
	return pgx.BeginTxFunc(ctx, db, pgxTxOptions(s.config.TxOptions), func(tx pgx.Tx) error {
		return fn(Pgx(tx))
	})
}

// pgxTxOptions maps database/sql transaction options to pgx ones.
func pgxTxOptions(o *sql.TxOptions) pgx.TxOptions {
	var opts pgx.TxOptions
	if o == nil {
		return opts
	}
	switch o.Isolation {
	case sql.LevelReadUncommitted:
		opts.IsoLevel = pgx.ReadUncommitted
	case sql.LevelReadCommitted:
		opts.IsoLevel = pgx.ReadCommitted
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		opts.IsoLevel = pgx.RepeatableRead
	case sql.LevelSerializable, sql.LevelLinearizable:
		opts.IsoLevel = pgx.Serializable
	}
	if o.ReadOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	return opts
}
