// Package sqlite3 implements a block store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	"github.com/ipfs/go-cid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store is a Sqlite-based block store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blocks` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
//
// Blob columns compare with memcmp,
// so ordering by cid orders CIDs in binary order.
const Schema = `
CREATE TABLE IF NOT EXISTS blocks (
  cid BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create the table `blocks`,
// or for that table already to exist with the correct schema.
// (See Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// FetchBlock gets the bytes of the block with the given CID.
func (s *Store) FetchBlock(ctx context.Context, c cid.Cid) ([]byte, error) {
	const q = `SELECT data FROM blocks WHERE cid = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, c.Bytes()).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, dagdelta.ErrNotFound
	}
	return data, errors.Wrapf(err, "querying block %s", c)
}

// PutBlock adds a block to the store if it wasn't already present.
func (s *Store) PutBlock(ctx context.Context, b dagdelta.Block) (bool, error) {
	const q = `INSERT INTO blocks (cid, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, b.CID.Bytes(), b.Data)
	if err != nil {
		return false, errors.Wrap(err, "inserting block")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}

	return aff > 0, nil
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	var ferr error // error from f, returned as is
	do := func(b []byte) error {
		c, err := cid.Cast(b)
		if err != nil {
			return errors.Wrapf(err, "parsing CID %x", b)
		}
		ferr = f(c)
		return ferr
	}

	var err error
	if start.Defined() {
		const q = `SELECT cid FROM blocks WHERE cid > $1 ORDER BY cid`
		err = sqlutil.ForQueryRows(ctx, s.db, q, start.Bytes(), do)
	} else {
		const q = `SELECT cid FROM blocks ORDER BY cid`
		err = sqlutil.ForQueryRows(ctx, s.db, q, do)
	}
	if ferr != nil {
		return ferr
	}
	return errors.Wrap(err, "listing CIDs")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		db.SetMaxOpenConns(1) // Sqlite allows one writer at a time
		return New(ctx, db)
	})
}
