// Package pg implements a block store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	"github.com/ipfs/go-cid"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/store"
)

var _ dagdelta.Store = &Store{}

// Store is a Postgresql-based block store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blocks` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
//
// BYTEA values sort bytewise, matching the binary order of CIDs.
const Schema = `
CREATE TABLE IF NOT EXISTS blocks (
  cid BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
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
	return aff > 0, errors.Wrap(err, "counting affected rows")
}

// ListCIDs produces all CIDs in the store, in ascending order.
func (s *Store) ListCIDs(ctx context.Context, start cid.Cid, f func(cid.Cid) error) error {
	const q = `SELECT cid FROM blocks WHERE cid > $1 ORDER BY cid`

	var ferr error
	err := sqlutil.ForQueryRows(ctx, s.db, q, start.Bytes(), func(b []byte) error {
		c, err := cid.Cast(b)
		if err != nil {
			return errors.Wrapf(err, "parsing CID %x", b)
		}
		ferr = f(c)
		return ferr
	})
	if ferr != nil {
		return ferr
	}
	return errors.Wrap(err, "listing CIDs")
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (dagdelta.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
