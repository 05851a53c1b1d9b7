// Package testutil provides a stub database/sql driver for postgres store
// tests. It understands the handful of statements the store issues against
// the objects table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// StubConn records statements and keeps object rows keyed by id.
type StubConn struct {
	Execs      []string
	Rows       map[string]Row
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	Committed  int
	RolledBack int
}

// Row is a stored objects row.
type Row struct {
	Type    string
	Payload []byte
}

var seq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]Row)}
	name := fmt.Sprintf("stubpg%d", seq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "INSERT INTO OBJECTS"):
		if len(args) != 3 {
			return nil, fmt.Errorf("insert expects 3 args, got %d", len(args))
		}
		id, _ := args[0].Value.(string)
		typ, _ := args[1].Value.(string)
		payload, _ := args[2].Value.([]byte)
		c.Rows[id] = Row{Type: typ, Payload: append([]byte(nil), payload...)}
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(verb, "DELETE FROM OBJECTS"):
		id, _ := args[0].Value.(string)
		if _, ok := c.Rows[id]; !ok {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, id)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for single-row payload lookups.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToUpper(query), "FROM OBJECTS WHERE ID") || len(args) != 1 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	id, _ := args[0].Value.(string)
	rows := &stubRows{cols: []string{"payload"}}
	if row, ok := c.Rows[id]; ok {
		rows.rows = [][]driver.Value{{row.Payload}}
	}
	return rows, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Committed++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.RolledBack++
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
