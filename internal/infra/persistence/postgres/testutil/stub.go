// Package testutil provides an in-memory database/sql driver emulating the
// single state table the postgres store uses, so store behavior is testable
// without a running server.
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

var stubSeq uint64

// StubConn emulates the state table: bucket keyed JSON payloads.
type StubConn struct {
	Execs      []string
	State      map[string][]byte
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
}

// NewStubDB registers a fresh stub driver instance and opens a handle on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported by stub")
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. It recognizes the DDL and the
// bucket upsert the store issues; everything else is accepted as a no-op.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(upper, "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected bucket and payload args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket arg must be a string, got %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload arg must be bytes, got %T", args[1].Value)
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		c.State[bucket] = cp
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for the snapshot select.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	if !strings.Contains(strings.ToUpper(query), "FROM STATE") {
		return nil, fmt.Errorf("stub cannot answer query: %s", query)
	}
	rows := make([][]driver.Value, 0, len(c.State))
	for bucket, payload := range c.State {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		rows = append(rows, []driver.Value{bucket, cp})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

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
