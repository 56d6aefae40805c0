// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aattww/sensors/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	time  TIMESTAMP NOT NULL,
	node  INTEGER   NOT NULL,
	tag   TEXT      NOT NULL,
	value REAL      NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_tag_time ON readings (tag, time);
`

// store appends decoded readings to a SQLite file.
type store struct {
	db *sql.DB
}

func openStore(path string) (*store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &store{db: db}, nil
}

// saveReadings writes one poll cycle's readings in a single transaction.
func (s *store) saveReadings(ctx context.Context, readings []gateway.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO readings (time, node, tag, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.Time, r.Node, r.Tag, r.Value); err != nil {
			return fmt.Errorf("insert reading %s: %w", r.Tag, err)
		}
	}
	return tx.Commit()
}

func (s *store) Close() error {
	return s.db.Close()
}
