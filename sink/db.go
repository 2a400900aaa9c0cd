/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sink archives delivered envelopes.
package sink

import (
	"database/sql"
	"fmt"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/utils/json"
	"github.com/framepipe/framepipe/utils/str"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Config for the database sink.
type Config struct {
	// Driver is mysql or postgres
	Driver string `yaml:"driver"`
	// Dsn is the driver-specific data source name
	Dsn string `yaml:"dsn"`
	// Table defaults to envelopes
	Table string `yaml:"table"`
}

// DBSink stores envelopes in a relational table. Empty envelopes are
// skipped; the archive holds data, not lifecycle markers.
type DBSink struct {
	config Config
	logger types.Logger
	db     *sql.DB
	insert string
}

// Open connects and ensures the target table exists.
func Open(config Config, logger types.Logger) (*DBSink, error) {
	if config.Driver != "mysql" && config.Driver != "postgres" {
		return nil, fmt.Errorf("db sink: unsupported driver: %s", config.Driver)
	}
	if config.Table == "" {
		config.Table = "envelopes"
	}
	db, err := sql.Open(config.Driver, config.Dsn)
	if err != nil {
		return nil, err
	}
	s := &DBSink{
		config: config,
		logger: types.NewLogger(logger),
		db:     db,
		insert: insertStatement(config.Driver, config.Table),
	}
	if _, err := db.Exec(createStatement(config.Table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db sink: create table: %w", err)
	}
	return s, nil
}

func createStatement(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + table +
		" (id VARCHAR(36) PRIMARY KEY, sequence BIGINT NOT NULL, ts BIGINT NOT NULL, frame TEXT NOT NULL)"
}

func insertStatement(driver, table string) string {
	return str.ConvertDollarPlaceholder(
		"INSERT INTO "+table+" (id, sequence, ts, frame) VALUES (?, ?, ?, ?)", driver)
}

// Store archives one envelope.
func (s *DBSink) Store(env types.Envelope) error {
	if env.Empty() {
		return nil
	}
	frame, err := json.Marshal(env.Frame)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(s.insert, env.Id, env.Sequence, env.Ts, string(frame))
	return err
}

// Close closes the database handle.
func (s *DBSink) Close() error {
	return s.db.Close()
}
