// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const dbAPIversion = "1"

const defaultMaxKeys = 100000

// NewDB new log database.
func NewDB(dbPath string, wg *sync.WaitGroup) *DB {
	return &DB{
		dbPath:  dbPath,
		maxKeys: defaultMaxKeys,

		wg:     wg,
		saveWG: &sync.WaitGroup{},
	}
}

// DB log database.
type DB struct {
	dbPath  string
	maxKeys int

	db *bolt.DB
	wg *sync.WaitGroup

	// Wait for last log to be saved before losing db.
	saveWG *sync.WaitGroup

	// Keep keys unique when two entries share a timestamp.
	prevTime UnixMicro
}

// Init initialize database.
func (logDB *DB) Init(ctx context.Context) error {
	dbOpts := &bolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bolt.Open(logDB.dbPath, 0o600, dbOpts)
	if err != nil {
		return fmt.Errorf("open database: %w: %v", err, logDB.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dbAPIversion))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create bucket: %v, %w", dbAPIversion, err)
	}

	logDB.db = db

	logDB.wg.Add(1)
	go func() {
		<-ctx.Done()
		logDB.saveWG.Wait()
		db.Close()
		logDB.wg.Done()
	}()

	return nil
}

// SaveLogs saves logs from the logger into the database.
func (logDB *DB) SaveLogs(ctx context.Context, l *Logger) {
	feed, cancel := l.Subscribe()
	defer cancel()

	logDB.saveWG.Add(1)
	defer logDB.saveWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case log, ok := <-feed:
			if !ok {
				return
			}
			if err := logDB.saveLog(log); err != nil {
				fmt.Fprintf(os.Stderr, "could not save log: %v %v\n", log.Msg, err)
			}
		}
	}
}

func (logDB *DB) saveLog(log Log) error {
	if log.Time <= logDB.prevTime {
		log.Time = logDB.prevTime + 1
	}
	logDB.prevTime = log.Time

	key := encodeKey(uint64(log.Time))
	value, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}

	return logDB.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))

		if b.Stats().KeyN >= logDB.maxKeys {
			if err := deleteFirstKey(b); err != nil {
				return fmt.Errorf("delete first key: %w", err)
			}
		}
		return b.Put(key, value)
	})
}

func deleteFirstKey(b *bolt.Bucket) error {
	k, _ := b.Cursor().First()
	if k == nil {
		return nil
	}
	return b.Delete(k)
}

// Query database query.
type Query struct {
	Levels     []Level
	Time       UnixMicro // Only return entries before this time.
	Sources    []string
	Recordings []string
	Limit      int
}

// Query logs in database, newest first.
func (logDB *DB) Query(q Query) ([]Log, error) {
	var logs []Log

	limit := q.Limit
	if limit == 0 {
		limit = defaultMaxKeys
	}

	err := logDB.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))
		c := b.Cursor()

		filterLog := func(rawLog []byte) error {
			var log Log
			if err := json.Unmarshal(rawLog, &log); err != nil {
				return fmt.Errorf("unmarshal log: %w", err)
			}

			if !LevelInLevels(log.Level, q.Levels) {
				return nil
			}
			if !StringInStrings(log.Src, q.Sources) {
				return nil
			}
			if !StringInStrings(log.Recording, q.Recordings) {
				return nil
			}

			logs = append(logs, log)
			return nil
		}

		var key, value []byte
		if q.Time == 0 {
			key, value = c.Last()
		} else {
			// Seek lands on the first key >= time, step back once.
			k, _ := c.Seek(encodeKey(uint64(q.Time)))
			if k == nil {
				key, value = c.Last()
			} else {
				key, value = c.Prev()
			}
		}

		for key != nil && len(logs) < limit {
			if err := filterLog(value); err != nil {
				return err
			}
			key, value = c.Prev()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return logs, nil
}

// LevelInLevels returns true if level is in levels or if levels is nil.
func LevelInLevels(level Level, levels []Level) bool {
	if levels == nil {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// StringInStrings returns true if s is in list or if list is nil.
func StringInStrings(s string, list []string) bool {
	if list == nil {
		return true
	}
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func encodeKey(key uint64) []byte {
	output := make([]byte, 8)
	binary.BigEndian.PutUint64(output, key)
	return output
}

