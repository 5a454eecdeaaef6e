// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package metadb

import (
	"database/sql"
	"time"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

// CreateOrIncrementCorruptFile records a checksum/size mismatch found for
// (file, instance), incrementing Count if a row already exists (CheckIntegrity,
// spec section 4.6).
func (db *DB) CreateOrIncrementCorruptFile(file string, instanceId int64, size int64, checksum transfer.Checksum) error {
	now := time.Now().UTC().Format(timeLayout)
	return db.txFunc(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE corrupt_files
			SET count = count + 1, observed_size = ?, observed_checksum = ?, last_observed = ?
			WHERE file = ? AND instance_id = ?`,
			size, string(checksum), now, file, instanceId)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.Exec(`INSERT INTO corrupt_files
			(file, instance_id, observed_size, observed_checksum, count, first_observed, last_observed)
			VALUES (?, ?, ?, ?, 1, ?, ?)`,
			file, instanceId, size, string(checksum), now, now)
		return err
	})
}

// CorruptFileForInstance returns the transfer.CorruptFile tracking
// instanceId, if one has been recorded.
func (db *DB) CorruptFileForInstance(instanceId int64) (transfer.CorruptFile, bool, error) {
	var r transfer.CorruptFile
	var checksum, firstObserved, lastObserved string
	row := db.sql.QueryRow(`SELECT id, file, instance_id, observed_size, observed_checksum,
		count, first_observed, last_observed FROM corrupt_files WHERE instance_id = ?`, instanceId)
	err := row.Scan(&r.Id, &r.File, &r.InstanceId, &r.ObservedSize, &checksum, &r.Count, &firstObserved, &lastObserved)
	if err == sql.ErrNoRows {
		return transfer.CorruptFile{}, false, nil
	}
	if err != nil {
		return transfer.CorruptFile{}, false, err
	}
	r.ObservedSum = transfer.Checksum(checksum)
	r.FirstObserved, _ = time.Parse(timeLayout, firstObserved)
	r.LastObserved, _ = time.Parse(timeLayout, lastObserved)
	return r, true, nil
}

// DeleteCorruptFile removes a corrupt_files row, called once its Instance
// has been dealt with (deleted by RollingDeletion's force_deletion path, or
// re-verified clean) and the record has been archived to the journal.
func (db *DB) DeleteCorruptFile(id int64) error {
	_, err := db.sql.Exec(`DELETE FROM corrupt_files WHERE id = ?`, id)
	return err
}

// RecordError inserts a durable Error row.
func (db *DB) RecordError(severity, category, message string) (int64, error) {
	res, err := db.sql.Exec(`INSERT INTO errors(severity, category, message, raised_time, cleared)
		VALUES (?, ?, ?, ?, 0)`, severity, category, message, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ClearError marks an Error row cleared.
func (db *DB) ClearError(id int64) error {
	_, err := db.sql.Exec(`UPDATE errors SET cleared = 1, cleared_time = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id)
	return err
}

type ErrorRecord struct {
	Id          int64
	Severity    string
	Category    string
	Message     string
	RaisedTime  time.Time
	ClearedTime time.Time
	Cleared     bool
}

// SearchErrors returns Error rows, optionally restricted to uncleared ones.
func (db *DB) SearchErrors(onlyUncleared bool) ([]ErrorRecord, error) {
	query := `SELECT id, severity, category, message, raised_time, cleared_time, cleared FROM errors`
	if onlyUncleared {
		query += ` WHERE cleared = 0`
	}
	query += ` ORDER BY raised_time DESC`
	rows, err := db.sql.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ErrorRecord
	for rows.Next() {
		var e ErrorRecord
		var raisedTime string
		var clearedTime sql.NullString
		if err := rows.Scan(&e.Id, &e.Severity, &e.Category, &e.Message, &raisedTime, &clearedTime, &e.Cleared); err != nil {
			return nil, err
		}
		e.RaisedTime, _ = time.Parse(timeLayout, raisedTime)
		if clearedTime.Valid {
			e.ClearedTime, _ = time.Parse(timeLayout, clearedTime.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
