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

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

func (db *DB) CreateCloneTransfer(ct transfer.CloneTransfer) error {
	_, err := db.sql.Exec(`INSERT INTO clone_transfers
		(id, file, from_store, to_store, staging_path, store_path, status, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ct.Id.String(), ct.File, ct.FromStore, ct.ToStore, ct.StagingPath, ct.StorePath,
		int(ct.Status), ct.StartTime.Format(timeLayout), nullTime(ct.EndTime))
	return err
}

func (db *DB) SetCloneTransferStatus(id uuid.UUID, to transfer.Status) error {
	return db.txFunc(func(tx *sql.Tx) error {
		var statusInt int
		if err := tx.QueryRow(`SELECT status FROM clone_transfers WHERE id = ?`, id.String()).
			Scan(&statusInt); err != nil {
			return err
		}
		from := transfer.Status(statusInt)
		if !transfer.CanTransition(from, to) {
			return transfer.IllegalTransitionError{Id: id, From: from, To: to}
		}
		endTime := any(nil)
		if to.IsTerminal() || to == transfer.Completed {
			endTime = time.Now().UTC().Format(timeLayout)
		}
		_, err := tx.Exec(`UPDATE clone_transfers SET status = ?, end_time = COALESCE(?, end_time) WHERE id = ?`,
			int(to), endTime, id.String())
		return err
	})
}

// FilesLackingInstanceOn returns Files that have an Instance on `from` but
// none on any store in `to`, the CreateLocalClone task's candidate set.
func (db *DB) FilesLackingInstanceOn(from string, to []string, since time.Time, limit int) ([]transfer.File, error) {
	if len(to) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := []any{from}
	for i, store := range to {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, store)
	}
	args = append(args, since.Format(timeLayout), limit)

	query := `
		SELECT DISTINCT f.name, f.size, f.checksum, f.uploader, f.source, f.create_time
		FROM files f
		JOIN instances i ON i.file = f.name AND i.store = ? AND i.available = 1
		WHERE NOT EXISTS (
			SELECT 1 FROM instances i2
			WHERE i2.file = f.name AND i2.store IN (` + placeholders + `) AND i2.available = 1
		) AND f.create_time >= ?
		ORDER BY f.create_time ASC
		LIMIT ?`
	rows, err := db.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.File
	for rows.Next() {
		var f transfer.File
		var checksum, createTime string
		if err := rows.Scan(&f.Name, &f.Size, &checksum, &f.Uploader, &f.Source, &createTime); err != nil {
			return nil, err
		}
		f.Checksum = transfer.Checksum(checksum)
		f.CreateTime, _ = time.Parse(timeLayout, createTime)
		out = append(out, f)
	}
	return out, rows.Err()
}
