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
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SendQueueItem is a durable priority-queue row: a batch of OutgoingTransfers
// bound to one destination and one async transfer manager payload.
type SendQueueItem struct {
	Id            int64
	Priority      int
	Destination   string
	CreatedTime   time.Time
	Retries       int
	Manager       []byte
	TransferIds   []uuid.UUID
	Consumed      bool
	ConsumedTime  time.Time
	Completed     bool
	CompletedTime time.Time
	Failed        bool
}

// CreateSendQueueItem inserts a new row with consumed=completed=false.
func (db *DB) CreateSendQueueItem(item SendQueueItem) (int64, error) {
	ids := make([]string, len(item.TransferIds))
	for i, id := range item.TransferIds {
		ids[i] = id.String()
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}
	res, err := db.sql.Exec(`INSERT INTO send_queue
		(priority, destination, created_time, retries, manager, transfer_ids, consumed, completed, failed)
		VALUES (?, ?, ?, 0, ?, ?, 0, 0, 0)`,
		item.Priority, item.Destination, item.CreatedTime.Format(timeLayout), item.Manager, idsJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanSendQueueItem(row interface{ Scan(...any) error }) (SendQueueItem, error) {
	var item SendQueueItem
	var createdTime string
	var consumedTime, completedTime sql.NullString
	var idsJSON []byte
	var consumed, completed, failed bool
	err := row.Scan(&item.Id, &item.Priority, &item.Destination, &createdTime, &item.Retries,
		&item.Manager, &idsJSON, &consumed, &consumedTime, &completed, &completedTime, &failed)
	if err != nil {
		return SendQueueItem{}, err
	}
	item.CreatedTime, _ = time.Parse(timeLayout, createdTime)
	if consumedTime.Valid {
		item.ConsumedTime, _ = time.Parse(timeLayout, consumedTime.String)
	}
	if completedTime.Valid {
		item.CompletedTime, _ = time.Parse(timeLayout, completedTime.String)
	}
	item.Consumed = consumed
	item.Completed = completed
	item.Failed = failed

	var ids []string
	if err := json.Unmarshal(idsJSON, &ids); err != nil {
		return SendQueueItem{}, err
	}
	item.TransferIds = make([]uuid.UUID, len(ids))
	for i, s := range ids {
		item.TransferIds[i] = uuid.MustParse(s)
	}
	return item, nil
}

const sendQueueCols = `id, priority, destination, created_time, retries, manager, transfer_ids,
	consumed, consumed_time, completed, completed_time, failed`

// ReserveNextSendQueueItem selects the oldest-created, highest-priority row
// with consumed=false && completed=false and marks it consumed in the same
// transaction, so concurrent consumer runs never double-claim a row. SQLite
// has no SELECT ... FOR UPDATE SKIP LOCKED; BEGIN IMMEDIATE's reserved lock
// gives the same at-most-one-claimant guarantee (see metadb/db.go).
// Returns (item, false, nil) if no eligible row exists.
func (db *DB) ReserveNextSendQueueItem() (SendQueueItem, bool, error) {
	var item SendQueueItem
	found := false
	err := db.txFunc(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT ` + sendQueueCols + ` FROM send_queue
			WHERE consumed = 0 AND completed = 0
			ORDER BY priority DESC, created_time ASC LIMIT 1`)
		it, err := scanSendQueueItem(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(timeLayout)
		if _, err := tx.Exec(`UPDATE send_queue SET consumed = 1, consumed_time = ? WHERE id = ?`,
			now, it.Id); err != nil {
			return err
		}
		it.Consumed = true
		item = it
		found = true
		return nil
	})
	return item, found, err
}

// UpdateSendQueueManager persists the async manager's updated internal state
// after a successful batch_transfer call (it may now carry a remote task id).
func (db *DB) UpdateSendQueueManager(id int64, manager []byte) error {
	_, err := db.sql.Exec(`UPDATE send_queue SET manager = ? WHERE id = ?`, manager, id)
	return err
}

// IncrementSendQueueRetries bumps the retry counter after a failed
// batch_transfer call. It does not reset consumed, so
// ReserveNextSendQueueItem does not hand the row out again; the row stays in
// ConsumedIncompleteSendQueueItems' set.
func (db *DB) IncrementSendQueueRetries(id int64) error {
	_, err := db.sql.Exec(`UPDATE send_queue SET retries = retries + 1 WHERE id = ?`, id)
	return err
}

// ConsumedIncompleteSendQueueItems returns rows with consumed=true,
// completed=false, the completion checker's working set.
func (db *DB) ConsumedIncompleteSendQueueItems() ([]SendQueueItem, error) {
	rows, err := db.sql.Query(`SELECT ` + sendQueueCols + ` FROM send_queue
		WHERE consumed = 1 AND completed = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SendQueueItem
	for rows.Next() {
		it, err := scanSendQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CompleteSendQueueItem marks a row completed, with failed reflecting whether
// the batch transfer itself succeeded or failed.
func (db *DB) CompleteSendQueueItem(id int64, failed bool) error {
	_, err := db.sql.Exec(`UPDATE send_queue SET completed = 1, completed_time = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), failed, id)
	return err
}
