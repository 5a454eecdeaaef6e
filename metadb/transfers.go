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

func nullUUIDToString(u uuid.NullUUID) sql.NullString {
	if !u.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: u.UUID.String(), Valid: true}
}

func stringToNullUUID(s sql.NullString) uuid.NullUUID {
	if !s.Valid {
		return uuid.NullUUID{}
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

// CreateIncomingTransfer inserts a new IncomingTransfer row with the status
// it carries.
func (db *DB) CreateIncomingTransfer(it transfer.IncomingTransfer) error {
	_, err := db.sql.Exec(`INSERT INTO incoming_transfers
		(id, source_peer, source_transfer_id, status, store_id, staging_id, staging_path, store_path,
		 transfer_size, transfer_checksum, uploader, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Id.String(), it.SourcePeer, nullUUIDToString(it.SourceTransferId), int(it.Status),
		it.StoreId, it.StagingId, it.StagingPath, it.StorePath, it.TransferSize, string(it.TransferChecksum),
		it.Uploader, it.StartTime.Format(timeLayout), nullTime(it.EndTime))
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(timeLayout)
}

func scanIncoming(row interface{ Scan(...any) error }) (transfer.IncomingTransfer, error) {
	var it transfer.IncomingTransfer
	var id, checksum string
	var statusInt int
	var sourceTransferId sql.NullString
	var startTime string
	var endTime sql.NullString
	err := row.Scan(&id, &it.SourcePeer, &sourceTransferId, &statusInt, &it.StoreId,
		&it.StagingId, &it.StagingPath, &it.StorePath, &it.TransferSize, &checksum, &it.Uploader,
		&startTime, &endTime)
	if err != nil {
		return transfer.IncomingTransfer{}, err
	}
	it.Id = uuid.MustParse(id)
	it.SourceTransferId = stringToNullUUID(sourceTransferId)
	it.Status = transfer.Status(statusInt)
	it.TransferChecksum = transfer.Checksum(checksum)
	it.StartTime, _ = time.Parse(timeLayout, startTime)
	if endTime.Valid {
		it.EndTime, _ = time.Parse(timeLayout, endTime.String)
	}
	return it, nil
}

const incomingCols = `id, source_peer, source_transfer_id, status, store_id, staging_id, staging_path, store_path,
	transfer_size, transfer_checksum, uploader, start_time, end_time`

// GetIncomingTransfer returns the IncomingTransfer with the given id.
func (db *DB) GetIncomingTransfer(id uuid.UUID) (transfer.IncomingTransfer, error) {
	row := db.sql.QueryRow(`SELECT `+incomingCols+` FROM incoming_transfers WHERE id = ?`, id.String())
	return scanIncoming(row)
}

// NonTerminalIncomingTransferByChecksumDest finds a non-terminal
// IncomingTransfer with the given (checksum, destination), used to detect
// double-uploads and double-sends (spec sections 4.3 and 4.4).
func (db *DB) NonTerminalIncomingTransferByChecksumDest(checksum transfer.Checksum, destPath string) (transfer.IncomingTransfer, bool, error) {
	row := db.sql.QueryRow(`SELECT `+incomingCols+` FROM incoming_transfers
		WHERE transfer_checksum = ? AND store_path = ? AND status NOT IN (?, ?, ?)
		ORDER BY start_time DESC LIMIT 1`,
		string(checksum), destPath, int(transfer.Completed), int(transfer.Failed), int(transfer.Cancelled))
	it, err := scanIncoming(row)
	if err == sql.ErrNoRows {
		return transfer.IncomingTransfer{}, false, nil
	}
	if err != nil {
		return transfer.IncomingTransfer{}, false, err
	}
	return it, true, nil
}

// SetIncomingTransferStatus updates an IncomingTransfer's status, guarded by
// transfer.CanTransition.
func (db *DB) SetIncomingTransferStatus(id uuid.UUID, to transfer.Status) error {
	return db.txFunc(func(tx *sql.Tx) error {
		var statusInt int
		if err := tx.QueryRow(`SELECT status FROM incoming_transfers WHERE id = ?`, id.String()).
			Scan(&statusInt); err != nil {
			return err
		}
		from := transfer.Status(statusInt)
		if !transfer.CanTransition(from, to) {
			return transfer.IllegalTransitionError{Id: id, From: from, To: to}
		}
		endTime := any(nil)
		if to.IsTerminal() || to == transfer.Staged || to == transfer.Completed {
			endTime = time.Now().UTC().Format(timeLayout)
		}
		_, err := tx.Exec(`UPDATE incoming_transfers SET status = ?, end_time = COALESCE(?, end_time) WHERE id = ?`,
			int(to), endTime, id.String())
		return err
	})
}

// SetIncomingTransferSourceId records the source peer's transfer id once
// known (clone protocol correlation).
func (db *DB) SetIncomingTransferSourceId(id uuid.UUID, sourceId uuid.UUID) error {
	_, err := db.sql.Exec(`UPDATE incoming_transfers SET source_transfer_id = ? WHERE id = ?`,
		sourceId.String(), id.String())
	return err
}

// IncomingTransfersByStatus returns IncomingTransfers in the given status.
func (db *DB) IncomingTransfersByStatus(status transfer.Status) ([]transfer.IncomingTransfer, error) {
	rows, err := db.sql.Query(`SELECT `+incomingCols+` FROM incoming_transfers WHERE status = ?`, int(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.IncomingTransfer
	for rows.Next() {
		it, err := scanIncoming(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// StaleNonTerminalIncomingTransfers returns IncomingTransfers still
// non-terminal whose start_time is older than cutoff (IncomingTransferHypervisor).
func (db *DB) StaleNonTerminalIncomingTransfers(cutoff time.Time) ([]transfer.IncomingTransfer, error) {
	rows, err := db.sql.Query(`SELECT `+incomingCols+` FROM incoming_transfers
		WHERE status NOT IN (?, ?, ?) AND start_time <= ?`,
		int(transfer.Completed), int(transfer.Failed), int(transfer.Cancelled), cutoff.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.IncomingTransfer
	for rows.Next() {
		it, err := scanIncoming(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ---- OutgoingTransfer ----

func (db *DB) CreateOutgoingTransfer(ot transfer.OutgoingTransfer) error {
	_, err := db.sql.Exec(`INSERT INTO outgoing_transfers
		(id, dest_peer, dest_transfer_id, status, file, source_path, dest_path, instance_id,
		 async_manager, transfer_size, transfer_checksum, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ot.Id.String(), ot.DestPeer, nullUUIDToString(ot.DestTransferId), int(ot.Status),
		ot.File, ot.SourcePath, ot.DestPath, ot.InstanceId, ot.AsyncManager,
		ot.TransferSize, string(ot.TransferChecksum), ot.StartTime.Format(timeLayout), nullTime(ot.EndTime))
	return err
}

const outgoingCols = `id, dest_peer, dest_transfer_id, status, file, source_path, dest_path, instance_id,
	async_manager, transfer_size, transfer_checksum, start_time, end_time`

func scanOutgoing(row interface{ Scan(...any) error }) (transfer.OutgoingTransfer, error) {
	var ot transfer.OutgoingTransfer
	var id string
	var destTransferId sql.NullString
	var statusInt int
	var checksum string
	var startTime string
	var endTime sql.NullString
	err := row.Scan(&id, &ot.DestPeer, &destTransferId, &statusInt, &ot.File, &ot.SourcePath,
		&ot.DestPath, &ot.InstanceId, &ot.AsyncManager, &ot.TransferSize, &checksum,
		&startTime, &endTime)
	if err != nil {
		return transfer.OutgoingTransfer{}, err
	}
	ot.Id = uuid.MustParse(id)
	ot.DestTransferId = stringToNullUUID(destTransferId)
	ot.Status = transfer.Status(statusInt)
	ot.TransferChecksum = transfer.Checksum(checksum)
	ot.StartTime, _ = time.Parse(timeLayout, startTime)
	if endTime.Valid {
		ot.EndTime, _ = time.Parse(timeLayout, endTime.String)
	}
	return ot, nil
}

func (db *DB) GetOutgoingTransfer(id uuid.UUID) (transfer.OutgoingTransfer, error) {
	row := db.sql.QueryRow(`SELECT `+outgoingCols+` FROM outgoing_transfers WHERE id = ?`, id.String())
	return scanOutgoing(row)
}

// OutgoingTransferByDestTransferId finds the OutgoingTransfer whose
// dest_transfer_id matches the peer-assigned id, as used by clone/complete.
func (db *DB) OutgoingTransferByDestTransferId(destId uuid.UUID) (transfer.OutgoingTransfer, bool, error) {
	row := db.sql.QueryRow(`SELECT `+outgoingCols+` FROM outgoing_transfers WHERE dest_transfer_id = ?`,
		destId.String())
	ot, err := scanOutgoing(row)
	if err == sql.ErrNoRows {
		return transfer.OutgoingTransfer{}, false, nil
	}
	if err != nil {
		return transfer.OutgoingTransfer{}, false, err
	}
	return ot, true, nil
}

func (db *DB) SetOutgoingTransferStatus(id uuid.UUID, to transfer.Status) error {
	return db.txFunc(func(tx *sql.Tx) error {
		var statusInt int
		if err := tx.QueryRow(`SELECT status FROM outgoing_transfers WHERE id = ?`, id.String()).
			Scan(&statusInt); err != nil {
			return err
		}
		from := transfer.Status(statusInt)
		if !transfer.CanTransition(from, to) {
			return transfer.IllegalTransitionError{Id: id, From: from, To: to}
		}
		endTime := any(nil)
		if to.IsTerminal() || to == transfer.Staged || to == transfer.Completed {
			endTime = time.Now().UTC().Format(timeLayout)
		}
		_, err := tx.Exec(`UPDATE outgoing_transfers SET status = ?, end_time = COALESCE(?, end_time) WHERE id = ?`,
			int(to), endTime, id.String())
		return err
	})
}

func (db *DB) SetOutgoingTransferDestId(id uuid.UUID, destId uuid.UUID) error {
	_, err := db.sql.Exec(`UPDATE outgoing_transfers SET dest_transfer_id = ? WHERE id = ?`,
		destId.String(), id.String())
	return err
}

// FilesNeedingSend returns Files younger than cutoff that lack both a
// RemoteInstance at destination and a non-terminal OutgoingTransfer to
// destination, the SendClone task's candidate set.
func (db *DB) FilesNeedingSend(destination string, since time.Time, limit int) ([]transfer.File, error) {
	rows, err := db.sql.Query(`
		SELECT f.name, f.size, f.checksum, f.uploader, f.source, f.create_time
		FROM files f
		WHERE f.create_time >= ?
		  AND NOT EXISTS (SELECT 1 FROM remote_instances ri WHERE ri.file = f.name AND ri.librarian = ?)
		  AND NOT EXISTS (
		        SELECT 1 FROM outgoing_transfers ot
		        WHERE ot.file = f.name AND ot.dest_peer = ? AND ot.status NOT IN (?, ?, ?)
		  )
		ORDER BY f.create_time ASC
		LIMIT ?`,
		since.Format(timeLayout), destination, destination,
		int(transfer.Completed), int(transfer.Failed), int(transfer.Cancelled), limit)
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

// StaleNonTerminalOutgoingTransfers returns OutgoingTransfers still
// non-terminal whose start_time is older than cutoff (OutgoingTransferHypervisor).
func (db *DB) StaleNonTerminalOutgoingTransfers(cutoff time.Time) ([]transfer.OutgoingTransfer, error) {
	rows, err := db.sql.Query(`SELECT `+outgoingCols+` FROM outgoing_transfers
		WHERE status NOT IN (?, ?, ?) AND start_time <= ?`,
		int(transfer.Completed), int(transfer.Failed), int(transfer.Cancelled), cutoff.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.OutgoingTransfer
	for rows.Next() {
		ot, err := scanOutgoing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ot)
	}
	return out, rows.Err()
}
