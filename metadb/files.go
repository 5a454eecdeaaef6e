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
	"errors"
	"time"

	"github.com/HERA-Team/librarian-sub000/transfer"
)

const timeLayout = time.RFC3339Nano

// GetFile returns the File named name, or sql.ErrNoRows if it doesn't exist.
func (db *DB) GetFile(name string) (transfer.File, error) {
	var f transfer.File
	var createTime string
	var checksum string
	row := db.sql.QueryRow(`SELECT name, size, checksum, uploader, source, create_time
		FROM files WHERE name = ?`, name)
	if err := row.Scan(&f.Name, &f.Size, &checksum, &f.Uploader, &f.Source, &createTime); err != nil {
		return transfer.File{}, err
	}
	f.Checksum = transfer.Checksum(checksum)
	f.CreateTime, _ = time.Parse(timeLayout, createTime)
	return f, nil
}

// FileExists reports whether a File named name exists.
func (db *DB) FileExists(name string) (bool, error) {
	_, err := db.GetFile(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// CreateFileAndInstance creates a File and its first Instance atomically, as
// required by the upload protocol's ingest step (spec section 4.3(iv)).
func (db *DB) CreateFileAndInstance(f transfer.File, inst transfer.Instance) (int64, error) {
	var instanceId int64
	err := db.txFunc(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO files(name, size, checksum, uploader, source, create_time)
			VALUES (?, ?, ?, ?, ?, ?)`,
			f.Name, f.Size, string(f.Checksum), f.Uploader, f.Source, f.CreateTime.Format(timeLayout))
		if err != nil {
			return err
		}
		res, err := tx.Exec(`INSERT INTO instances(file, store, path, deletion_policy, created_time, available)
			VALUES (?, ?, ?, ?, ?, ?)`,
			inst.File, inst.Store, inst.Path, inst.DeletionPolicy, inst.CreatedTime.Format(timeLayout), inst.Available)
		if err != nil {
			return err
		}
		instanceId, err = res.LastInsertId()
		return err
	})
	return instanceId, err
}

// CreateInstance records a new Instance for an existing File (clone or
// admin-add path, independent of initial upload).
func (db *DB) CreateInstance(inst transfer.Instance) (int64, error) {
	res, err := db.sql.Exec(`INSERT INTO instances(file, store, path, deletion_policy, created_time, available)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inst.File, inst.Store, inst.Path, inst.DeletionPolicy, inst.CreatedTime.Format(timeLayout), inst.Available)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InstancesForFile returns all Instances referencing the named File.
func (db *DB) InstancesForFile(name string) ([]transfer.Instance, error) {
	rows, err := db.sql.Query(`SELECT id, file, store, path, deletion_policy, created_time, available
		FROM instances WHERE file = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.Instance
	for rows.Next() {
		var inst transfer.Instance
		var createdTime string
		if err := rows.Scan(&inst.Id, &inst.File, &inst.Store, &inst.Path,
			&inst.DeletionPolicy, &createdTime, &inst.Available); err != nil {
			return nil, err
		}
		inst.CreatedTime, _ = time.Parse(timeLayout, createdTime)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// RemoteInstancesForFile returns all RemoteInstances referencing the named File.
func (db *DB) RemoteInstancesForFile(name string) ([]transfer.RemoteInstance, error) {
	rows, err := db.sql.Query(`SELECT id, file, librarian, store_id, copy_time, sender
		FROM remote_instances WHERE file = ?`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.RemoteInstance
	for rows.Next() {
		var ri transfer.RemoteInstance
		var copyTime string
		if err := rows.Scan(&ri.Id, &ri.File, &ri.Librarian, &ri.StoreId, &copyTime, &ri.Sender); err != nil {
			return nil, err
		}
		ri.CopyTime, _ = time.Parse(timeLayout, copyTime)
		out = append(out, ri)
	}
	return out, rows.Err()
}

// CreateRemoteInstance records a RemoteInstance, created only on a successful
// peer acknowledgement (spec section 3's global invariant (d)).
func (db *DB) CreateRemoteInstance(ri transfer.RemoteInstance) (int64, error) {
	res, err := db.sql.Exec(`INSERT INTO remote_instances(file, librarian, store_id, copy_time, sender)
		VALUES (?, ?, ?, ?, ?)`,
		ri.File, ri.Librarian, ri.StoreId, ri.CopyTime.Format(timeLayout), ri.Sender)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteRemoteInstance removes a RemoteInstance row (used to prune duplicates).
func (db *DB) DeleteRemoteInstance(id int64) error {
	_, err := db.sql.Exec(`DELETE FROM remote_instances WHERE id = ?`, id)
	return err
}

// SetInstanceAvailable updates an Instance's availability flag (RollingDeletion's
// "mark_unavailable" path).
func (db *DB) SetInstanceAvailable(id int64, available bool) error {
	_, err := db.sql.Exec(`UPDATE instances SET available = ? WHERE id = ?`, available, id)
	return err
}

// DeleteInstance physically removes an Instance row (RollingDeletion's
// "force_deletion" path).
func (db *DB) DeleteInstance(id int64) error {
	_, err := db.sql.Exec(`DELETE FROM instances WHERE id = ?`, id)
	return err
}

// DeleteFileAndInstance removes a File and one of its Instances atomically,
// the rollback counterpart to CreateFileAndInstance used when ingest fails
// to commit bytes after already recording the rows (ingest.Run step (v)).
func (db *DB) DeleteFileAndInstance(name string, instanceId int64) error {
	return db.txFunc(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM instances WHERE id = ?`, instanceId); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM files WHERE name = ?`, name)
		return err
	})
}

// InstancesOnStoreOlderThan returns available Instances on store whose File
// was created before cutoff (used by CheckIntegrity and RollingDeletion).
func (db *DB) InstancesOnStoreOlderThan(store string, cutoff time.Time) ([]transfer.Instance, error) {
	rows, err := db.sql.Query(`SELECT i.id, i.file, i.store, i.path, i.deletion_policy, i.created_time, i.available
		FROM instances i JOIN files f ON f.name = i.file
		WHERE i.store = ? AND i.available = 1 AND f.create_time <= ?`,
		store, cutoff.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.Instance
	for rows.Next() {
		var inst transfer.Instance
		var createdTime string
		if err := rows.Scan(&inst.Id, &inst.File, &inst.Store, &inst.Path,
			&inst.DeletionPolicy, &createdTime, &inst.Available); err != nil {
			return nil, err
		}
		inst.CreatedTime, _ = time.Parse(timeLayout, createdTime)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetInstance returns the Instance with the given id.
func (db *DB) GetInstance(id int64) (transfer.Instance, error) {
	var inst transfer.Instance
	var createdTime string
	row := db.sql.QueryRow(`SELECT id, file, store, path, deletion_policy, created_time, available
		FROM instances WHERE id = ?`, id)
	if err := row.Scan(&inst.Id, &inst.File, &inst.Store, &inst.Path,
		&inst.DeletionPolicy, &createdTime, &inst.Available); err != nil {
		return transfer.Instance{}, err
	}
	inst.CreatedTime, _ = time.Parse(timeLayout, createdTime)
	return inst, nil
}

// SearchFiles returns Files whose name matches pattern (a glob using * and ?,
// translated to a SQL LIKE), most recently created first, capped at limit
// rows (spec section 6's /search/file, bounded by the server's max_search_results).
func (db *DB) SearchFiles(pattern string, limit int) ([]transfer.File, error) {
	like := globToLike(pattern)
	rows, err := db.sql.Query(`SELECT name, size, checksum, uploader, source, create_time
		FROM files WHERE name LIKE ? ESCAPE '\' ORDER BY create_time DESC LIMIT ?`, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.File
	for rows.Next() {
		var f transfer.File
		var createTime, checksum string
		if err := rows.Scan(&f.Name, &f.Size, &checksum, &f.Uploader, &f.Source, &createTime); err != nil {
			return nil, err
		}
		f.Checksum = transfer.Checksum(checksum)
		f.CreateTime, _ = time.Parse(timeLayout, createTime)
		out = append(out, f)
	}
	return out, rows.Err()
}

// globToLike translates a shell-style glob (* and ?) into a SQL LIKE pattern,
// escaping LIKE's own metacharacters so a literal '%' or '_' in pattern
// matches literally rather than as a wildcard.
func globToLike(pattern string) string {
	var b []byte
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b = append(b, '%')
		case '?':
			b = append(b, '_')
		case '%', '_', '\\':
			b = append(b, '\\', c)
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

// InstancesOnStoreWithinAge returns available Instances on store whose File
// was created at or after since (CheckIntegrity's recency window).
func (db *DB) InstancesOnStoreWithinAge(store string, since time.Time) ([]transfer.Instance, error) {
	rows, err := db.sql.Query(`SELECT i.id, i.file, i.store, i.path, i.deletion_policy, i.created_time, i.available
		FROM instances i JOIN files f ON f.name = i.file
		WHERE i.store = ? AND i.available = 1 AND f.create_time >= ?`,
		store, since.Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []transfer.Instance
	for rows.Next() {
		var inst transfer.Instance
		var createdTime string
		if err := rows.Scan(&inst.Id, &inst.File, &inst.Store, &inst.Path,
			&inst.DeletionPolicy, &createdTime, &inst.Available); err != nil {
			return nil, err
		}
		inst.CreatedTime, _ = time.Parse(timeLayout, createdTime)
		out = append(out, inst)
	}
	return out, rows.Err()
}
