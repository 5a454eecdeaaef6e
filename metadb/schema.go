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

// Schema bootstrap is intentionally idempotent CREATE TABLE IF NOT EXISTS
// statements, not a migration framework: schema migrations are explicitly
// out of scope for this service (handled by an external collaborator).
const schema = `
CREATE TABLE IF NOT EXISTS files (
	name TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	checksum TEXT NOT NULL,
	uploader TEXT NOT NULL,
	source TEXT NOT NULL,
	create_time TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS instances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL REFERENCES files(name),
	store TEXT NOT NULL,
	path TEXT NOT NULL,
	deletion_policy INTEGER NOT NULL,
	created_time TEXT NOT NULL,
	available INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_instances_file ON instances(file);
CREATE INDEX IF NOT EXISTS idx_instances_store ON instances(store);

CREATE TABLE IF NOT EXISTS remote_instances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL REFERENCES files(name),
	librarian TEXT NOT NULL,
	store_id TEXT NOT NULL,
	copy_time TEXT NOT NULL,
	sender TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_remote_instances_file ON remote_instances(file);

CREATE TABLE IF NOT EXISTS corrupt_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL REFERENCES files(name),
	instance_id INTEGER NOT NULL REFERENCES instances(id),
	observed_size INTEGER NOT NULL,
	observed_checksum TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 1,
	first_observed TEXT NOT NULL,
	last_observed TEXT NOT NULL,
	UNIQUE(file, instance_id)
);

CREATE TABLE IF NOT EXISTS incoming_transfers (
	id TEXT PRIMARY KEY,
	source_peer TEXT NOT NULL DEFAULT '',
	source_transfer_id TEXT,
	status INTEGER NOT NULL,
	store_id TEXT NOT NULL,
	staging_id TEXT NOT NULL DEFAULT '',
	staging_path TEXT NOT NULL,
	store_path TEXT NOT NULL,
	transfer_size INTEGER NOT NULL,
	transfer_checksum TEXT NOT NULL,
	uploader TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT
);
CREATE INDEX IF NOT EXISTS idx_incoming_checksum_dest ON incoming_transfers(transfer_checksum, store_path);
CREATE INDEX IF NOT EXISTS idx_incoming_status ON incoming_transfers(status);

CREATE TABLE IF NOT EXISTS outgoing_transfers (
	id TEXT PRIMARY KEY,
	dest_peer TEXT NOT NULL,
	dest_transfer_id TEXT,
	status INTEGER NOT NULL,
	file TEXT NOT NULL,
	source_path TEXT NOT NULL,
	dest_path TEXT NOT NULL,
	instance_id INTEGER NOT NULL,
	async_manager BLOB,
	transfer_size INTEGER NOT NULL,
	transfer_checksum TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT
);
CREATE INDEX IF NOT EXISTS idx_outgoing_status ON outgoing_transfers(status);
CREATE INDEX IF NOT EXISTS idx_outgoing_dest ON outgoing_transfers(dest_peer);

CREATE TABLE IF NOT EXISTS clone_transfers (
	id TEXT PRIMARY KEY,
	file TEXT NOT NULL,
	from_store TEXT NOT NULL,
	to_store TEXT NOT NULL,
	staging_path TEXT NOT NULL,
	store_path TEXT NOT NULL,
	status INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT
);

CREATE TABLE IF NOT EXISTS send_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	priority INTEGER NOT NULL DEFAULT 0,
	destination TEXT NOT NULL,
	created_time TEXT NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	manager BLOB NOT NULL,
	transfer_ids TEXT NOT NULL, -- JSON array of outgoing_transfers.id
	consumed INTEGER NOT NULL DEFAULT 0,
	consumed_time TEXT,
	completed INTEGER NOT NULL DEFAULT 0,
	completed_time TEXT,
	failed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_send_queue_reservation ON send_queue(consumed, completed, priority, created_time);

CREATE TABLE IF NOT EXISTS errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	severity TEXT NOT NULL,
	category TEXT NOT NULL,
	message TEXT NOT NULL,
	raised_time TEXT NOT NULL,
	cleared_time TEXT,
	cleared INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_errors_cleared ON errors(cleared);
`
