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

package journal

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/HERA-Team/librarian-sub000/config"
)

// Entry is a write-once archival record of a diagnostic event that metadb's
// live errors/corrupt_files tables have finished tracking: an Error row
// that was cleared, or a CorruptFile row whose Instance was finally
// deleted or re-verified clean. metadb stays the queryable, mutable "what's
// wrong right now" store; the journal is the durable "what happened"
// history, the same split the teacher's journal.go drew between live
// transfer state and a write-once record of every completed transfer.
type Entry struct {
	// Kind is "error" or "corrupt_file".
	Kind string
	// SourceId is the metadb row id this entry archives (errors.id or
	// corrupt_files.id).
	SourceId int64
	File     string // set for "corrupt_file" entries
	Severity string // set for "error" entries
	Category string
	Message  string
	RaisedTime   time.Time
	ResolvedTime time.Time
}

// Init opens the journal, starting its background goroutine. Init is
// idempotent.
func Init() error {
	if !IsOpen() {
		go journalProcess()
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Finalize closes the journal if it's open.
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// IsOpen reports whether the journal is open for reading and writing.
func IsOpen() bool {
	if channels_.Open {
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second):
			closeChannels()
			return false
		}
	}
	return false
}

// Record archives entry, requiring Kind to be "error" or "corrupt_file".
func Record(entry Entry) error {
	switch entry.Kind {
	case "error", "corrupt_file":
	default:
		return &NewRecordError{SourceId: entry.SourceId, Message: fmt.Sprintf("invalid entry kind: %s", entry.Kind)}
	}
	if !IsOpen() {
		return &NotOpenError{}
	}
	channels_.Input.CreateEntry <- entry
	return <-channels_.Output.Error
}

// Entries retrieves archived entries resolved within [start, stop].
func Entries(start, stop time.Time) ([]Entry, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchEntries <- TimeRange{Start: start, Stop: stop}
	select {
	case entries := <-channels_.Output.Entries:
		return entries, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

// The bbolt database gets its own goroutine so a corrupt journal file
// doesn't bring down the rest of the service. Input channels carry
// requests from the main process to the goroutine; output channels carry
// results back.

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool
	Input struct {
		CreateEntry  chan Entry
		CheckIfOpen  chan struct{}
		FetchEntries chan TimeRange
		Shutdown     chan struct{}
	}
	Output struct {
		Entries chan []Entry
		Error   chan error
		IsOpen  chan bool
	}
}

func journalProcess() {
	dbPath := filepath.Join(config.Service.DataDirectory, fmt.Sprintf("%s-journal.db", config.Service.Name))
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		openChannels()
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
		return
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte("diagnostics"))
		return err
	}); err != nil {
		openChannels()
		channels_.Output.Error <- &CantOpenError{Message: err.Error()}
		return
	}

	openChannels()

	running := true
	for running {
		select {
		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true

		case entry := <-channels_.Input.CreateEntry:
			channels_.Output.Error <- createEntry(db, entry)

		case timeRange := <-channels_.Input.FetchEntries:
			entries, err := fetchEntries(db, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Entries <- entries
			}

		case <-channels_.Input.Shutdown:
			if err := db.Close(); err != nil {
				channels_.Output.Error <- &CantCloseError{Message: err.Error()}
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateEntry = make(chan Entry)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchEntries = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Entries = make(chan []Entry)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateEntry)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchEntries)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Entries)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

// entries are indexed by resolved time, CSV-encoded the way the teacher's
// journal indexed transfer records by start time.
func createEntry(db *bolt.DB, entry Entry) error {
	resolvedTime := entry.ResolvedTime.Format(time.RFC3339Nano)

	tx, err := db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	bucket := tx.Bucket([]byte("diagnostics"))

	var buffer bytes.Buffer
	w := csv.NewWriter(&buffer)
	raisedTime := entry.RaisedTime.Format(time.RFC3339Nano)
	csvEntry := []string{
		entry.Kind, strconv.FormatInt(entry.SourceId, 10), entry.File, entry.Severity,
		entry.Category, entry.Message, raisedTime,
	}
	if err := w.Write(csvEntry); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if err := bucket.Put([]byte(resolvedTime), buffer.Bytes()); err != nil {
		return err
	}
	return tx.Commit()
}

func fetchEntries(db *bolt.DB, start, stop time.Time) ([]Entry, error) {
	entries := make([]Entry, 0)
	err := db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte("diagnostics")).Cursor()

		startKey := []byte(start.Format(time.RFC3339Nano))
		stopKey := []byte(stop.Format(time.RFC3339Nano))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, stopKey) <= 0; k, v = c.Next() {
			r := csv.NewReader(bytes.NewReader(v))
			csvEntry, err := r.Read()
			if err != nil {
				return err
			}
			sourceId, _ := strconv.ParseInt(csvEntry[1], 10, 64)
			raisedTime, _ := time.Parse(time.RFC3339Nano, csvEntry[6])
			resolvedTime, _ := time.Parse(time.RFC3339Nano, string(k))
			entries = append(entries, Entry{
				Kind: csvEntry[0], SourceId: sourceId, File: csvEntry[2], Severity: csvEntry[3],
				Category: csvEntry[4], Message: csvEntry[5], RaisedTime: raisedTime, ResolvedTime: resolvedTime,
			})
		}
		return nil
	})
	return entries, err
}
