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

package services

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/journal"
)

type errorRecord struct {
	Id          int64  `json:"id"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Message     string `json:"message"`
	RaisedTime  string `json:"raised_time"`
	ClearedTime string `json:"cleared_time,omitempty"`
	Cleared     bool   `json:"cleared"`
}

// adminListErrors implements GET /admin/errors?all=true, the administrator's
// view onto metadb's durable Error rows (spec section 7). Without ?all=true
// only uncleared rows are returned.
func (s *Server) adminListErrors(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	all := r.URL.Query().Get("all") == "true"
	records, err := s.Deps.DB.SearchErrors(!all)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}

	out := make([]errorRecord, len(records))
	for i, e := range records {
		rec := errorRecord{
			Id: e.Id, Severity: e.Severity, Category: e.Category, Message: e.Message,
			RaisedTime: e.RaisedTime.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
			Cleared:    e.Cleared,
		}
		if !e.ClearedTime.IsZero() {
			rec.ClearedTime = e.ClearedTime.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
		}
		out[i] = rec
	}
	data, _ := json.Marshal(struct {
		Errors []errorRecord `json:"errors"`
	}{Errors: out})
	writeJson(w, data, http.StatusOK)
}

// adminClearError implements POST /admin/errors/{id}/clear. Clearing moves
// the row out of metadb's live view and archives it to the journal, the
// same two-step RollingDeletion uses for corrupt_files rows.
func (s *Server) adminClearError(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	rawId := mux.Vars(r)["id"]
	errorId, err := strconv.ParseInt(rawId, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed error id", "pass the numeric id from /admin/errors")
		return
	}

	records, err := s.Deps.DB.SearchErrors(false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	var found bool
	var severity, category, message string
	var raisedTime time.Time
	for _, e := range records {
		if e.Id == errorId {
			found = true
			severity, category, message, raisedTime = e.Severity, e.Category, e.Message, e.RaisedTime
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "no such error id", "check the id from /admin/errors")
		return
	}

	if err := s.Deps.DB.ClearError(errorId); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}

	if journal.IsOpen() {
		entry := journal.Entry{
			Kind: "error", SourceId: errorId, Severity: severity, Category: category, Message: message,
			RaisedTime: raisedTime, ResolvedTime: time.Now().UTC(),
		}
		if err := journal.Record(entry); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "the error was cleared but could not be archived; retry to archive it")
			return
		}
	}
	writeJson(w, nil, http.StatusOK)
}
