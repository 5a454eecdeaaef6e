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

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

type checkinStatusRequest struct {
	SourceTransferIds      []string `json:"source_transfer_ids"`
	DestinationTransferIds []string `json:"destination_transfer_ids"`
}

type checkinStatusResponse struct {
	SourceTransferStatus      map[string]*string `json:"source_transfer_status"`
	DestinationTransferStatus map[string]*string `json:"destination_transfer_status"`
}

// checkinStatus implements POST /checkin/status, matching
// peer.Client.CheckinStatus exactly: source_transfer_ids are looked up
// against this librarian's OutgoingTransfers (we are the source), and
// destination_transfer_ids against its IncomingTransfers (we are the
// destination), per spec section 4.6's reconciliation table.
func (s *Server) checkinStatus(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req checkinStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {source_transfer_ids, destination_transfer_ids}")
		return
	}

	resp := checkinStatusResponse{
		SourceTransferStatus:      make(map[string]*string, len(req.SourceTransferIds)),
		DestinationTransferStatus: make(map[string]*string, len(req.DestinationTransferIds)),
	}
	for _, raw := range req.SourceTransferIds {
		resp.SourceTransferStatus[raw] = nil
		parsed, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if ot, err := s.Deps.DB.GetOutgoingTransfer(parsed); err == nil {
			status := ot.Status.String()
			resp.SourceTransferStatus[raw] = &status
		}
	}
	for _, raw := range req.DestinationTransferIds {
		resp.DestinationTransferStatus[raw] = nil
		parsed, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if it, err := s.Deps.DB.GetIncomingTransfer(parsed); err == nil {
			status := it.Status.String()
			resp.DestinationTransferStatus[raw] = &status
		}
	}

	data, _ := json.Marshal(resp)
	writeJson(w, data, http.StatusOK)
}

type checkinUpdateRequest struct {
	TransferId uuid.UUID `json:"transfer_id"`
	Status     string    `json:"status"`
}

// checkinUpdate implements POST /checkin/update, matching
// peer.Client.CheckinUpdate exactly. transfer_id is tried first against this
// librarian's own IncomingTransfers (the common case: a source pushing
// progress on a clone we are receiving), then its OutgoingTransfers, using
// transfer.CanRemoteUpdate's narrower transition set since the caller is a
// peer, not this librarian's own background tasks.
func (s *Server) checkinUpdate(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req checkinUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {transfer_id, status}")
		return
	}
	to, err := transfer.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unrecognized status", "send one of the known transfer status names")
		return
	}

	if it, err := s.Deps.DB.GetIncomingTransfer(req.TransferId); err == nil {
		if !transfer.CanRemoteUpdate(it.Status, to) {
			writeError(w, http.StatusNotAcceptable, "illegal status transition", "check the transfer's current status")
			return
		}
		if err := s.Deps.DB.SetIncomingTransferStatus(it.Id, to); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
			return
		}
		writeJson(w, nil, http.StatusOK)
		return
	}

	ot, err := s.findOutgoingTransfer(req.TransferId)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown transfer id", "check the transfer_id")
		return
	}
	if !transfer.CanRemoteUpdate(ot.Status, to) {
		writeError(w, http.StatusNotAcceptable, "illegal status transition", "check the transfer's current status")
		return
	}
	if err := s.Deps.DB.SetOutgoingTransferStatus(ot.Id, to); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	writeJson(w, nil, http.StatusOK)
}
