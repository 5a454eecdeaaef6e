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
	"time"

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

// cloneStageRequest matches peer.Client.CloneStageRequest exactly.
type cloneStageRequest struct {
	SourceTransferId uuid.UUID `json:"source_transfer_id"`
	File             string    `json:"file"`
	Size             int64     `json:"size"`
	Checksum         string    `json:"checksum"`
}

// cloneStageResponse matches peer.Client.CloneStageResponse exactly.
type cloneStageResponse struct {
	SourceTransferId         uuid.UUID     `json:"source_transfer_id"`
	Accepted                 bool          `json:"accepted"`
	DominantErrorCode        int           `json:"error_code,omitempty"`
	ExistingSourceTransferId uuid.NullUUID `json:"existing_source_transfer_id,omitempty"`
	DestinationTransferId    uuid.UUID         `json:"destination_transfer_id"`
	StagingLocation          string            `json:"staging_location"`
	StoreId                  string            `json:"store_id"`
	AsyncTransferProviders   map[string]string `json:"async_transfer_providers"`
}

// admitClone evaluates one stage request against the destination's admission
// rules (spec section 4.4): 425 if a non-terminal incoming transfer for this
// file is already in flight, 409 if the file is already present, 406 if the
// request itself is invalid. 425 outranks 409 outranks 406, per the ordering
// peer.CloneStageResponse documents.
func (s *Server) admitClone(req cloneStageRequest, sender string) cloneStageResponse {
	resp := cloneStageResponse{SourceTransferId: req.SourceTransferId}

	if req.File == "" || req.Size <= 0 || req.Checksum == "" {
		resp.DominantErrorCode = http.StatusNotAcceptable
		return resp
	}

	checksum := transfer.Checksum(req.Checksum).Normalize()
	if prior, found, err := s.Deps.DB.NonTerminalIncomingTransferByChecksumDest(checksum, req.File); err == nil && found {
		resp.DominantErrorCode = http.StatusTooEarly
		resp.ExistingSourceTransferId = prior.SourceTransferId
		return resp
	}
	if exists, err := s.Deps.DB.FileExists(req.File); err == nil && exists {
		resp.DominantErrorCode = http.StatusConflict
		return resp
	}

	store, err := s.Deps.Stores.SelectForUpload(req.Size, "")
	if err != nil {
		resp.DominantErrorCode = http.StatusRequestEntityTooLarge
		return resp
	}
	stagingId, stagingPath, err := store.Stage(req.Size, req.File)
	if err != nil {
		resp.DominantErrorCode = http.StatusInternalServerError
		return resp
	}

	it := transfer.IncomingTransfer{
		Id: uuid.New(), SourcePeer: sender,
		SourceTransferId: uuid.NullUUID{UUID: req.SourceTransferId, Valid: true},
		Status:           transfer.Initiated, StoreId: store.Name(),
		StagingId: stagingId, StagingPath: stagingPath, StorePath: req.File,
		TransferSize: req.Size, TransferChecksum: checksum, StartTime: time.Now().UTC(),
	}
	if err := s.Deps.DB.CreateIncomingTransfer(it); err != nil {
		store.Unstage(stagingId)
		resp.DominantErrorCode = http.StatusInternalServerError
		return resp
	}

	providers := make(map[string]string)
	for _, p := range store.AsyncTransferManagers() {
		providers[p] = p
	}
	resp.Accepted = true
	resp.DestinationTransferId = it.Id
	resp.StagingLocation = stagingPath
	resp.StoreId = store.Name()
	resp.AsyncTransferProviders = providers
	return resp
}

// cloneStage implements POST /clone/stage.
func (s *Server) cloneStage(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req cloneStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send a valid clone/stage request")
		return
	}
	resp := s.admitClone(req, id.Name)
	data, _ := json.Marshal(resp)
	writeJson(w, data, admissionStatus(resp))
}

// admissionStatus maps an admitClone outcome to the status codes spec
// section 6 documents for /clone/stage: 201 on acceptance, otherwise the
// dominant rejection code (425/409/406/413).
func admissionStatus(resp cloneStageResponse) int {
	if resp.Accepted {
		return http.StatusCreated
	}
	if resp.DominantErrorCode != 0 {
		return resp.DominantErrorCode
	}
	return http.StatusNotAcceptable
}

// cloneBatchStage implements POST /clone/batch_stage.
func (s *Server) cloneBatchStage(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req struct {
		Files []cloneStageRequest `json:"files"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {files: [...]}")
		return
	}
	resps := make([]cloneStageResponse, len(req.Files))
	for i, f := range req.Files {
		resps[i] = s.admitClone(f, id.Name)
	}
	data, _ := json.Marshal(struct {
		Transfers []cloneStageResponse `json:"transfers"`
	}{Transfers: resps})
	writeJson(w, data, http.StatusOK)
}

type transferIdRequest struct {
	TransferId uuid.UUID `json:"transfer_id"`
}

// cloneOngoing implements POST /clone/ongoing, advancing an IncomingTransfer
// this librarian is the destination for. transfer_id is this librarian's own
// IncomingTransfer.Id, as returned by clone/stage's destination_transfer_id.
func (s *Server) cloneOngoing(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	s.remoteIncomingTransition(w, r, transfer.Ongoing)
}

// cloneStaged implements POST /clone/staged. ReceiveClone picks up the
// STAGED row from here and performs the actual ingest.
func (s *Server) cloneStaged(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	s.remoteIncomingTransition(w, r, transfer.Staged)
}

func (s *Server) remoteIncomingTransition(w http.ResponseWriter, r *http.Request, to transfer.Status) {
	var req transferIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {transfer_id}")
		return
	}
	it, err := s.Deps.DB.GetIncomingTransfer(req.TransferId)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown transfer id", "check the destination_transfer_id returned by clone/stage")
		return
	}
	if !transfer.CanRemoteUpdate(it.Status, to) {
		writeError(w, http.StatusNotAcceptable, "illegal status transition", "check the transfer's current status")
		return
	}
	if err := s.Deps.DB.SetIncomingTransferStatus(it.Id, to); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	writeJson(w, nil, http.StatusOK)
}

type cloneFailRequest struct {
	TransferId uuid.UUID `json:"transfer_id"`
	Reason     string    `json:"reason"`
}

// findOutgoingTransfer resolves id against this librarian's own
// OutgoingTransfer.Id first (the convention receive_clone.go's CloneComplete
// call uses), falling back to a dest_transfer_id match for a peer that
// echoes back the id this librarian assigned during clone/stage instead.
func (s *Server) findOutgoingTransfer(id uuid.UUID) (transfer.OutgoingTransfer, error) {
	if ot, err := s.Deps.DB.GetOutgoingTransfer(id); err == nil {
		return ot, nil
	}
	ot, found, err := s.Deps.DB.OutgoingTransferByDestTransferId(id)
	if err != nil {
		return transfer.OutgoingTransfer{}, err
	}
	if !found {
		return transfer.OutgoingTransfer{}, transfer.NotFoundError{Id: id}
	}
	return ot, nil
}

// cloneComplete implements POST /clone/complete, acknowledging that the peer
// (the destination) finished ingesting a file this librarian sent.
func (s *Server) cloneComplete(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req transferIdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {transfer_id}")
		return
	}
	ot, err := s.findOutgoingTransfer(req.TransferId)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown transfer id", "check the source transfer id")
		return
	}
	if !transfer.CanTransition(ot.Status, transfer.Completed) {
		writeError(w, http.StatusNotAcceptable, "illegal status transition", "check the transfer's current status")
		return
	}
	if err := s.Deps.DB.SetOutgoingTransferStatus(ot.Id, transfer.Completed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	if _, err := s.Deps.DB.CreateRemoteInstance(transfer.RemoteInstance{
		File: ot.File, Librarian: ot.DestPeer, StoreId: ot.DestPath,
		CopyTime: time.Now().UTC(), Sender: s.Deps.Self,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	writeJson(w, nil, http.StatusOK)
}

// cloneFail implements POST /clone/fail, telling this librarian that an
// outgoing clone it sent failed on the peer's side and should not be
// retried indefinitely.
func (s *Server) cloneFail(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req cloneFailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {transfer_id, reason}")
		return
	}
	ot, err := s.findOutgoingTransfer(req.TransferId)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown transfer id", "check the source transfer id")
		return
	}
	if ot.Status.IsTerminal() {
		writeJson(w, nil, http.StatusOK)
		return
	}
	if err := s.Deps.DB.SetOutgoingTransferStatus(ot.Id, transfer.Failed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	writeJson(w, nil, http.StatusOK)
}
