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
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/config"
	"github.com/HERA-Team/librarian-sub000/ingest"
	"github.com/HERA-Team/librarian-sub000/transfer"
)

type stageRequest struct {
	DestinationLocation string `json:"destination_location"`
	UploadSize           int64  `json:"upload_size"`
	UploadChecksum       string `json:"upload_checksum"`
	Uploader             string `json:"uploader"`
	UploadName           string `json:"upload_name"`
}

type stageResponse struct {
	StoreName            string            `json:"store_name"`
	StagingName          string            `json:"staging_name"`
	StagingLocation      string            `json:"staging_location"`
	UploadName           string            `json:"upload_name"`
	DestinationLocation  string            `json:"destination_location"`
	TransferProviders    map[string]string `json:"transfer_providers"`
	TransferId           uuid.UUID         `json:"transfer_id"`
}

// uploadStage implements POST /upload/stage (spec section 4.3(1)).
func (s *Server) uploadStage(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req stageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send a valid stage request")
		return
	}
	if req.UploadSize <= 0 {
		writeError(w, http.StatusBadRequest, "upload_size must be positive", "retry with a positive size")
		return
	}
	if req.UploadSize > config.Service.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the configured maximum size",
			"split the upload or request a larger max_upload_size")
		return
	}

	exists, err := s.Deps.DB.FileExists(req.DestinationLocation)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	if exists {
		writeError(w, http.StatusConflict, "a file already exists at this destination", "choose a different destination_location")
		return
	}

	checksum := transfer.Checksum(req.UploadChecksum).Normalize()
	prior, found, err := s.Deps.DB.NonTerminalIncomingTransferByChecksumDest(checksum, req.DestinationLocation)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}
	if found {
		// cancel the prior attempt and fall through to stage a fresh one, so
		// a single stage call resumes an upload instead of requiring the
		// caller to poll the old transfer to FAILED first (spec section 4.3(1)).
		if oldStore, ok := s.Deps.Stores.Get(prior.StoreId); ok {
			oldStore.Unstage(prior.StagingId)
		}
		if err := s.Deps.DB.SetIncomingTransferStatus(prior.Id, transfer.Failed); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
			return
		}
	}

	store, err := s.Deps.Stores.SelectForUpload(req.UploadSize, "")
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "no store can currently admit this upload", "retry later or reduce the upload size")
		return
	}
	stagingId, stagingPath, err := store.Stage(req.UploadSize, req.UploadName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}

	it := transfer.IncomingTransfer{
		Id: uuid.New(), Status: transfer.Initiated, StoreId: store.Name(),
		StagingId: stagingId, StagingPath: stagingPath, StorePath: req.DestinationLocation,
		TransferSize: req.UploadSize, TransferChecksum: checksum,
		Uploader: req.Uploader, StartTime: time.Now().UTC(),
	}
	if err := s.Deps.DB.CreateIncomingTransfer(it); err != nil {
		store.Unstage(stagingId)
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}

	providers := make(map[string]string)
	for _, p := range store.SyncTransferManagers() {
		providers[p] = p
	}
	data, _ := json.Marshal(stageResponse{
		StoreName: store.Name(), StagingName: stagingId, StagingLocation: stagingPath,
		UploadName: req.UploadName, DestinationLocation: req.DestinationLocation,
		TransferProviders: providers, TransferId: it.Id,
	})
	writeJson(w, data, http.StatusCreated)
}

type commitRequest struct {
	TransferId       uuid.UUID `json:"transfer_id"`
	TransferProvider string    `json:"transfer_provider"`
}

// uploadCommit implements POST /upload/commit (spec section 4.3(2)), sharing
// its ingest logic with tasks.ReceiveClone via package ingest.
func (s *Server) uploadCommit(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {transfer_id, transfer_provider}")
		return
	}

	it, err := s.Deps.DB.GetIncomingTransfer(req.TransferId)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown transfer id", "check the transfer_id returned by upload/stage")
		return
	}
	st, found := s.Deps.Stores.Get(it.StoreId)
	if !found {
		writeError(w, http.StatusInternalServerError, "the store backing this transfer is no longer configured", "contact an administrator")
		return
	}

	if err := s.Deps.DB.SetIncomingTransferStatus(it.Id, transfer.Staged); err != nil {
		writeError(w, http.StatusNotAcceptable, err.Error(), "check the transfer's current status")
		return
	}
	it.Status = transfer.Staged

	if err := ingest.Run(s.Deps.DB, st, it, transfer.Allowed); err != nil {
		var mismatch transfer.ChecksumMismatchError
		var collision ingest.CollisionError
		switch {
		case errors.As(err, &mismatch):
			writeError(w, http.StatusNotAcceptable, err.Error(), "re-upload the file with matching bytes")
		case errors.As(err, &collision):
			writeError(w, http.StatusConflict, err.Error(), "choose a different destination_location")
		default:
			writeError(w, http.StatusInternalServerError, err.Error(), "retry the commit")
		}
		return
	}
	writeJson(w, nil, http.StatusOK)
}
