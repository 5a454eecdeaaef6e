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

// Package peer implements a client for the HTTP protocol one librarian
// speaks to another (section 6's clone/checkin/search/validate/ping
// surface), built on the teacher's SecureHTTPClient (databases/http.go),
// which enables HSTS via github.com/StalkR/hsts and refuses to follow a
// redirect that downgrades from https to http.
package peer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/StalkR/hsts"
	"github.com/google/uuid"
)

// DowngradedRedirectError is returned when a peer redirects a request from
// https to http.
type DowngradedRedirectError struct {
	Endpoint string
}

func (e DowngradedRedirectError) Error() string {
	return fmt.Sprintf("refusing to follow a downgraded (https -> http) redirect to %s", e.Endpoint)
}

// secureClient returns an http.Client with HSTS enabled and downgraded
// redirects disallowed.
func secureClient(timeout time.Duration) http.Client {
	client := http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" {
				return &DowngradedRedirectError{Endpoint: req.URL.Host + req.URL.Path}
			}
			return http.ErrUseLastResponse
		},
	}
	client.Transport = hsts.New(client.Transport)
	return client
}

// Client speaks the librarian-to-librarian HTTP protocol to a single peer.
type Client struct {
	baseURL  string
	username string
	password string
	http     http.Client
}

// New creates a Client that authenticates to the peer at baseURL with HTTP
// Basic auth using the given decrypted username/password (see
// auth.Authenticator.Decrypt).
func New(baseURL, username, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     secureClient(timeout),
	}
}

func (c *Client) request(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &RemoteError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// requestAdmission is like request, but only treats a >=500 response as a
// transport/server failure; any other status still carries a body meant to
// be decoded (an admission decision whose HTTP status doubles as its
// dominant outcome code).
func (c *Client) requestAdmission(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		data, _ := io.ReadAll(resp.Body)
		return &RemoteError{Status: resp.StatusCode, Body: string(data)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RemoteError wraps a non-2xx HTTP response from a peer.
type RemoteError struct {
	Status int
	Body   string
}

func (e RemoteError) Error() string {
	return fmt.Sprintf("peer returned status %d: %s", e.Status, e.Body)
}

// Ping checks that the peer is reachable and authentication succeeds.
func (c *Client) Ping() error {
	return c.request(http.MethodGet, "/ping", nil, nil)
}

// FileDescriptor describes one file's record as returned by SearchFile, a
// frictionless data-resource-shaped descriptor per section 6.
type FileDescriptor struct {
	Name      string `json:"name"`
	Bytes     int64  `json:"bytes"`
	Hash      string `json:"hash"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// SearchFile queries the peer's metadata for files matching pattern.
func (c *Client) SearchFile(pattern string, limit int) ([]FileDescriptor, error) {
	var out struct {
		Files []FileDescriptor `json:"files"`
	}
	err := c.request(http.MethodGet,
		fmt.Sprintf("/search/file?pattern=%s&limit=%d", pattern, limit), nil, &out)
	return out.Files, err
}

// ValidateFile asks the peer to recompute a file's checksum and compare it
// against the expected value, used by RollingDeletion before removing a
// local instance.
func (c *Client) ValidateFile(name, expectedChecksum string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.request(http.MethodPost, "/validate/file", map[string]string{
		"name":     name,
		"checksum": expectedChecksum,
	}, &out)
	return out.Valid, err
}

// CloneStageRequest describes a single-file clone-stage request, keyed by
// SourceTransferId so the destination's response can be matched back to the
// OutgoingTransfer that asked for it.
type CloneStageRequest struct {
	SourceTransferId uuid.UUID `json:"source_transfer_id"`
	File             string    `json:"file"`
	Size             int64     `json:"size"`
	Checksum         string    `json:"checksum"`
}

// CloneStageResponse carries the destination's admission decision for one
// requested file. Accepted is false when the peer rejected the file (already
// present, or a conflicting non-terminal transfer); DominantErrorCode then
// holds the peer's HTTP status (425 > 409 > 406, per spec section 4.4) and
// ExistingSourceTransferId is set when the rejection reason is "already has
// this file", letting the caller reconcile rather than fail.
type CloneStageResponse struct {
	SourceTransferId         uuid.UUID         `json:"source_transfer_id"`
	Accepted                 bool              `json:"accepted"`
	DominantErrorCode        int               `json:"error_code,omitempty"`
	ExistingSourceTransferId uuid.NullUUID     `json:"existing_source_transfer_id,omitempty"`
	DestinationTransferId    uuid.UUID         `json:"destination_transfer_id"`
	StagingLocation          string            `json:"staging_location"`
	StoreId                  string            `json:"store_id"`
	AsyncTransferProviders   map[string]string `json:"async_transfer_providers"`
}

// CloneStage asks the peer to reserve staging space for an incoming clone.
// Unlike most endpoints, /clone/stage's non-2xx responses (425/409/406/413)
// still carry a decodable CloneStageResponse describing the admission
// outcome rather than signaling a transport failure, so this uses
// requestAdmission instead of request.
func (c *Client) CloneStage(req CloneStageRequest) (CloneStageResponse, error) {
	var out CloneStageResponse
	err := c.requestAdmission(http.MethodPost, "/clone/stage", req, &out)
	return out, err
}

// CloneBatchStage is CloneStage for many files at once (SendClone's batch
// admission call). The response slice is not guaranteed to preserve request
// order; callers match by SourceTransferId.
func (c *Client) CloneBatchStage(reqs []CloneStageRequest) ([]CloneStageResponse, error) {
	var out struct {
		Transfers []CloneStageResponse `json:"transfers"`
	}
	err := c.request(http.MethodPost, "/clone/batch_stage", map[string]any{"files": reqs}, &out)
	return out.Transfers, err
}

// CloneOngoing informs the peer that bytes are now flowing for a staged
// transfer.
func (c *Client) CloneOngoing(transferId uuid.UUID) error {
	return c.request(http.MethodPost, "/clone/ongoing", map[string]string{
		"transfer_id": transferId.String(),
	}, nil)
}

// CloneStaged informs the peer that the sender has finished writing bytes
// and the file is ready for the peer to commit.
func (c *Client) CloneStaged(transferId uuid.UUID) error {
	return c.request(http.MethodPost, "/clone/staged", map[string]string{
		"transfer_id": transferId.String(),
	}, nil)
}

// CloneComplete informs the peer that its corresponding outgoing transfer
// may be marked COMPLETED.
func (c *Client) CloneComplete(transferId uuid.UUID) error {
	return c.request(http.MethodPost, "/clone/complete", map[string]string{
		"transfer_id": transferId.String(),
	}, nil)
}

// CloneFail informs the peer that the transfer failed and should be marked
// FAILED rather than retried indefinitely.
func (c *Client) CloneFail(transferId uuid.UUID, reason string) error {
	return c.request(http.MethodPost, "/clone/fail", map[string]string{
		"transfer_id": transferId.String(),
		"reason":      reason,
	}, nil)
}

// CheckinStatusResponse reports a peer's view of a set of transfers, keyed by
// source-side and destination-side id. A missing key or a nil entry means
// the peer doesn't recognize that id or isn't authorized to report on it.
type CheckinStatusResponse struct {
	SourceTransferStatus      map[string]*string `json:"source_transfer_status"`
	DestinationTransferStatus map[string]*string `json:"destination_transfer_status"`
}

// CheckinStatus asks the peer for its current view of the named transfers,
// used to resolve a hypervisor-flagged stale transfer (spec section 4.6's
// reconciliation table).
func (c *Client) CheckinStatus(sourceIds, destIds []uuid.UUID) (CheckinStatusResponse, error) {
	var out CheckinStatusResponse
	err := c.request(http.MethodPost, "/checkin/status", map[string]any{
		"source_transfer_ids":      uuidStrings(sourceIds),
		"destination_transfer_ids": uuidStrings(destIds),
	}, &out)
	return out, err
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// CheckinUpdate pushes a transfer's latest status to the peer that
// initiated it, the mechanism CanRemoteUpdate's narrower transition set
// exists to guard.
func (c *Client) CheckinUpdate(transferId uuid.UUID, status string) error {
	return c.request(http.MethodPost, "/checkin/update", map[string]string{
		"transfer_id": transferId.String(),
		"status":      status,
	}, nil)
}
