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

	"github.com/HERA-Team/librarian-sub000/auth"
	"github.com/HERA-Team/librarian-sub000/config"
)

// pingResponse mirrors peer.Client's expectations for GET /ping -- the
// client only checks for a 2xx status, but a body describing this librarian
// costs nothing and matches spec section 6's `{name, description}`.
type pingResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	data, _ := json.Marshal(pingResponse{
		Name:        s.Name,
		Description: "librarian data management service",
	})
	writeJson(w, data, http.StatusOK)
}

// fileDescriptor mirrors peer.FileDescriptor, the shape SearchFile's caller
// expects back.
type fileDescriptor struct {
	Name      string `json:"name"`
	Bytes     int64  `json:"bytes"`
	Hash      string `json:"hash"`
	Path      string `json:"path"`
	CreatedAt string `json:"created_at"`
}

// searchFile implements GET /search/file?pattern=...&limit=..., matching
// peer.Client.SearchFile's request shape exactly (section 6 states POST with
// a JSON body, but the already-built peer client issues a GET with query
// parameters, and internal consistency between client and server wins --
// recorded as an Open Question resolution in DESIGN.md).
func (s *Server) searchFile(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "no search pattern given", "supply a non-empty 'pattern' query parameter")
		return
	}
	limit := config.Service.MaxSearchResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > config.Service.MaxSearchResults {
		limit = config.Service.MaxSearchResults
	}

	files, err := s.Deps.DB.SearchFiles(pattern, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the search")
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusNotFound, "no files matched the given pattern", "broaden the search pattern")
		return
	}

	descriptors := make([]fileDescriptor, len(files))
	for i, f := range files {
		descriptors[i] = fileDescriptor{
			Name:      f.Name,
			Bytes:     f.Size,
			Hash:      string(f.Checksum.Normalize()),
			Path:      f.Name,
			CreatedAt: f.CreateTime.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		}
	}
	data, _ := json.Marshal(struct {
		Files []fileDescriptor `json:"files"`
	}{Files: descriptors})
	writeJson(w, data, http.StatusOK)
}

// validationReport mirrors spec section 6's /validate/file response shape,
// one entry per Instance or RemoteInstance holding the file.
type validationReport struct {
	Librarian            string `json:"librarian"`
	Store                string `json:"store"`
	InstanceId           int64  `json:"instance_id"`
	OriginalChecksum     string `json:"original_checksum"`
	OriginalSize         int64  `json:"original_size"`
	CurrentChecksum      string `json:"current_checksum"`
	CurrentSize          int64  `json:"current_size"`
	ComputedSameChecksum bool   `json:"computed_same_checksum"`
}

// validateFileRequest matches peer.Client.ValidateFile's POST body exactly.
type validateFileRequest struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

// validateFile implements POST /validate/file, recomputing the checksum of
// every local Instance of the named file and reporting whether it still
// matches the File's recorded checksum. RollingDeletion is this endpoint's
// primary caller, via peer.Client.ValidateFile, which only reads the `valid`
// field -- so the response also carries a top-level `valid` summarizing
// whether every local instance matched.
func (s *Server) validateFile(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req validateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", "send {name, checksum} as JSON")
		return
	}

	file, err := s.Deps.DB.GetFile(req.Name)
	if err != nil {
		writeError(w, http.StatusNotFound, "no such file", "check the file name")
		return
	}
	instances, err := s.Deps.DB.InstancesForFile(req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "retry the request")
		return
	}

	allMatch := true
	reports := make([]validationReport, 0, len(instances))
	for _, inst := range instances {
		st, found := s.Deps.Stores.Get(inst.Store)
		if !found {
			allMatch = false
			continue
		}
		info, err := st.PathInfo(inst.Path, file.Checksum.Algo())
		current := string(file.Checksum.Normalize())
		currentSize := file.Size
		same := err == nil && info.Checksum == file.Checksum.Normalize() && info.Size == file.Size
		if err == nil {
			current = string(info.Checksum)
			currentSize = info.Size
		}
		if !same {
			allMatch = false
		}
		reports = append(reports, validationReport{
			Librarian: s.Deps.Self, Store: inst.Store, InstanceId: inst.Id,
			OriginalChecksum: string(file.Checksum.Normalize()), OriginalSize: file.Size,
			CurrentChecksum: current, CurrentSize: currentSize, ComputedSameChecksum: same,
		})
	}

	// delegate to each peer holding a RemoteInstance, per section 6.
	remotes, err := s.Deps.DB.RemoteInstancesForFile(req.Name)
	if err == nil {
		for _, ri := range remotes {
			client, found := s.Deps.Peers.Get(ri.Librarian)
			if !found {
				continue
			}
			ok, err := client.ValidateFile(req.Name, string(file.Checksum.Normalize()))
			if err != nil {
				continue
			}
			current := string(file.Checksum.Normalize())
			currentSize := file.Size
			if !ok {
				allMatch = false
				current = "unknown"
				currentSize = 0
			}
			reports = append(reports, validationReport{
				Librarian: ri.Librarian, Store: ri.StoreId, InstanceId: ri.Id,
				OriginalChecksum: string(file.Checksum.Normalize()), OriginalSize: file.Size,
				CurrentChecksum: current, CurrentSize: currentSize, ComputedSameChecksum: ok,
			})
		}
	}

	data, _ := json.Marshal(struct {
		Valid   bool               `json:"valid"`
		Reports []validationReport `json:"reports"`
	}{Valid: allMatch && len(reports) > 0, Reports: reports})
	writeJson(w, data, http.StatusOK)
}
