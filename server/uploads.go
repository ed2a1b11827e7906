// Copyright 2025 Chatvault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/storage"
)

// maxUploadBytes bounds export payload size. ChatGPT archives of heavy
// users run to tens of megabytes.
const maxUploadBytes = 256 << 20

type uploadResponse struct {
	UploadId               string     `json:"upload_id"`
	Status                 string     `json:"status"`
	Filename               string     `json:"filename"`
	Provider               string     `json:"provider"`
	SizeBytes              int64      `json:"size_bytes"`
	ProcessedConversations int        `json:"processed_conversations"`
	ProcessedMessages      int        `json:"processed_messages"`
	ErrorSummary           string     `json:"error_summary,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
}

func uploadToResponse(upload *core.FileUpload) uploadResponse {
	return uploadResponse{
		UploadId:               upload.Id.String(),
		Status:                 upload.Status.String(),
		Filename:               upload.Filename,
		Provider:               upload.Provider.String(),
		SizeBytes:              upload.SizeBytes,
		ProcessedConversations: upload.ProcessedConversations,
		ProcessedMessages:      upload.ProcessedMessages,
		ErrorSummary:           upload.ErrorSummary,
		CreatedAt:              upload.InsertedAt,
		CompletedAt:            optionalTime(upload.CompletedAt),
	}
}

// readUploadPayload extracts the export bytes from either a multipart form
// (field "file") or the raw request body.
func readUploadPayload(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return payload, header.Filename, nil
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, "export.json", nil
}

func (s *Server) handleCreateUpload(w http.ResponseWriter, r *http.Request) {
	provider, err := core.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unknown provider: "+chi.URLParam(r, "provider"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	payload, filename, err := readUploadPayload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable payload: "+err.Error())
		return
	}
	if len(payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty payload")
		return
	}

	upload, err := s.uploads.CreateUpload(r.Context(), &core.FileUpload{
		UserId:    userID(r),
		Filename:  filename,
		SizeBytes: int64(len(payload)),
		FileType:  provider.String() + "_export",
		Provider:  provider,
	})
	if err != nil {
		s.logger.Error("failed to create upload record", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create upload")
		return
	}

	if err := s.pipeline.SubmitUpload(upload, payload); err != nil {
		s.logger.Error("failed to submit upload job", "upload_id", upload.Id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to start processing")
		return
	}

	s.writeJSON(w, http.StatusAccepted, uploadToResponse(upload))
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid upload id")
		return
	}

	upload, err := s.uploads.GetUpload(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "upload not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load upload record", "upload_id", id, "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load upload")
		return
	}
	if upload.UserId != userID(r) {
		s.writeError(w, http.StatusNotFound, "upload not found")
		return
	}

	s.writeJSON(w, http.StatusOK, uploadToResponse(upload))
}
