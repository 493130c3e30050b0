package handler

import (
	"net/http"

	"github.com/shopfloor/shopfloor/internal/api/response"
)

// NewVoiceMessageHandler returns an http.HandlerFunc for
// POST /api/v1/tasks/{taskID}/voice. The audio is the multipart "voice" part.
func NewVoiceMessageHandler(svc MessageService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}
		if !isMultipart(r) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form with a voice file", nil)
			return
		}
		if !parseMultipart(w, r, maxUploadBytes) {
			return
		}
		blobs, err := readBlobs(r.MultipartForm, "voice")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return
		}
		if len(blobs) != 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Exactly one voice file is required", nil)
			return
		}

		task, err := svc.AddVoiceMessage(r.Context(), ident, taskID, &blobs[0])
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, task)
	}
}

// NewTextMessageHandler returns an http.HandlerFunc for POST /api/v1/tasks/{taskID}/text.
func NewTextMessageHandler(svc MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		task, err := svc.AddTextMessage(r.Context(), ident, taskID, req.Text)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, task)
	}
}
