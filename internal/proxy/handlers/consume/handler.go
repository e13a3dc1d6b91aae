// Package consume serves POST /v1/consume/{kind}: the request body is
// streamed into a body.Body, consumed as the named kind and the settled
// result rendered as JSON. Stored blobs are read back from GET /v1/blobs/{id}.
package consume

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/proxy/response"
	"github.com/guided-traffic/body-consumer/internal/storage"
)

// BlobStore persists consumed blobs
type BlobStore interface {
	Put(ctx context.Context, blob *body.Blob) (*storage.StoredBlob, error)
	Get(ctx context.Context, id uuid.UUID) (*body.Blob, error)
}

// Handler handles consume requests
type Handler struct {
	consumer     *body.Consumer
	blobStore    BlobStore
	maxBodyBytes int64
	logger       *logrus.Entry
	errorWriter  *response.ErrorWriter
}

// NewHandler creates a consume handler. blobStore may be nil.
func NewHandler(consumer *body.Consumer, blobStore BlobStore, maxBodyBytes int64, logger *logrus.Entry) *Handler {
	return &Handler{
		consumer:     consumer,
		blobStore:    blobStore,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		errorWriter:  response.NewErrorWriter(logger),
	}
}

// Handle consumes the request body as the kind named in the route
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	kind, err := body.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.errorWriter.WriteError(w, http.StatusNotFound, response.CodeUnknownKind, err.Error())
		return
	}

	logger := h.logger.WithFields(logrus.Fields{
		"kind":       kind.String(),
		"request_id": w.Header().Get(response.RequestIDHeader),
	})

	b := body.NewBody(h.consumer, r.Header.Get("Content-Type"))
	b.SetLimit(h.maxBodyBytes)

	// Consumption starts before the bytes arrive and settles on Finish
	sink := b.Consume(kind)

	if err := h.receive(b, r.Body); err != nil {
		if errors.Is(err, body.ErrBodyTooLarge) {
			h.errorWriter.WriteConsumeError(w, err, kind)
			return
		}
		logger.WithError(err).Warn("Failed to read request body")
		h.errorWriter.WriteError(w, http.StatusBadRequest, response.CodeBadRequest, "failed to read request body")
		return
	}

	data, err := sink.Wait(r.Context())
	if err != nil {
		h.errorWriter.WriteConsumeError(w, err, kind)
		return
	}

	var stored *storage.StoredBlob
	if blob, ok := data.(*body.Blob); ok && h.blobStore != nil {
		stored, err = h.blobStore.Put(r.Context(), blob)
		if err != nil {
			logger.WithError(err).Error("Failed to store blob")
			h.errorWriter.WriteError(w, http.StatusBadGateway, response.CodeStorage, "failed to store blob")
			return
		}
	}

	result, err := Render(data, stored)
	if err != nil {
		logger.WithError(err).Error("Failed to render result")
		h.errorWriter.WriteError(w, http.StatusInternalServerError, body.CodeUnknown, "failed to render result")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.WithError(err).Error("Failed to write consume response")
	}
}

// receive copies the request into b and completes it
func (h *Handler) receive(b *body.Body, src io.Reader) error {
	if _, err := io.Copy(b, src); err != nil {
		return err
	}
	return b.Finish()
}

// Fetch writes a stored blob with its original content type
func (h *Handler) Fetch(w http.ResponseWriter, r *http.Request) {
	if h.blobStore == nil {
		h.errorWriter.WriteError(w, http.StatusNotFound, response.CodeStorage, "blob store is disabled")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.errorWriter.WriteError(w, http.StatusBadRequest, response.CodeBadRequest, "invalid blob id")
		return
	}

	blob, err := h.blobStore.Get(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrBlobNotFound):
		h.errorWriter.WriteError(w, http.StatusNotFound, response.CodeStorage, err.Error())
		return
	case err != nil:
		h.logger.WithError(err).WithField("id", id).Error("Failed to load blob")
		h.errorWriter.WriteError(w, http.StatusBadGateway, response.CodeStorage, "failed to load blob")
		return
	}

	contentType := blob.Type()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(blob.Size()))
	w.Header().Set("X-Blob-Digest", blob.Digest())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Bytes()); err != nil {
		h.logger.WithError(err).Debug("Failed to write blob")
	}
}
