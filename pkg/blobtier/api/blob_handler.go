package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
)

// MaxBlobSize bounds request bodies accepted by the blob endpoints.
const MaxBlobSize = 64 << 20

// BlobHandler exposes raw blob writes and reads on a provider.
type BlobHandler struct {
	provider *blobtier.Provider
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(provider *blobtier.Provider) *BlobHandler {
	return &BlobHandler{provider: provider}
}

// Routes returns the routes for blobs
func (h *BlobHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.WriteBlob)
	r.Get("/{key}", h.ReadBlob)
	r.Delete("/{key}", h.DeleteBlob)

	return r
}

// WriteBlob stores the request body. The owner document, field and file name
// are taken from the doc_id, field and filename query parameters; record keys
// require doc_id.
func (h *BlobHandler) WriteBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBlobSize))
	if err != nil {
		badRequest(w, r, "Failed to read request body")
		return
	}

	q := r.URL.Query()
	wc := blobtier.WriteContext{
		Content:   data,
		DocID:     q.Get("doc_id"),
		FieldPath: q.Get("field"),
		MimeType:  r.Header.Get("Content-Type"),
		Filename:  q.Get("filename"),
	}

	var key string
	err = txn.Run(r.Context(), func(ctx context.Context) error {
		var err error
		key, err = h.provider.WriteBlob(ctx, wc)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, blobtier.NewBlobRef(key, wc))
}

// ReadBlob returns the stored bytes of a key.
func (h *BlobHandler) ReadBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	data, err := h.provider.Read(r.Context(), key)
	if err != nil {
		renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DeleteBlob removes a key.
func (h *BlobHandler) DeleteBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	err := txn.Run(r.Context(), func(ctx context.Context) error {
		return h.provider.DeleteBlob(ctx, key)
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
