package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/blobtier/txn"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

// CreateDocumentRequest is the request body for creating a document
type CreateDocumentRequest struct {
	Name     string `json:"name"`
	Content  []byte `json:"content"` // base64 in JSON
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
}

// DocumentResponse is the response body for a document
type DocumentResponse struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	State                coldstorage.State `json:"state"`
	Content              *blobtier.BlobRef `json:"content,omitempty"`
	ColdContent          *blobtier.BlobRef `json:"cold_content,omitempty"`
	BeingRetrieved       bool              `json:"being_retrieved"`
	RetrievalRequestedAt *time.Time        `json:"retrieval_requested_at,omitempty"`
	RetrievalDays        int               `json:"retrieval_days,omitempty"`
	AvailableUntil       *time.Time        `json:"available_until,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func documentResponse(doc *coldstorage.Document) DocumentResponse {
	return DocumentResponse{
		ID:                   doc.ID.String(),
		Name:                 doc.Name,
		State:                doc.State(time.Now()),
		Content:              doc.Content,
		ColdContent:          doc.ColdContent,
		BeingRetrieved:       doc.BeingRetrieved,
		RetrievalRequestedAt: doc.RetrievalRequestedAt,
		RetrievalDays:        doc.RetrievalDays,
		AvailableUntil:       doc.AvailableUntil,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

// DocumentHandler handles HTTP requests for documents and their cold storage
// lifecycle. Mutations run in a transaction.
type DocumentHandler struct {
	service coldstorage.Service
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(service coldstorage.Service) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Routes returns the routes for documents
func (h *DocumentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateDocument)
	r.Get("/{id}", h.GetDocument)
	r.Get("/{id}/content", h.ReadContent)

	r.Post("/{id}/coldstorage/move", h.MoveToColdStorage)
	r.Post("/{id}/coldstorage/retrieve", h.RetrieveFromColdStorage)
	r.Get("/{id}/coldstorage/content", h.ReadColdContent)

	return r
}

func documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "Invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

// CreateDocument stores the content in the hot tier and creates a document
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBlobSize)).Decode(&req); err != nil {
		badRequest(w, r, "Invalid request body")
		return
	}

	var doc *coldstorage.Document
	err := txn.Run(r.Context(), func(ctx context.Context) error {
		var err error
		doc, err = h.service.CreateDocument(ctx, coldstorage.CreateDocumentRequest{
			Name:     req.Name,
			Content:  req.Content,
			MimeType: req.MimeType,
			Filename: req.FileName,
		})
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, documentResponse(doc))
}

// GetDocument returns a document
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, documentResponse(doc))
}

// ReadContent returns the live content of a document, empty if unreadable
func (h *DocumentHandler) ReadContent(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	writeBytes(w, h.service.ReadContent(r.Context(), id))
}

// ReadColdContent returns the cold content of a document, empty if unreadable
func (h *DocumentHandler) ReadColdContent(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	writeBytes(w, h.service.ReadColdContent(r.Context(), id))
}

// MoveToColdStorage archives the live content of a document
func (h *DocumentHandler) MoveToColdStorage(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	var doc *coldstorage.Document
	err := txn.Run(r.Context(), func(ctx context.Context) error {
		var err error
		doc, err = h.service.MoveToColdStorage(ctx, id)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, documentResponse(doc))
}

// RetrieveFromColdStorage requests a restored copy for the number of days
// given by the days query parameter
func (h *DocumentHandler) RetrieveFromColdStorage(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}

	days := coldstorage.DefaultAvailabilityDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, r, "Invalid days parameter")
			return
		}
		days = n
	}

	var doc *coldstorage.Document
	err := txn.Run(r.Context(), func(ctx context.Context) error {
		var err error
		doc, err = h.service.RetrieveFromColdStorage(ctx, id, days)
		return err
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, documentResponse(doc))
}

// CheckAvailability runs one availability sweep
func (h *DocumentHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CheckAvailability(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

func writeBytes(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
