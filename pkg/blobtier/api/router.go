// Package api provides the HTTP surface of a blobtier runtime.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/blobtier/pkg/blobtier"
	"github.com/tendant/blobtier/pkg/coldstorage"
)

// Mount registers the blob and document routes under /api/v1.
func Mount(r chi.Router, blobs *blobtier.Provider, documents coldstorage.Service) {
	docs := NewDocumentHandler(documents)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Mount("/blobs", NewBlobHandler(blobs).Routes())
		r.Mount("/documents", docs.Routes())
		r.Post("/coldstorage/check", docs.CheckAvailability)
	})
}

// NewRouter returns a router serving only the blobtier routes.
func NewRouter(blobs *blobtier.Provider, documents coldstorage.Service) http.Handler {
	r := chi.NewRouter()
	Mount(r, blobs, documents)
	return r
}
