package coldstorage

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// ErrDocumentNotFound indicates the repository has no document with the id.
// It wraps blobtier.ErrNotFound.
var ErrDocumentNotFound = fmt.Errorf("document %w", blobtier.ErrNotFound)

// ErrInvalidDays indicates an availability duration that is not positive or
// exceeds MaxRetrievalDays.
var ErrInvalidDays = errors.New("availability days out of range")

func errNoMainContent(doc *Document) error {
	return blobtier.NotFoundf("There is no main content for document: %s.", doc)
}

func errAlreadyInColdStorage(doc *Document) error {
	return blobtier.Conflictf("The main content for document: %s is already in cold storage.", doc)
}

func errNoColdContent(doc *Document) error {
	return blobtier.NotFoundf("No cold storage content defined for document: %s.", doc)
}

func errBeingRetrieved(doc *Document) error {
	return blobtier.Conflictf("The cold storage content associated with the document: %s is being retrieved.", doc)
}

func errAlreadyAvailable(doc *Document) error {
	return blobtier.Conflictf("The cold storage content associated with the document: %s is already available.", doc)
}

func errInvalidDays(days int) error {
	return &blobtier.StatusError{
		Code:    http.StatusBadRequest,
		Message: fmt.Sprintf("Invalid number of days of availability: %d.", days),
		Err:     ErrInvalidDays,
	}
}
