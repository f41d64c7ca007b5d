package ports

import (
	"context"

	"github.com/aretw0/actdata/pkg/domain"
)

// DocumentStore defines the interface for persisting document snapshots.
// It is the storage substrate: a successful Save is the durable commit of a document.
type DocumentStore interface {
	// Save persists the snapshot under snap.ID, replacing any previous version.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a given document ID.
	// Returns domain.ErrDocumentNotFound if the document does not exist.
	Load(ctx context.Context, id string) (*domain.Snapshot, error)

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored documents.
	List(ctx context.Context) ([]string, error)
}
