package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/glizzus/mustard/internal/datalayer"
)

// ArchiveKey is where the backup of ownerID is kept in blob storage.
func ArchiveKey(ownerID int64) string {
	return fmt.Sprintf("backups/%d.json", ownerID)
}

// Archiver keeps the latest backup of each owner in blob storage.
type Archiver struct {
	engine *Engine
	blobs  datalayer.BlobStorage
}

func NewArchiver(engine *Engine, blobs datalayer.BlobStorage) *Archiver {
	return &Archiver{engine: engine, blobs: blobs}
}

// Archive exports ownerID and stores the document, replacing the previous
// one. It returns the key written.
func (a *Archiver) Archive(ctx context.Context, ownerID int64) (string, error) {
	doc, err := a.engine.Export(ctx, ownerID)
	if err != nil {
		return "", err
	}

	key := ArchiveKey(ownerID)
	err = a.blobs.Put(ctx, key, bytes.NewReader(doc), datalayer.PutOptions{
		Size:        int64(len(doc)),
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store backup of owner %d: %w", ownerID, err)
	}
	return key, nil
}

// RestoreArchived applies the stored backup of ownerID. Errors are as for
// Engine.Restore.
func (a *Archiver) RestoreArchived(ctx context.Context, ownerID int64) ([]string, error) {
	rc, err := a.blobs.Get(ctx, ArchiveKey(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch backup of owner %d: %w", ownerID, err)
	}
	defer rc.Close()

	doc, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup of owner %d: %w", ownerID, err)
	}
	return a.engine.Restore(ctx, ownerID, doc)
}
