// Package storage provides the cloud-storage collaborator: inbox listing and
// the folder moves that carry a recording through its lifecycle
// (inbox -> processing -> processed/failed).
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/kylenessen/ramble/internal/types"
)

// Lifecycle folders under the configured root.
const (
	FolderInbox      = "inbox"
	FolderProcessing = "processing"
	FolderProcessed  = "processed"
	FolderFailed     = "failed"
)

// audioExtensions are the recording formats accepted from the inbox.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".opus": true,
	".ogg":  true,
}

// IsAudioFile reports whether name carries a supported audio extension.
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(path.Ext(name))]
}

// Store is the storage collaborator consumed by the pipeline. Locations are
// backend-native paths; callers treat them as opaque once obtained.
type Store interface {
	// ListPending lists unclaimed audio recordings in the inbox. A missing or
	// empty inbox yields an empty slice, not an error.
	ListPending(ctx context.Context) ([]types.PendingItem, error)

	// Claim atomically moves item out of the inbox into processing and
	// returns the processing location. A claim-conflict fault is returned
	// when the source is already gone.
	Claim(ctx context.Context, item types.PendingItem) (string, error)

	// Download fetches the file at location into local working storage and
	// returns the local path.
	Download(ctx context.Context, location, filename string) (string, error)

	// Upload writes the local file to location, overwriting any previous copy.
	Upload(ctx context.Context, localPath, location string) error

	// Delete removes the file at location.
	Delete(ctx context.Context, location string) error

	// MarkFailed moves an inbox item to the failed folder, best effort.
	MarkFailed(ctx context.Context, item types.PendingItem) error

	// MarkFailedFrom moves a processing-location file to the failed folder,
	// best effort.
	MarkFailedFrom(ctx context.Context, processingLocation string) error

	// ProcessedPath builds the location of an output artifact under the
	// processed folder.
	ProcessedPath(parts ...string) string
}
