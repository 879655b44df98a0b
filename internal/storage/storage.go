package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

const recordingPrefix = "recordings/"

var ErrObjectNotFound = errors.New("object not found in storage")

// FileStorage defines the object storage operations used for session recordings.
type FileStorage interface {
	// GeneratePresignedUploadURL creates a temporary URL that allows a PUT of objectKey.
	// The uploader must send the same Content-Type header.
	GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows a GET of objectKey.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)

	// ObjectExists reports whether objectKey is stored.
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// RecordingKey is the object key of a room's recording.
func RecordingKey(roomID string) string {
	return recordingPrefix + strings.Trim(roomID, "/") + "/recording"
}
