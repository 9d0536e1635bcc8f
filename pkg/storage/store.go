package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store persists fetched media payloads and hands back a stable reference.
// Implementations must be safe for concurrent use by the media workers.
type Store interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	PublicURL(key string) string
}

// ObjectKey builds the object key for one stored media payload. The layout
// groups objects by workspace, instance and day so retention sweeps and
// manual inspection stay cheap.
func ObjectKey(workspace, instance, externalID, mimeType string, at time.Time) string {
	mediaType := "documents"
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		mediaType = "images"
	case strings.HasPrefix(mimeType, "video/"):
		mediaType = "videos"
	case strings.HasPrefix(mimeType, "audio/"):
		mediaType = "audio"
	}

	return fmt.Sprintf("workspaces/%s/%s/%s/%s/%s%s",
		sanitizeSegment(workspace),
		sanitizeSegment(instance),
		at.UTC().Format("2006/01/02"),
		mediaType,
		sanitizeSegment(externalID),
		extensionForMime(mimeType),
	)
}

func sanitizeSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "@", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

func extensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "gif"):
		return ".gif"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "opus"):
		return ".opus"
	case strings.Contains(mimeType, "pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}
