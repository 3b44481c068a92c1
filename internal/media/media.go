// Package media holds the descriptors that flow through the relay pipeline:
// a VideoItem discovered in the message source and the TransferResult that
// records where its bytes landed in object storage.
package media

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// DefaultVideoMIMEType is used for extensions missing from VideoContentTypes.
const DefaultVideoMIMEType = "video/mp4"

// VideoContentTypes maps lowercase file extensions to the MIME type stored
// on the uploaded object.
var VideoContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".3gp":  "video/3gpp",
	".flv":  "video/x-flv",
}

// VideoItem describes one video attachment found in the message source.
// Values are built once from source metadata and never mutated.
type VideoItem struct {
	// ID is the source-assigned document id. It is stable across scans.
	ID       string
	FileName string
	FileSize uint64
	// Duration in seconds, nil when the source did not report one.
	Duration *uint32
	// Timestamp is the creation time reported by the source.
	Timestamp time.Time
	// MessageID is the id of the containing message. Used for cursor
	// advancement only, never for deduplication.
	MessageID int64
	MIMEType  string
}

// TransferResult records where a VideoItem was stored.
type TransferResult struct {
	Key    string
	URL    string
	Bucket string
}

// ContentTypeFor returns the MIME type for fileName based on its extension.
func ContentTypeFor(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := VideoContentTypes[ext]; ok {
		return ct
	}
	return DefaultVideoMIMEType
}

// FormatFileSize renders a byte count for log output (e.g. "1.5 MB").
func FormatFileSize(bytes uint64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%s %s", strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), "."), sizes[i])
}

// FormatDurationShort formats a duration as M:SS or H:MM:SS.
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
