package notify

import (
	"github.com/fpang/channel-video-relay/internal/media"
)

// isoMillis matches the ISO-8601 form downstream consumers already parse
// (UTC, millisecond precision, literal Z).
const isoMillis = "2006-01-02T15:04:05.000Z"

// Payload is the webhook body for one transferred video.
type Payload struct {
	VideoURL  string `json:"video_url"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp"`
}

// NewPayload derives the notification for item stored at res.
func NewPayload(item media.VideoItem, res media.TransferResult, channelLabel string) Payload {
	return Payload{
		VideoURL:  res.URL,
		Channel:   channelLabel,
		Timestamp: item.Timestamp.UTC().Format(isoMillis),
	}
}
