// Package source is a thin client for the channel message feed the relay
// reads from. The feed is served by a gateway that holds the authenticated
// channel session; this package only lists messages after a given id and
// streams media bytes.
//
// Messages are decoded into a closed set of attachment kinds so that callers
// switch on Attachment.Kind instead of inspecting media types themselves.
package source

import (
	"strings"
	"time"
)

// AttachmentKind classifies what a message carries.
type AttachmentKind int

const (
	// AttachmentNone means the message has no media.
	AttachmentNone AttachmentKind = iota
	// AttachmentVideo means the message carries a video document.
	AttachmentVideo
	// AttachmentOther is any media that is not a video (photos, audio, stickers...).
	AttachmentOther
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentNone:
		return "none"
	case AttachmentVideo:
		return "video"
	case AttachmentOther:
		return "other"
	default:
		return "unknown"
	}
}

// VideoAttachment is the metadata of a video document.
type VideoAttachment struct {
	DocumentID string
	FileName   string
	MIMEType   string
	Size       uint64
	Duration   *uint32
}

// Attachment is a tagged variant. Video is set iff Kind == AttachmentVideo.
type Attachment struct {
	Kind  AttachmentKind
	Video *VideoAttachment
}

// Message is one entry of the channel feed.
type Message struct {
	ID         int64
	Date       time.Time
	Attachment Attachment
}

// --- Wire format ---

type listResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	ID    int64      `json:"id"`
	Date  int64      `json:"date"`
	Media *wireMedia `json:"media,omitempty"`
}

type wireMedia struct {
	Type       string  `json:"type"`
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name,omitempty"`
	MIMEType   string  `json:"mime_type,omitempty"`
	Size       uint64  `json:"size"`
	Duration   *uint32 `json:"duration,omitempty"`
}

// toMessage classifies the wire media. Only documents whose MIME type is
// video/* count as videos; photos, audio and stickers are AttachmentOther.
func (w wireMessage) toMessage() Message {
	msg := Message{
		ID:   w.ID,
		Date: time.Unix(w.Date, 0).UTC(),
	}
	switch {
	case w.Media == nil:
		msg.Attachment = Attachment{Kind: AttachmentNone}
	case isDocument(w.Media.Type) && strings.HasPrefix(w.Media.MIMEType, "video/"):
		name := w.Media.FileName
		if name == "" {
			name = "video_" + w.Media.DocumentID + ".mp4"
		}
		msg.Attachment = Attachment{
			Kind: AttachmentVideo,
			Video: &VideoAttachment{
				DocumentID: w.Media.DocumentID,
				FileName:   name,
				MIMEType:   w.Media.MIMEType,
				Size:       w.Media.Size,
				Duration:   w.Media.Duration,
			},
		}
	default:
		msg.Attachment = Attachment{Kind: AttachmentOther}
	}
	return msg
}

func isDocument(mediaType string) bool {
	return mediaType == "document" || mediaType == "video"
}
