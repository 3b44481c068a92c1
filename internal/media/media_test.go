package media

import (
	"testing"
	"time"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"clip.mp4", "video/mp4"},
		{"clip.MOV", "video/quicktime"},
		{"clip.avi", "video/x-msvideo"},
		{"clip.mkv", "video/x-matroska"},
		{"clip.webm", "video/webm"},
		{"clip.m4v", "video/x-m4v"},
		{"clip.3gp", "video/3gpp"},
		{"clip.flv", "video/x-flv"},
		{"clip.wmv", DefaultVideoMIMEType},
		{"noextension", DefaultVideoMIMEType},
	}
	for _, tt := range tests {
		if got := ContentTypeFor(tt.name); got != tt.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5 MB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.bytes); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatDurationShort(t *testing.T) {
	if got := FormatDurationShort(65 * time.Second); got != "1:05" {
		t.Errorf("expected 1:05, got %s", got)
	}
	if got := FormatDurationShort(3725 * time.Second); got != "1:02:05" {
		t.Errorf("expected 1:02:05, got %s", got)
	}
}
