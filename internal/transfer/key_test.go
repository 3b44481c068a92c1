package transfer

import (
	"strings"
	"testing"
	"time"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cat.mp4", "cat.mp4"},
		{"my funny  cat!.mp4", "my_funny_cat_.mp4"},
		{"__leading and trailing__", "leading_and_trailing"},
		{"видео 1.mov", "1.mov"},
		{"a---b..c.mkv", "a---b..c.mkv"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.in); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	ts := time.Date(2025, 3, 5, 10, 0, 0, 123_000_000, time.UTC)
	key := ObjectKey("Funny", "my cat.mp4", ts)
	want := "videos/Funny/1741168800123_my_cat.mp4"
	if key != want {
		t.Errorf("expected %s, got %s", want, key)
	}
}

func TestObjectKey_Deterministic(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a := ObjectKey("Funny", "clip (1).mp4", ts)
	b := ObjectKey("Funny", "clip (1).mp4", ts)
	if a != b {
		t.Errorf("expected identical keys, got %s and %s", a, b)
	}
	c := ObjectKey("Funny", "clip (1).mp4", ts.Add(time.Millisecond))
	if a == c {
		t.Errorf("expected distinct keys for distinct timestamps")
	}
}

func TestObjectKey_EmptySanitizedName(t *testing.T) {
	key := ObjectKey("Funny", "???", time.UnixMilli(5))
	if key != "videos/Funny/5_video" {
		t.Errorf("unexpected key %s", key)
	}
}

func TestParseObjectKey(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()
	ch, got, name, err := ParseObjectKey(ObjectKey("Funny", "my cat.mp4", ts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch != "Funny" || !got.Equal(ts) || name != "my_cat.mp4" {
		t.Errorf("unexpected parse: %s %v %s", ch, got, name)
	}

	for _, bad := range []string{"other/Funny/1_a.mp4", "videos/Funny", "videos/Funny/noprefix.mp4", "videos/Funny/12ab_a.mp4"} {
		if _, _, _, err := ParseObjectKey(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		} else if !strings.Contains(err.Error(), "invalid key") {
			t.Errorf("unexpected error text: %v", err)
		}
	}
}
