package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	unsafeChars    = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	repeatedUnders = regexp.MustCompile(`__+`)
)

// SanitizeFileName replaces every character outside [A-Za-z0-9.-] with an
// underscore, collapses runs of underscores and trims them from both ends.
func SanitizeFileName(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = repeatedUnders.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// ObjectKey returns videos/<channel>/<timestampMillis>_<sanitizedFileName>.
// The key depends only on its inputs, so transferring the same item twice
// overwrites one object instead of creating two.
func ObjectKey(channel, fileName string, timestamp time.Time) string {
	name := SanitizeFileName(fileName)
	if name == "" {
		name = "video"
	}
	return fmt.Sprintf("videos/%s/%d_%s", SanitizeFileName(channel), timestamp.UnixMilli(), name)
}

// ParseObjectKey recovers the channel, source timestamp and file name from a
// key built by ObjectKey.
func ParseObjectKey(key string) (channel string, timestamp time.Time, fileName string, err error) {
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != "videos" {
		return "", time.Time{}, "", fmt.Errorf("invalid key %q: expected videos/<channel>/<millis>_<file>", key)
	}
	millis, name, ok := strings.Cut(parts[2], "_")
	if !ok {
		return "", time.Time{}, "", fmt.Errorf("invalid key %q: missing timestamp prefix", key)
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return "", time.Time{}, "", fmt.Errorf("invalid key %q: timestamp: %w", key, err)
	}
	return parts[1], time.UnixMilli(ms).UTC(), name, nil
}
