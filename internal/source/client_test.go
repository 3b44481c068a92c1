package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server) *Client {
	c := NewClient(server.URL, "Funny", "test-token")
	c.httpClient = server.Client()
	c.downloadClient = server.Client()
	return c
}

func TestListMessages_ClassifiesAttachments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/Funny/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("after_id"); got != "10" {
			t.Errorf("expected after_id=10, got %s", got)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("expected limit=100, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %s", got)
		}
		io.WriteString(w, `{"messages":[
			{"id":11,"date":1700000000,"media":{"type":"document","document_id":"d1","file_name":"cat.mp4","mime_type":"video/mp4","size":2048,"duration":12}},
			{"id":12,"date":1700000060},
			{"id":13,"date":1700000120,"media":{"type":"photo","document_id":"p1"}},
			{"id":14,"date":1700000180,"media":{"type":"document","document_id":"d2","mime_type":"video/quicktime","size":10}},
			{"id":15,"date":1700000240,"media":{"type":"document","document_id":"d3","file_name":"a.pdf","mime_type":"application/pdf"}}
		]}`)
	}))
	defer server.Close()

	msgs, err := newTestClient(server).ListMessages(context.Background(), 10, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantKinds := []AttachmentKind{AttachmentVideo, AttachmentNone, AttachmentOther, AttachmentVideo, AttachmentOther}
	if len(msgs) != len(wantKinds) {
		t.Fatalf("expected %d messages, got %d", len(wantKinds), len(msgs))
	}
	for i, k := range wantKinds {
		if msgs[i].Attachment.Kind != k {
			t.Errorf("message %d: expected kind %s, got %s", msgs[i].ID, k, msgs[i].Attachment.Kind)
		}
		if (msgs[i].Attachment.Video != nil) != (k == AttachmentVideo) {
			t.Errorf("message %d: Video set inconsistently with kind", msgs[i].ID)
		}
	}

	v := msgs[0].Attachment.Video
	if v.DocumentID != "d1" || v.FileName != "cat.mp4" || v.Size != 2048 || v.Duration == nil || *v.Duration != 12 {
		t.Errorf("unexpected video attachment: %+v", v)
	}
	if !msgs[0].Date.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected date: %v", msgs[0].Date)
	}
	if name := msgs[3].Attachment.Video.FileName; name != "video_d2.mp4" {
		t.Errorf("expected fallback file name video_d2.mp4, got %s", name)
	}
}

func TestListMessages_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrSourceUnavailable) {
					t.Errorf("expected ErrSourceUnavailable, got %v", err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrSourceUnavailable) {
					t.Errorf("expected ErrSourceUnavailable, got %v", err)
				}
				var se *StatusError
				if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
					t.Errorf("expected StatusError 502, got %v", err)
				}
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "7"},
			check: func(t *testing.T, err error) {
				var rl *RateLimitError
				if !errors.As(err, &rl) {
					t.Fatalf("expected RateLimitError, got %v", err)
				}
				if rl.RetryAfter != 7*time.Second {
					t.Errorf("expected 7s, got %s", rl.RetryAfter)
				}
			},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				if errors.Is(err, ErrSourceUnavailable) {
					t.Errorf("400 should not be ErrSourceUnavailable")
				}
				var se *StatusError
				if !errors.As(err, &se) {
					t.Errorf("expected StatusError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":"nope"}`)
			}))
			defer server.Close()

			_, err := newTestClient(server).ListMessages(context.Background(), 0, 100)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestListMessages_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(server)
	server.Close()

	_, err := c.ListMessages(context.Background(), 0, 100)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels/Funny/messages/11/media/d1":
			io.WriteString(w, "video-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	c := newTestClient(server)

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), 11, "d1", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len("video-bytes")) || buf.String() != "video-bytes" {
		t.Errorf("unexpected download result n=%d body=%q", n, buf.String())
	}

	_, err = c.Download(context.Background(), 99, "gone", io.Discard)
	if !errors.Is(err, ErrMediaNotFound) {
		t.Errorf("expected ErrMediaNotFound, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	if err := newTestClient(server).Authenticate(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := newTestClient(server)
	bad.token = "wrong"
	if err := bad.Authenticate(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("expected 0, got %s", d)
	}
	if d := parseRetryAfter("3"); d != 3*time.Second {
		t.Errorf("expected 3s, got %s", d)
	}
	if d := parseRetryAfter("garbage"); d != 0 {
		t.Errorf("expected 0, got %s", d)
	}
}
