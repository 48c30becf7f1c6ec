package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendGridPostsMessage(t *testing.T) {
	var got struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
		} `json:"personalizations"`
	}
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, path = r.Header.Get("Authorization"), r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	relay := NewSendGrid("sg-key", "Vedarc", "noreply@vedarc.org", WithSendGridHost(srv.URL))
	err := relay.Send(context.Background(), Message{To: "a@b.io", Subject: "Welcome", Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer sg-key" || path != sendGridEndpoint {
		t.Fatalf("unexpected request auth=%q path=%q", auth, path)
	}
	if got.From.Email != "noreply@vedarc.org" || len(got.Personalizations) != 1 || got.Personalizations[0].Subject != "Welcome" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSendGridReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad from"}]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	relay := NewSendGrid("k", "", "noreply@vedarc.org", WithSendGridHost(srv.URL))
	if err := relay.Send(context.Background(), Message{To: "a@b.io", Subject: "s", Text: "t"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestSendGridHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	defer close(release)

	relay := NewSendGrid("k", "", "noreply@vedarc.org", WithSendGridHost(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := relay.Send(ctx, Message{To: "a@b.io", Subject: "s", Text: "t"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Send did not return at the deadline")
	}
}
