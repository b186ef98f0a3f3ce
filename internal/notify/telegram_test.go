package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNotify_PostsToAdminChat(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewTelegram("TOKEN", "12345")
	c.BaseURL = srv.URL

	if err := c.Notify(context.Background(), "low stock"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.ChatID != "12345" || gotBody.Text != "low stock" || gotBody.ParseMode != "HTML" {
		t.Fatalf("unexpected payload: %+v", gotBody)
	}
}

func TestSendMessage_TargetsGivenChat(t *testing.T) {
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewTelegram("TOKEN", "12345")
	c.BaseURL = srv.URL

	if err := c.SendMessage(context.Background(), 987654, "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotBody.ChatID != "987654" {
		t.Fatalf("chat id = %q; want 987654", gotBody.ChatID)
	}
}

func TestSend_MissingCredentials(t *testing.T) {
	c := NewTelegram("", "")
	if err := c.Notify(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without token/chat id")
	}

	c = NewTelegram("TOKEN", "")
	if err := c.Notify(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without chat id")
	}
}

func TestSend_NonOKStatusIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"description":"bot was blocked"}`))
	}))
	defer srv.Close()

	c := NewTelegram("TOKEN", "12345")
	c.BaseURL = srv.URL

	err := c.Notify(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "bot was blocked") {
		t.Fatalf("expected error carrying the API body, got %v", err)
	}
}

func TestAnnounceStartup_SwallowsFailure(t *testing.T) {
	c := NewTelegram("TOKEN", "12345")
	c.BaseURL = "http://127.0.0.1:0" // unroutable

	// Must not panic or propagate.
	c.AnnounceStartup(context.Background())
}
