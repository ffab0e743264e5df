package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.Client(), srv.URL, "TESTTOKEN"), srv
}

func writeOK(w http.ResponseWriter, result any) {
	raw, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": json.RawMessage(raw)})
}

func TestGetMe(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTESTTOKEN/getMe" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeOK(w, User{ID: 42, IsBot: true, Username: "linkgrab_bot"})
	}))
	defer srv.Close()

	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if me.ID != 42 || me.Username != "linkgrab_bot" {
		t.Errorf("me = %+v", me)
	}
}

func TestGetUpdatesOffset(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("offset"); got != "7" {
			t.Errorf("offset = %q, want 7", got)
		}
		writeOK(w, []Update{
			{UpdateID: 7, Message: &Message{MessageID: 1, Chat: &Chat{ID: 10}, Text: "hi"}},
			{UpdateID: 9, Message: &Message{MessageID: 2, Chat: &Chat{ID: 10}, Text: "yo"}},
		})
	}))
	defer srv.Close()

	updates, next, err := c.GetUpdates(context.Background(), 7, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(updates))
	}
	if next != 10 {
		t.Errorf("next offset = %d, want 10", next)
	}
}

func TestUpdateMsgPrefersMessage(t *testing.T) {
	edited := &Message{MessageID: 2}
	u := Update{EditedMessage: edited}
	if u.Msg() != edited {
		t.Error("edited message not returned")
	}
	direct := &Message{MessageID: 1}
	u.Message = direct
	if u.Msg() != direct {
		t.Error("direct message not preferred")
	}
}

func TestAPIErrorMapping(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 400, "description": "Bad Request: IMAGE_PROCESS_FAILED",
		})
	}))
	defer srv.Close()

	_, err := c.SendMessage(context.Background(), 1, "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != 400 {
		t.Errorf("code = %d, want 400", apiErr.Code)
	}
	if !apiErr.PhotoRejected() {
		t.Error("PhotoRejected() = false for IMAGE_PROCESS_FAILED")
	}
	if apiErr.TooLarge() {
		t.Error("TooLarge() = true for a photo rejection")
	}
}

func TestAPIErrorTooLarge(t *testing.T) {
	cases := []struct {
		err  APIError
		want bool
	}{
		{APIError{Code: 413, Description: "Request Entity Too Large"}, true},
		{APIError{Code: 400, Description: "file is too large"}, true},
		{APIError{Code: 400, Description: "chat not found"}, false},
	}
	for _, tc := range cases {
		if got := tc.err.TooLarge(); got != tc.want {
			t.Errorf("TooLarge(%+v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestSendMessage(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID  int64  `json:"chat_id"`
			Text    string `json:"text"`
			Preview bool   `json:"disable_web_page_preview"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ChatID != 5 || req.Text != "hello" || !req.Preview {
			t.Errorf("request = %+v", req)
		}
		writeOK(w, Message{MessageID: 77, Chat: &Chat{ID: 5}})
	}))
	defer srv.Close()

	msg, err := c.SendMessage(context.Background(), 5, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.MessageID != 77 {
		t.Errorf("message id = %d, want 77", msg.MessageID)
	}
}

func TestDeleteMessage(t *testing.T) {
	var gotMethod string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.URL.Path
		writeOK(w, true)
	}))
	defer srv.Close()

	if err := c.DeleteMessage(context.Background(), 5, 77); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(gotMethod, "/deleteMessage") {
		t.Errorf("method path = %q", gotMethod)
	}
}

func TestSendDocumentMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte("file-contents-here"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart parse: %v", err)
		}
		if got := r.FormValue("chat_id"); got != "9" {
			t.Errorf("chat_id = %q, want 9", got)
		}
		if got := r.FormValue("caption"); got != "a caption" {
			t.Errorf("caption = %q", got)
		}
		f, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "shown-name.bin" {
			t.Errorf("filename = %q, want shown-name.bin", hdr.Filename)
		}
		writeOK(w, Message{MessageID: 12})
	}))
	defer srv.Close()

	msg, err := c.SendDocument(context.Background(), 9, path, "shown-name.bin", "a caption")
	if err != nil {
		t.Fatal(err)
	}
	if msg.MessageID != 12 {
		t.Errorf("message id = %d, want 12", msg.MessageID)
	}
}

func TestCallNonJSONFailure(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream gateway error")
	}))
	defer srv.Close()

	_, err := c.GetMe(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Code != http.StatusBadGateway {
		t.Errorf("code = %d, want 502", apiErr.Code)
	}
}
