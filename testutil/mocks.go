// Package testutil holds fakes shared by package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// BotCall is one request received by MockBotAPI.
type BotCall struct {
	Method string
	Form   url.Values
	// Files maps multipart field names to uploaded file names.
	Files map[string]string
}

// MockBotAPI is a fake Telegram Bot API server.
type MockBotAPI struct {
	*httptest.Server
	Token string

	mu       sync.Mutex
	calls    []BotCall
	updates  []map[string]interface{}
	failures map[string]string
	nextID   int
}

// NewMockBotAPI starts a fake Bot API accepting token.
func NewMockBotAPI(t *testing.T, token string) *MockBotAPI {
	t.Helper()
	m := &MockBotAPI{Token: token, failures: make(map[string]string), nextID: 100}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// Endpoint is the URL template expected by tgbotapi.NewBotAPIWithClient.
func (m *MockBotAPI) Endpoint() string { return m.URL + "/bot%s/%s" }

// QueueUpdate makes the next getUpdates call return a message update.
func (m *MockBotAPI) QueueUpdate(chatID int64, messageID int, fromID int64, username, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, map[string]interface{}{
		"update_id": len(m.updates) + 1,
		"message": map[string]interface{}{
			"message_id": messageID,
			"date":       0,
			"chat":       map[string]interface{}{"id": chatID, "type": "supergroup", "title": "test"},
			"from":       map[string]interface{}{"id": fromID, "is_bot": false, "first_name": "Test", "last_name": "User", "username": username},
			"text":       text,
		},
	})
}

// FailMethod makes method answer with an API error carrying description.
func (m *MockBotAPI) FailMethod(method, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = description
}

// Calls returns every recorded call except getMe and getUpdates.
func (m *MockBotAPI) Calls() []BotCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BotCall(nil), m.calls...)
}

func (m *MockBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + m.Token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"ok": false, "error_code": 401, "description": "Unauthorized"})
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)

	call := BotCall{Method: method, Files: map[string]string{}}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(64 << 20); err == nil {
			call.Form = url.Values(r.MultipartForm.Value)
			for field, headers := range r.MultipartForm.File {
				if len(headers) > 0 {
					call.Files[field] = headers[0].Filename
				}
			}
		}
	} else {
		_ = r.ParseForm()
		call.Form = r.PostForm
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if desc, ok := m.failures[method]; ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error_code": 400, "description": desc})
		return
	}
	switch method {
	case "getMe":
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": map[string]interface{}{
			"id": 1, "is_bot": true, "first_name": "relay", "username": "relay_bot",
		}})
		return
	case "getUpdates":
		result := m.updates
		m.updates = nil
		if result == nil {
			result = []map[string]interface{}{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": result})
		return
	}
	m.calls = append(m.calls, call)
	switch method {
	case "sendMessage", "sendVideo", "sendDocument":
		m.nextID++
		chatID, _ := strconv.ParseInt(call.Form.Get("chat_id"), 10, 64)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": map[string]interface{}{
			"message_id": m.nextID,
			"date":       0,
			"chat":       map[string]interface{}{"id": chatID, "type": "supergroup"},
		}})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
