package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-admin/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL + "/api/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"localhost:5000", "ftp://example.com/api", "://nope"} {
		if _, err := New(base); err == nil {
			t.Errorf("New(%q) succeeded, want error", base)
		}
	}
}

func TestClient_GetUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.EscapedPath() != "/api/users/a%2Fb" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		json.NewEncoder(w).Encode(domain.User{UserID: "a/b", FirstName: "Ada"})
	})

	user, err := c.GetUser(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.FirstName != "Ada" {
		t.Errorf("user = %+v", user)
	}
}

func TestClient_APIErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"missing transactions.json"}`))
	})

	_, err := c.UploadArchive(context.Background(), "export.zip", strings.NewReader("PK"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "missing transactions.json" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_UploadArchive(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, fh, err := r.FormFile("zipFile")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if fh.Filename != "export.zip" || string(data) != "PK-bytes" {
			t.Errorf("got %s with %q", fh.Filename, data)
		}
		json.NewEncoder(w).Encode(domain.UploadResult{Message: "Import completed", TransactionsProcessed: 3})
	})

	result, err := c.UploadArchive(context.Background(), "/tmp/export.zip", strings.NewReader("PK-bytes"))
	if err != nil {
		t.Fatalf("UploadArchive: %v", err)
	}
	if result.TransactionsProcessed != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_DeleteRequiresConfirmation(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path == "/api/users/u1" && r.URL.Query().Get("cascade") != "false" {
			t.Errorf("cascade = %q", r.URL.Query().Get("cascade"))
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	decline := ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

	if err := c.DeleteUser(ctx, decline, "u1", nil); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("declined DeleteUser: %v", err)
	}
	if err := c.DeleteTransaction(ctx, nil, "T1"); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("nil confirmer DeleteTransaction: %v", err)
	}
	if calls != 0 {
		t.Fatalf("declined deletes sent %d requests", calls)
	}

	var prompt string
	record := ConfirmFunc(func(_ context.Context, p string) (bool, error) { prompt = p; return true, nil })
	cascade := false
	if err := c.DeleteUser(ctx, record, "u1", &cascade); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if prompt != "Delete user u1?" {
		t.Errorf("prompt = %q", prompt)
	}
	if err := c.DeleteTransaction(ctx, AlwaysConfirm, "T1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestClient_ListTransactionsRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "2024-01-01T00:00:00Z" || q.Has("to") {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"reference":"T1","amount":"12.5","timestamp":"2024-01-02T10:00:00Z"}]`))
	})

	txs, err := c.ListTransactions(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Amount.String() != "12.5" {
		t.Errorf("txs = %+v", txs)
	}
}
