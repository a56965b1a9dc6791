package importer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

func TestClientPreview(t *testing.T) {
	var gotAuth, gotContentType, gotPath string
	var gotBody struct {
		Users []roster.UserRecord `json:"users"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(roster.ImportPreview{
			ToAdd:        []roster.UserChange{{Email: "ada@example.com", Roles: []string{"member"}}},
			ToUpdate:     []roster.UserChange{},
			ToDeactivate: []roster.UserChange{},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok123")
	records := []roster.UserRecord{{Email: "ada@example.com", Roles: []string{"member"}}}

	preview, err := client.Preview(context.Background(), records)
	if err != nil {
		t.Fatalf("Preview() error: %v", err)
	}

	if gotPath != "/api/users/preview" {
		t.Errorf("path = %q, want /api/users/preview", gotPath)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if len(gotBody.Users) != 1 || gotBody.Users[0].Email != "ada@example.com" {
		t.Errorf("request users = %+v", gotBody.Users)
	}
	if len(preview.ToAdd) != 1 || preview.ToAdd[0].Email != "ada@example.com" {
		t.Errorf("preview.ToAdd = %+v", preview.ToAdd)
	}
}

func TestClientSyncValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","users",1,"email"],"msg":"missing email"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Sync(context.Background(), nil)
	if err == nil {
		t.Fatal("Sync() expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Kind != ErrorFields {
		t.Fatalf("Kind = %v, want ErrorFields", apiErr.Kind)
	}
	if len(apiErr.FieldErrors) != 1 || apiErr.FieldErrors[0] != "Row 2: missing email" {
		t.Errorf("FieldErrors = %v, want [Row 2: missing email]", apiErr.FieldErrors)
	}
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantMsg  string
		wantErrs []string
	}{
		{
			name:     "detail string",
			status:   401,
			body:     `{"detail":"missing bearer token"}`,
			wantKind: ErrorMessage,
			wantMsg:  "missing bearer token",
		},
		{
			name:     "detail array with row index",
			status:   422,
			body:     `{"detail":[{"loc":["body","users",0,"email"],"msg":"malformed email \"x\""}]}`,
			wantKind: ErrorFields,
			wantErrs: []string{`Row 1: malformed email "x"`},
		},
		{
			name:     "detail array without row index",
			status:   422,
			body:     `{"detail":[{"loc":["body"],"msg":"field required"}]}`,
			wantKind: ErrorFields,
			wantErrs: []string{"field required"},
		},
		{
			name:     "html error page",
			status:   502,
			body:     `<html><body>Bad Gateway</body></html>`,
			wantKind: ErrorOpaque,
		},
		{
			name:     "empty body",
			status:   500,
			body:     ``,
			wantKind: ErrorOpaque,
		},
		{
			name:     "empty detail array",
			status:   422,
			body:     `{"detail":[]}`,
			wantKind: ErrorOpaque,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeError(tt.status, []byte(tt.body))
			if got.Status != tt.status {
				t.Errorf("Status = %d, want %d", got.Status, tt.status)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if tt.wantMsg != "" && got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if len(tt.wantErrs) > 0 {
				if len(got.FieldErrors) != len(tt.wantErrs) {
					t.Fatalf("FieldErrors = %v, want %v", got.FieldErrors, tt.wantErrs)
				}
				for i := range tt.wantErrs {
					if got.FieldErrors[i] != tt.wantErrs[i] {
						t.Errorf("FieldErrors[%d] = %q, want %q", i, got.FieldErrors[i], tt.wantErrs[i])
					}
				}
			}
		})
	}
}
