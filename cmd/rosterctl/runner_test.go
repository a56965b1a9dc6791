package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/jefferyharrell/tagline-roster/internal/importer"
	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := DefaultCtlConfig()
			logger := log.New(&bytes.Buffer{})
			output := &bytes.Buffer{}
			client := importer.NewClient("http://localhost:8080", "")

			runner := NewRunner(RunnerOpts{
				Config: config,
				Client: client,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.client != client {
				t.Error("expected client to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config")
			}
			if runner.client == nil {
				t.Error("expected default client")
			}
			if runner.config.Server.URL == "" {
				t.Error("expected embedded default server URL")
			}
		})
	})

	t.Run("confirm", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
			want  bool
		}{
			{"exact yes", "yes\n", true},
			{"yes with whitespace", "  yes  \n", true},
			{"no", "no\n", false},
			{"empty line", "\n", false},
			{"y is not enough", "y\n", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				output := &bytes.Buffer{}
				runner := NewRunner(RunnerOpts{
					Output: output,
					Input:  strings.NewReader(tt.input),
				})

				got, err := runner.confirm("Type 'yes' to continue:")
				if err != nil {
					t.Fatalf("confirm() error: %v", err)
				}
				if got != tt.want {
					t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
				}
				if !strings.Contains(output.String(), "Type 'yes' to continue:") {
					t.Error("prompt was not written to output")
				}
			})
		}
	})

	t.Run("printPreview", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		preview := &roster.ImportPreview{
			ToAdd: []roster.UserChange{{Email: "ada@example.com", Firstname: "Ada", Roles: []string{"member"}}},
			ToUpdate: []roster.UserChange{{
				Email:         "grace@example.com",
				Roles:         []string{"curator"},
				PreviousRoles: []string{"member"},
			}},
			ToDeactivate: []roster.UserChange{},
			InvalidRoles: []string{"wizard"},
		}

		if err := runner.printPreview(preview); err != nil {
			t.Fatalf("printPreview() error: %v", err)
		}

		got := output.String()
		for _, want := range []string{
			"To add:        1",
			"To update:     1",
			"To deactivate: 0",
			"ada@example.com",
			"(was [member])",
			"unknown role: wizard",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
	})
}

func TestRolesCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/roles" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"roles":["administrator","curator","member"]}`)
	}))
	defer srv.Close()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Client: importer.NewClient(srv.URL, ""),
		Output: output,
	})

	if err := runner.Roles(context.Background(), &cli.Command{}); err != nil {
		t.Fatalf("Roles() error: %v", err)
	}

	want := "administrator\ncurator\nmember\n"
	if got := output.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestDescribeAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "message error",
			err:  &importer.APIError{Status: 401, Kind: importer.ErrorMessage, Message: "missing bearer token"},
			want: "server error (401): missing bearer token",
		},
		{
			name: "field errors",
			err:  &importer.APIError{Status: 422, Kind: importer.ErrorFields, FieldErrors: []string{"Row 2: missing email"}},
			want: "server rejected the roster:\n  Row 2: missing email",
		},
		{
			name: "opaque",
			err:  &importer.APIError{Status: 502, Kind: importer.ErrorOpaque},
			want: "server returned an unexpected 502 response",
		},
		{
			name: "plain error passes through",
			err:  errors.New("connection refused"),
			want: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeAPIError(tt.err).Error(); got != tt.want {
				t.Errorf("describeAPIError() = %q, want %q", got, tt.want)
			}
		})
	}
}
