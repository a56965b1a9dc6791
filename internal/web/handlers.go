package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jefferyharrell/tagline-roster/internal/logging"
	"github.com/jefferyharrell/tagline-roster/internal/roster"
	"github.com/jefferyharrell/tagline-roster/internal/store"
	"github.com/jefferyharrell/tagline-roster/internal/web/middleware"
)

// importRequest is the body of the preview and sync endpoints: the full
// parsed roster. Deactivation is computed from omission, so the list must
// be the complete intended user set, not a delta.
type importRequest struct {
	Users []roster.UserRecord `json:"users"`
}

// handleHealth reports database connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		respondDetail(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePreview computes the import diff without writing anything. The
// response includes validation problems; a preview with problems cannot
// be committed.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeImportRequest(w, r)
	if !ok {
		return
	}

	preview, err := s.store.Preview(r.Context(), req.Users)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, preview)
}

// handleSync commits the roster replacement in a single transaction. The
// diff is recomputed against the current database state, so a preview that
// raced with another import is silently superseded rather than applied
// stale.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeImportRequest(w, r)
	if !ok {
		return
	}

	actor := middleware.ActorFromContext(r.Context())

	summary, err := s.store.Sync(r.Context(), req.Users, actor)
	if err != nil {
		var blocked *store.BlockedError
		if errors.As(err, &blocked) {
			respondBlocked(w, blocked.Preview)
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			s.respondError(w, r, err, http.StatusGatewayTimeout)
			return
		}
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleListUsers returns the full roster, active and inactive.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleExportUsers streams the active roster as CSV or TSV. The output
// uses the same column layout the importer reads, so a downloaded export
// can be re-imported unchanged. This is the backup operators are told to
// take before committing a replacement.
func (s *Server) handleExportUsers(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "tsv" {
		respondDetail(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	users, err := s.store.Users(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("users-%s.%s", time.Now().Format("2006-01-02"), format)
	if format == "tsv" {
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := writeRoster(w, users, format); err != nil {
		// Headers are already out; all we can do is flag the truncated download.
		logging.FromContext(r.Context()).Error("roster export interrupted", "error", err)
	}
}

// writeRoster streams active users in the importable column layout: the
// header names the first three columns, roles spread across the rest.
func writeRoster(w io.Writer, users []roster.User, format string) error {
	cw := csv.NewWriter(w)
	if format == "tsv" {
		cw.Comma = '\t'
	}

	cw.Write([]string{"firstname", "lastname", "email", "roles"})
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		row := append([]string{u.Firstname, u.Lastname, u.Email}, u.Roles...)
		cw.Write(row)
	}

	cw.Flush()
	return cw.Error()
}

// handleListRoles returns the configured role names.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.store.RoleNames(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"roles": roles})
}

// handleImportHistory returns recent import events, newest first.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.store.ImportHistory(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": events})
}

// decodeImportRequest reads and validates the shared preview/sync body.
// It reports the error itself and returns ok=false on failure.
func (s *Server) decodeImportRequest(w http.ResponseWriter, r *http.Request) (importRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondDetail(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds %d bytes", s.cfg.Import.MaxFileSize))
			return importRequest{}, false
		}
		respondDetail(w, http.StatusBadRequest, "invalid JSON body")
		return importRequest{}, false
	}

	if len(req.Users) > s.cfg.Import.MaxRequestUsers {
		respondDetail(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request contains %d users, limit is %d", len(req.Users), s.cfg.Import.MaxRequestUsers))
		return importRequest{}, false
	}

	return req, true
}
