package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gainfair/internal/catalog"
	"gainfair/internal/content"
	"gainfair/internal/middleware"
	"gainfair/internal/models"
	"gainfair/internal/review"
	"gainfair/internal/store"
	"gainfair/internal/uploads"
	"gainfair/internal/util"
)

func parsePagination(r *http.Request) (int, int) {
	page := 1
	pageSize := review.DefaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			if ps < 1 {
				ps = 1
			}
			if ps > review.MaxPageSize {
				ps = review.MaxPageSize
			}
			pageSize = ps
		}
	}
	return page, pageSize
}

func registrationFilter(r *http.Request) review.Filter {
	q := r.URL.Query()
	page, size := parsePagination(r)
	return review.Filter{
		Tab:          review.Tab(q.Get("tab")),
		AttendeeType: catalog.Category(q.Get("attendee_type")),
		ReviewStatus: models.ReviewStatus(q.Get("review_status")),
		Q:            q.Get("q"),
		Page:         page,
		PageSize:     size,
	}
}

// adminID is safe to call behind the admin guard.
func adminID(r *http.Request) string {
	if s := middleware.Session(r.Context()); s != nil {
		return s.UserID
	}
	return ""
}

func (h *Handlers) AdminListRegistrations(w http.ResponseWriter, r *http.Request) {
	listing, err := h.review.List(r.Context(), registrationFilter(r))
	if errors.Is(err, review.ErrInvalidFilter) {
		util.WriteError(w, 400, "bad_request", err.Error(), h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "list registrations failed")
		return
	}
	util.WriteJSON(w, 200, listing)
}

func (h *Handlers) AdminExportRegistrations(w http.ResponseWriter, r *http.Request) {
	f := registrationFilter(r)
	// Validate before the header is committed.
	if _, err := h.review.List(r.Context(), review.Filter{Tab: f.Tab, AttendeeType: f.AttendeeType, ReviewStatus: f.ReviewStatus, PageSize: 1}); err != nil {
		if errors.Is(err, review.ErrInvalidFilter) {
			util.WriteError(w, 400, "bad_request", err.Error(), h.rid(r))
			return
		}
		h.internalError(w, r, err, "export registrations failed")
		return
	}
	name := fmt.Sprintf("registrations_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := h.review.ExportCSV(r.Context(), f, w); err != nil {
		h.log.Error().Err(err).Str("request_id", h.rid(r)).Msg("export registrations interrupted")
		return
	}
	h.audit(r, "registration.export", string(f.Tab))
}

func (h *Handlers) AdminApproveRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	approval, err := h.review.Approve(r.Context(), adminID(r), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, 404, "not_found", "registration not found", h.rid(r))
	case errors.Is(err, store.ErrConflict):
		util.WriteError(w, 409, "already_decided", "registration has already been decided", h.rid(r))
	case errors.Is(err, review.ErrEmailNotQueued):
		util.WriteError(w, 502, "email_not_queued", "confirmation email could not be queued; the registration was not approved", h.rid(r))
	case err != nil:
		h.internalError(w, r, err, "approve registration failed")
	default:
		util.WriteJSON(w, 200, map[string]string{"status": "approved", "invoice_number": approval.InvoiceNumber})
	}
}

func (h *Handlers) AdminRejectRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Note string `json:"note"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	err := h.review.Reject(r.Context(), adminID(r), id, req.Note)
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, 404, "not_found", "registration not found", h.rid(r))
	case errors.Is(err, store.ErrConflict):
		util.WriteError(w, 409, "already_decided", "registration has already been decided", h.rid(r))
	case err != nil:
		h.internalError(w, r, err, "reject registration failed")
	default:
		util.WriteJSON(w, 200, map[string]string{"status": "rejected"})
	}
}

func (h *Handlers) AdminListContent(w http.ResponseWriter, r *http.Request) {
	page := r.URL.Query().Get("page")
	if page == "" {
		util.WriteJSON(w, 200, map[string]any{"pages": h.content.Templates().Pages()})
		return
	}
	entries, err := h.content.Page(r.Context(), page)
	if errors.Is(err, content.ErrUnknownPage) {
		util.WriteError(w, 404, "unknown_page", err.Error(), h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "list content failed")
		return
	}
	util.WriteJSON(w, 200, map[string]any{"page": page, "items": entries})
}

func (h *Handlers) AdminContentTemplates(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, 200, h.content.Templates())
}

func (h *Handlers) AdminSaveContent(w http.ResponseWriter, r *http.Request) {
	key := content.PageKey{Page: chi.URLParam(r, "page"), Key: chi.URLParam(r, "key")}
	var f content.Fields
	if err := util.DecodeJSON(w, r, &f); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", h.rid(r))
		return
	}
	if f.Type != nil && !f.Type.Valid() {
		util.WriteError(w, 400, "invalid_content", "unknown content_type "+string(*f.Type), h.rid(r))
		return
	}
	rec, err := h.content.Save(r.Context(), key, f)
	switch {
	case errors.Is(err, content.ErrUnknownPage):
		util.WriteError(w, 404, "unknown_page", err.Error(), h.rid(r))
	case errors.Is(err, content.ErrInvalidKey), errors.Is(err, content.ErrInvalidValue):
		util.WriteError(w, 400, "invalid_content", err.Error(), h.rid(r))
	case err != nil:
		h.internalError(w, r, err, "save content failed")
	default:
		h.audit(r, "content.save", key.String())
		util.WriteJSON(w, 200, rec)
	}
}

func (h *Handlers) AdminDeleteContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.content.Delete(r.Context(), id)
	if errors.Is(err, content.ErrNotFound) {
		util.WriteError(w, 404, "not_found", "content not found", h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "delete content failed")
		return
	}
	h.audit(r, "content.delete", id)
	util.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}

// AdminUpload takes multipart fields file, content_type and key.
func (h *Handlers) AdminUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		util.WriteError(w, 503, "uploads_disabled", "uploads are not configured", h.rid(r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.UploadMaxBytes+1<<20)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		util.WriteError(w, 400, "bad_request", "multipart field file is required", h.rid(r))
		return
	}
	defer file.Close()

	kind := content.Type(strings.TrimSpace(r.FormValue("content_type")))
	key := r.FormValue("key")
	stored, err := h.uploads.Save(r.Context(), kind, key, hdr.Filename, file)
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		util.WriteError(w, 413, "too_large", err.Error(), h.rid(r))
	case errors.Is(err, uploads.ErrWrongKind), errors.Is(err, uploads.ErrNotMedia),
		errors.Is(err, uploads.ErrEmptyUpload), errors.Is(err, content.ErrInvalidKey):
		util.WriteError(w, 400, "invalid_upload", err.Error(), h.rid(r))
	case err != nil:
		h.internalError(w, r, err, "upload failed")
	default:
		h.audit(r, "content.upload", stored.URL)
		util.WriteJSON(w, 201, stored)
	}
}

func (h *Handlers) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)
	items, err := h.store.ListAudit(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.internalError(w, r, err, "list audit log failed")
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items, "page": page, "page_size": pageSize})
}

func (h *Handlers) audit(r *http.Request, action, target string) {
	if err := h.store.InsertAudit(r.Context(), adminID(r), action, target, "{}"); err != nil {
		h.log.Warn().Err(err).Str("action", action).Msg("audit insert failed")
	}
}

func (h *Handlers) PublicPage(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	values, err := h.content.Public(r.Context(), page)
	if errors.Is(err, content.ErrUnknownPage) {
		util.WriteError(w, 404, "unknown_page", "page not found", h.rid(r))
		return
	}
	if err != nil {
		h.internalError(w, r, err, "load page content failed")
		return
	}
	util.WriteJSON(w, 200, map[string]any{"page": page, "content": values})
}
