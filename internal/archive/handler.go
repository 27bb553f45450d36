package archive

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/embalage-erp/embalage-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the archive.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the archive handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers archive routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/archive", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/export.csv", h.handleExportCSV)
		r.Post("/{kind}/{id}", h.handleArchive)
		r.Get("/{archiveID}", h.handleGet)
		r.Post("/{archiveID}/restore", h.handleRestore)
	})
}

type archivedResponse struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	SourceID   int64  `json:"source_id"`
	Reference  string `json:"reference"`
	ClientID   int64  `json:"client_id,omitempty"`
	Summary    string `json:"summary,omitempty"`
	ArchivedAt string `json:"archived_at"`
	RestoredAt string `json:"restored_at,omitempty"`
}

func toArchivedResponse(at ArchivedTransaction) archivedResponse {
	resp := archivedResponse{
		ID:         at.ID.String(),
		Kind:       at.Kind,
		SourceID:   at.SourceID,
		Reference:  at.Reference,
		ClientID:   at.ClientID,
		Summary:    at.Summary,
		ArchivedAt: at.ArchivedAt.Format(time.RFC3339),
	}
	if at.RestoredAt != nil {
		resp.RestoredAt = at.RestoredAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	kind := Kind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "id must be an integer")
		return
	}
	archived, err := h.service.Archive(r.Context(), kind, id)
	if err != nil {
		h.logger.Error("archive record", slog.String("kind", string(kind)), slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toArchivedResponse(archived))
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "archiveID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "archiveID must be a UUID")
		return
	}
	restored, err := h.service.Restore(r.Context(), id)
	if err != nil {
		h.logger.Error("restore record", slog.String("archive", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toArchivedResponse(restored))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "archiveID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "archiveID must be a UUID")
		return
	}
	archived, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := struct {
		archivedResponse
		Snapshot any `json:"snapshot"`
	}{archivedResponse: toArchivedResponse(archived), Snapshot: archived.Snapshot}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	archived, err := h.service.List(r.Context(), kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]archivedResponse, 0, len(archived))
	for _, at := range archived {
		resp = append(resp, toArchivedResponse(at))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	archived, err := h.service.List(r.Context(), kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="archive-%s.csv"`, time.Now().Format("2006-01-02")))

	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	_ = writer.Write([]string{"id", "kind", "source_id", "reference", "client_id", "summary", "archived_at", "restored_at"})
	for _, at := range archived {
		restoredAt := ""
		if at.RestoredAt != nil {
			restoredAt = at.RestoredAt.Format(time.RFC3339)
		}
		clientID := ""
		if at.ClientID != 0 {
			clientID = strconv.FormatInt(at.ClientID, 10)
		}
		if err := writer.Write([]string{
			at.ID.String(),
			string(at.Kind),
			strconv.FormatInt(at.SourceID, 10),
			at.Reference,
			clientID,
			at.Summary,
			at.ArchivedAt.Format(time.RFC3339),
			restoredAt,
		}); err != nil {
			h.logger.Error("write archive csv", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
}
