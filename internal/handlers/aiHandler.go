package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kvallam/MedVaultAPI/internal/adapter"
	"github.com/kvallam/MedVaultAPI/internal/api"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/internal/domain/recordModel"
	"github.com/kvallam/MedVaultAPI/internal/metrics"
	"github.com/kvallam/MedVaultAPI/internal/orchestrator"
	"github.com/kvallam/MedVaultAPI/internal/retrieval"
)

// Search godoc
// @Summary      Semantic search over accessible records
// @Description  Embeds the query and ranks the caller's accessible records by similarity. Results never include records outside the caller's scope.
// @Tags         AI
// @Accept       json
// @Produce      json
// @Param        request  body      api.SearchRequest  true  "Query and optional result count"
// @Success      200      {object}  api.SearchResponse
// @Failure      400      {object}  api.ErrorResponse  "Empty query or unknown role"
// @Router       /ai/search [post]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}

	var requestData api.SearchRequest
	defer closeBody(r.Body, h)
	if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
		h.writeErrorCode(w, r, http.StatusBadRequest, "bad request body")
		return
	}

	hits, err := h.retrieval.Search(r.Context(), caller, requestData.Query, requestData.TopK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJsonResponse(w, http.StatusOK, adapter.ToSearchResponse(hits))
}

// Ask godoc
// @Summary      Ask a question about one record
// @Description  Answers from the record's own chunks. Records with no searchable content get a fixed answer without a completion call.
// @Tags         AI
// @Accept       json
// @Produce      json
// @Param        request  body      api.AskRequest  true  "Record ID and question"
// @Success      200      {object}  api.AskResponse
// @Failure      403      {object}  api.ErrorResponse  "Record outside the caller's scope"
// @Failure      404      {object}  api.ErrorResponse  "Record unknown"
// @Router       /ai/ask [post]
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}

	var requestData api.AskRequest
	defer closeBody(r.Body, h)
	if err := json.NewDecoder(r.Body).Decode(&requestData); err != nil {
		h.writeErrorCode(w, r, http.StatusBadRequest, "bad request body")
		return
	}

	answer, err := h.retrieval.Ask(r.Context(), caller, requestData.RecordId, requestData.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJsonResponse(w, http.StatusOK, adapter.ToAskResponse(answer))
}

// Reprocess godoc
// @Summary      Re-queue processing for a record
// @Description  Resets the record's retry budget and schedules a fresh processing run. Scope-checked like every record operation.
// @Tags         AI
// @Produce      json
// @Param        id   path      string  true  "Record ID"
// @Success      202  {object}  api.ReprocessResponse
// @Failure      403  {object}  api.ErrorResponse  "Record outside the caller's scope"
// @Failure      404  {object}  api.ErrorResponse  "Record unknown"
// @Failure      503  {object}  api.ErrorResponse  "Task queue saturated"
// @Router       /ai/process/{id} [post]
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerFrom(w, r)
	if !ok {
		return
	}
	recordId := chi.URLParam(r, "id")

	// Access is checked before the record is even looked up so callers outside
	// the scope cannot learn which record ids exist.
	allowed, err := retrieval.CanAccess(r.Context(), caller, h.access, recordId)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !allowed {
		h.writeAudit(r.Context(), caller.UserId, recordModel.ActionAccessDenied, recordId)
		metrics.IncrementAccessDenied()
		h.writeError(w, r, faults.ErrAccessDenied)
		return
	}

	if err := h.orch.Dispatch(r.Context(), orchestrator.EventReprocess, recordId, traceIdFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJsonResponse(w, http.StatusAccepted, api.ReprocessResponse{
		RecordId: recordId,
		Status:   "scheduled",
	})
}

// AgentStatus godoc
// @Summary      Pipeline stage health
// @Description  Probes every registered stage and reports the queue depth.
// @Tags         AI
// @Produce      json
// @Success      200  {object}  api.StatusResponse
// @Router       /ai/agents/status [get]
func (h *Handler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	stages := h.orch.Status(r.Context())
	h.writeJsonResponse(w, http.StatusOK, adapter.ToStatusResponse(stages, h.orch.QueueDepth()))
}

func closeBody(body io.ReadCloser, h *Handler) {
	if err := body.Close(); err != nil {
		h.logger.Error("could not close request body", "error", err)
	}
}
