package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lucky-draw/internal/db"
	"lucky-draw/internal/draw"
)

type previewRequest struct {
	ProjectID     string   `json:"project_id"`
	PrizeID       string   `json:"prize_id"`
	Count         int      `json:"count"`
	IncludeUIDs   []string `json:"include_uids"`
	IncludePhones []string `json:"include_phones"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type memberImportRequest struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	IsActive *bool  `json:"is_active"`
}

type membersBulkRequest struct {
	Members []memberImportRequest `json:"members"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUser(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Acting-User header is required")
		return
	}
	var req previewRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project_id")
		return
	}
	prizeID, err := uuid.Parse(req.PrizeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prize_id")
		return
	}

	batch, err := s.draws.Preview(r.Context(), projectID, prizeID, req.Count, user, draw.Scope{
		IncludeUIDs:   req.IncludeUIDs,
		IncludePhones: req.IncludePhones,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchPayload(batch))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var batch db.DrawBatch
	if err := s.db.WithContext(r.Context()).Preload("Winners").First(&batch, "id = ?", batchID).Error; err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchPayload(&batch))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUser(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Acting-User header is required")
		return
	}
	batchID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	batch, err := s.draws.Confirm(r.Context(), batchID, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchPayload(batch))
}

func (s *Server) handleVoid(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUser(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Acting-User header is required")
		return
	}
	batchID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	batch, err := s.draws.Void(r.Context(), batchID, req.Reason, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchPayload(batch))
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUser(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Acting-User header is required")
		return
	}
	winnerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	winner, err := s.draws.Revoke(r.Context(), winnerID, req.Reason, user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, winnerPayload(winner))
}

func (s *Server) handleListWinners(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	page, perPage := parsePagination(r, 50, 500)

	query := s.db.WithContext(r.Context()).Model(&db.DrawWinner{}).Where("project_id = ?", projectID)
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}
	if prizeID := strings.TrimSpace(r.URL.Query().Get("prize_id")); prizeID != "" {
		parsed, err := uuid.Parse(prizeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid prize_id")
			return
		}
		query = query.Where("prize_id = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeEngineError(w, err)
		return
	}
	var winners []db.DrawWinner
	err := query.Order("created_at DESC, id").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&winners).Error
	if err != nil {
		writeEngineError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(winners))
	for i := range winners {
		items = append(items, winnerPayload(&winners[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"winners":  items,
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

func (s *Server) handleResetWinners(w http.ResponseWriter, r *http.Request) {
	user, ok := actingUser(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "X-Acting-User header is required")
		return
	}
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.draws.ResetProjectWinners(r.Context(), projectID, req.Reason, user); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"status":     "reset",
	})
}

func (s *Server) handleBulkUpsertMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req membersBulkRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	items := make([]db.MemberImport, 0, len(req.Members))
	for _, member := range req.Members {
		active := true
		if member.IsActive != nil {
			active = *member.IsActive
		}
		items = append(items, db.MemberImport{
			UID:      member.UID,
			Name:     member.Name,
			Phone:    member.Phone,
			IsActive: active,
		})
	}
	written, err := db.BulkUpsertMembers(s.db.WithContext(r.Context()), projectID, items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"written":    written,
	})
}

func (s *Server) handleClearMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cleared, err := db.ClearProjectMembers(s.db.WithContext(r.Context()), projectID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": projectID,
		"cleared":    cleared,
	})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(r *http.Request, defaultPerPage, maxPerPage int) (int, int) {
	page := 1
	perPage := defaultPerPage
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			page = value
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("per_page")); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			perPage = value
		}
	}
	if maxPerPage > 0 && perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func batchPayload(batch *db.DrawBatch) map[string]any {
	winners := make([]map[string]any, 0, len(batch.Winners))
	for i := range batch.Winners {
		winners = append(winners, winnerPayload(&batch.Winners[i]))
	}
	payload := map[string]any{
		"id":           batch.ID,
		"project_id":   batch.ProjectID,
		"prize_id":     batch.PrizeID,
		"requested_by": batch.RequestedBy,
		"draw_count":   batch.DrawCount,
		"status":       batch.Status,
		"draw_scope":   batch.DrawScope,
		"created_at":   batch.CreatedAt.Format(time.RFC3339),
		"winners":      winners,
	}
	if batch.VoidReason != "" {
		payload["void_reason"] = batch.VoidReason
	}
	return payload
}

func winnerPayload(winner *db.DrawWinner) map[string]any {
	payload := map[string]any{
		"id":         winner.ID,
		"batch_id":   winner.BatchID,
		"project_id": winner.ProjectID,
		"prize_id":   winner.PrizeID,
		"uid":        winner.UID,
		"name":       winner.Name,
		"phone":      winner.Phone,
		"status":     winner.Status,
		"created_at": winner.CreatedAt.Format(time.RFC3339),
	}
	if winner.ConfirmedAt != nil {
		payload["confirmed_at"] = winner.ConfirmedAt.Format(time.RFC3339)
	}
	if winner.VoidReason != "" {
		payload["void_reason"] = winner.VoidReason
	}
	return payload
}
