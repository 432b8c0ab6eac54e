// Package api exposes the campaign manager over HTTP. Posting itself
// never happens here; the API only writes state for the dispatcher to
// act on.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"campaign_scheduler/internal/domain"
	"campaign_scheduler/internal/service"
)

// AccountStore is the slice of account persistence the API needs for
// connecting platform accounts.
type AccountStore interface {
	Create(ctx context.Context, account *domain.Account) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type Handler struct {
	service  *service.CampaignService
	accounts AccountStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(svc *service.CampaignService, accounts AccountStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:  svc,
		accounts: accounts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "api"),
	}
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.InvalidScheduleError{Reason: "malformed request body"}
	}
	return h.validate.Struct(dst)
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account := &domain.Account{
		Username:       req.Username,
		Timezone:       req.Timezone,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenExpiresAt: req.TokenExpiresAt.UTC(),
	}
	if err := h.accounts.Create(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}

	// Tokens never leave the process once stored.
	account.AccessToken = ""
	account.RefreshToken = ""
	h.writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account.AccessToken = ""
	account.RefreshToken = ""
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.accounts.Get(r.Context(), req.AccountID); err != nil {
		h.writeError(w, r, err)
		return
	}

	campaign := &domain.Campaign{
		AccountID:    req.AccountID,
		Title:        req.Title,
		Description:  req.Description,
		Language:     req.Language,
		Hashtags:     req.Hashtags,
		Tone:         req.Tone,
		CallToAction: req.CallToAction,
	}
	if err := h.service.CreateCampaign(r.Context(), campaign); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, campaign)
}

func (h *Handler) listCampaigns(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.URL.Query().Get("account_id"))
	if err != nil {
		h.writeError(w, r, &domain.InvalidScheduleError{Reason: "account_id query parameter is required"})
		return
	}

	limit, offset := pagination(r)
	campaigns, total, err := h.service.ListCampaigns(r.Context(), accountID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listResponse[domain.Campaign]{
		Items:  campaigns,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, campaign)
}

func (h *Handler) updateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req updateCampaignRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	campaign.Title = req.Title
	campaign.Description = req.Description
	campaign.Hashtags = req.Hashtags
	campaign.Tone = req.Tone
	campaign.CallToAction = req.CallToAction
	if err := h.service.UpdateCampaign(r.Context(), campaign); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, campaign)
}

func (h *Handler) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.DeleteCampaign(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) generateDrafts(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req generateDraftsRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.service.GenerateDrafts(r.Context(), id, req.Count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, drafts)
}

func (h *Handler) listDrafts(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	drafts, err := h.service.ListDrafts(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drafts)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	draft, err := h.service.GetDraft(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req updateDraftRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	draft, err := h.service.UpdateDraft(r.Context(), id, req.Text, req.ScheduledFor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.DeleteDraft(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) createSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createScheduleRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Recurrence == string(domain.RecurrenceDaily) && len(req.Times) == 0 && len(req.ExplicitTimes) == 0 {
		h.writeError(w, r, &domain.InvalidScheduleError{Reason: "daily recurrence requires times or explicit_times"})
		return
	}

	sched, nextRuns, err := h.service.CreateSchedule(r.Context(), req.toDomain(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, scheduleResponse{Schedule: sched, NextRuns: nextRuns})
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	limit, offset := pagination(r)
	entries, total, err := h.service.ListLogs(r.Context(), id, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, listResponse[domain.ActionLogEntry]{
		Items:  entries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
