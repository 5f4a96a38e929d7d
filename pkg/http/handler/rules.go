package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
	"github.com/yurykabanov/sweeper/pkg/domain"
)

type RuleService interface {
	Create(ctx context.Context, projectId string, input domain.RuleInput) (domain.Rule, error)
	Update(ctx context.Context, id string, patch domain.RulePatch) (domain.Rule, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Rule, error)
	List(ctx context.Context, projectId string) ([]domain.Rule, error)
}

type RuleRunner interface {
	Preview(ctx context.Context, ruleId string) (domain.PreviewResponse, error)
	Execute(ctx context.Context, ruleId string) (domain.ExecuteResult, error)
}

type RuleHandler struct {
	logger  logrus.FieldLogger
	service RuleService
	runner  RuleRunner
}

func NewRuleHandler(logger logrus.FieldLogger, service RuleService, runner RuleRunner) *RuleHandler {
	return &RuleHandler{
		logger:  logger,
		service: service,
		runner:  runner,
	}
}

func (h *RuleHandler) Routes(router *mux.Router) {
	router.HandleFunc("/rules", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/rules", h.List).Methods(http.MethodGet)
	router.HandleFunc("/rules/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/rules/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/rules/{id}", h.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/rules/{id}/preview", h.Preview).Methods(http.MethodGet)
	router.HandleFunc("/rules/{id}/execute", h.Execute).Methods(http.MethodPost)
}

type createRuleRequest struct {
	ProjectId string `json:"projectId"`
	domain.RuleInput
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	ctx := appcontext.WithProjectId(r.Context(), req.ProjectId)
	logger := appcontext.LoggerFromContext(h.logger, ctx)

	rule, err := h.service.Create(ctx, req.ProjectId, req.RuleInput)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	projectId := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectId == "" {
		badRequest(w, "projectId", "projectId is required")
		return
	}

	ctx := appcontext.WithProjectId(r.Context(), projectId)

	rules, err := h.service.List(ctx, projectId)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, rules)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, id := h.ruleContext(r)

	rule, err := h.service.Get(ctx, id)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, id := h.ruleContext(r)

	var patch domain.RulePatch
	if err := decodeBody(r, &patch); err != nil {
		writeBodyError(w, err)
		return
	}

	rule, err := h.service.Update(ctx, id, patch)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, id := h.ruleContext(r)

	if err := h.service.Delete(ctx, id); err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ctx, id := h.ruleContext(r)

	preview, err := h.runner.Preview(ctx, id)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, preview)
}

func (h *RuleHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ctx, id := h.ruleContext(r)

	result, err := h.runner.Execute(ctx, id)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

func (h *RuleHandler) ruleContext(r *http.Request) (context.Context, string) {
	id := mux.Vars(r)["id"]

	return appcontext.WithRuleId(r.Context(), id), id
}
