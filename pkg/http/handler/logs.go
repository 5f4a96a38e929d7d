package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
	"github.com/yurykabanov/sweeper/pkg/domain"
)

type LogRepository interface {
	Find(ctx context.Context, q domain.LogQuery) (domain.LogPage, error)
}

type LogHandler struct {
	logger logrus.FieldLogger
	repo   LogRepository
}

func NewLogHandler(logger logrus.FieldLogger, repo LogRepository) *LogHandler {
	return &LogHandler{
		logger: logger,
		repo:   repo,
	}
}

func (h *LogHandler) Routes(router *mux.Router) {
	router.Handle("/logs", h).Methods(http.MethodGet)
}

func (h *LogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := domain.LogQuery{ProjectId: strings.TrimSpace(query.Get("projectId"))}
	if q.ProjectId == "" {
		badRequest(w, "projectId", "projectId is required")
		return
	}

	if ruleId := query.Get("ruleId"); ruleId != "" {
		q.RuleId = &ruleId
	}

	var ok bool

	if q.Page, ok = intParam(w, query.Get("page"), "page"); !ok {
		return
	}

	if q.Page > domain.MaxLogPage {
		badRequest(w, "page", "page must not exceed "+strconv.Itoa(domain.MaxLogPage))
		return
	}

	if q.Limit, ok = intParam(w, query.Get("limit"), "limit"); !ok {
		return
	}

	ctx := appcontext.WithProjectId(r.Context(), q.ProjectId)

	page, err := h.repo.Find(ctx, q)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// intParam parses an optional positive integer query parameter, 0 means absent.
func intParam(w http.ResponseWriter, value, name string) (int, bool) {
	if value == "" {
		return 0, true
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		badRequest(w, name, name+" must be a positive integer")
		return 0, false
	}

	return n, true
}
