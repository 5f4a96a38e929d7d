package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
	"github.com/yurykabanov/sweeper/pkg/domain"
)

const overviewTimeout = 10 * time.Second

type OverviewRepository interface {
	Overview(ctx context.Context, projectId string) (domain.Overview, error)
}

// OverviewHandler reports storage usage of a project.
type OverviewHandler struct {
	logger logrus.FieldLogger
	repo   OverviewRepository
}

func NewOverviewHandler(logger logrus.FieldLogger, repo OverviewRepository) *OverviewHandler {
	return &OverviewHandler{
		logger: logger,
		repo:   repo,
	}
}

func (h *OverviewHandler) Routes(router *mux.Router) {
	router.Handle("/overview", h).Methods(http.MethodGet)
}

func (h *OverviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectId := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectId == "" {
		badRequest(w, "projectId", "projectId is required")
		return
	}

	ctx, cancel := context.WithTimeout(appcontext.WithProjectId(r.Context(), projectId), overviewTimeout)
	defer cancel()

	overview, err := h.repo.Overview(ctx, projectId)
	if err != nil {
		writeError(w, appcontext.LoggerFromContext(h.logger, ctx), err)
		return
	}

	writeJSON(w, http.StatusOK, overview)
}
