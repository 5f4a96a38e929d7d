package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
	"github.com/yurykabanov/sweeper/pkg/domain"
)

type CommitDeleter interface {
	DeleteCommit(ctx context.Context, projectId, sha string) (domain.RetentionLog, error)
}

type CommitHandler struct {
	logger  logrus.FieldLogger
	deleter CommitDeleter
}

func NewCommitHandler(logger logrus.FieldLogger, deleter CommitDeleter) *CommitHandler {
	return &CommitHandler{
		logger:  logger,
		deleter: deleter,
	}
}

func (h *CommitHandler) Routes(router *mux.Router) {
	router.Handle("/projects/{projectId}/commits/{sha}", h).Methods(http.MethodDelete)
}

type deleteCommitResponse struct {
	FreedBytes int64 `json:"freedBytes"`
	AssetCount int   `json:"assetCount"`
}

func (h *CommitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projectId, sha := vars["projectId"], vars["sha"]

	ctx := appcontext.WithCommitSha(appcontext.WithProjectId(r.Context(), projectId), sha)
	logger := appcontext.LoggerFromContext(h.logger, ctx)

	entry, err := h.deleter.DeleteCommit(ctx, projectId, sha)
	if err != nil && entry.CommitSha == "" {
		writeError(w, logger, err)
		return
	}

	// the commit is gone even if its audit row couldn't be written
	if err != nil {
		logger.WithError(err).Error("Commit deleted with errors")
	}

	writeJSON(w, http.StatusOK, deleteCommitResponse{
		FreedBytes: entry.FreedBytes,
		AssetCount: entry.AssetCount,
	})
}
