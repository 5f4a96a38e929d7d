package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	ruleIdKeyId contextId = iota
	projectIdKeyId
	commitShaKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithRuleId(ctx context.Context, ruleId string) context.Context {
	return context.WithValue(ctx, ruleIdKeyId, ruleId)
}

func WithProjectId(ctx context.Context, projectId string) context.Context {
	return context.WithValue(ctx, projectIdKeyId, projectId)
}

func WithCommitSha(ctx context.Context, sha string) context.Context {
	return context.WithValue(ctx, commitShaKeyId, sha)
}

func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestId, _ := ctx.Value(requestIdKeyId).(string)

	return requestId
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxProjectId, ok := ctx.Value(projectIdKeyId).(string); ok && ctxProjectId != "" {
		result = result.WithField("project_id", ctxProjectId)
	}

	if ctxRuleId, ok := ctx.Value(ruleIdKeyId).(string); ok && ctxRuleId != "" {
		result = result.WithField("rule_id", ctxRuleId)
	}

	if ctxCommitSha, ok := ctx.Value(commitShaKeyId).(string); ok && ctxCommitSha != "" {
		result = result.WithField("commit_sha", ctxCommitSha)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
