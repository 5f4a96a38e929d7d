package domain

import "time"

// RetentionLog is an audit row for a commit processed by a deletion. Rows are
// never updated or removed, RuleId is nil for manual deletions and may point
// to a rule which no longer exists.
type RetentionLog struct {
	Id         int64     `json:"id"`
	ProjectId  string    `json:"projectId"`
	RuleId     *string   `json:"ruleId"`
	CommitSha  string    `json:"commitSha"`
	Branch     string    `json:"branch"`
	AssetCount int       `json:"assetCount"`
	FreedBytes int64     `json:"freedBytes"`
	IsPartial  bool      `json:"isPartial"`
	DeletedAt  time.Time `json:"deletedAt"`
}

const (
	DefaultLogPageLimit = 20
	MaxLogPageLimit     = 100
	MaxLogPage          = 1_000_000
)

type LogQuery struct {
	ProjectId string
	RuleId    *string
	Page      int
	Limit     int
}

// Normalized clamps paging parameters into their allowed ranges.
func (q LogQuery) Normalized() LogQuery {
	if q.Page < 1 {
		q.Page = 1
	}

	if q.Page > MaxLogPage {
		q.Page = MaxLogPage
	}

	if q.Limit < 1 {
		q.Limit = DefaultLogPageLimit
	}

	if q.Limit > MaxLogPageLimit {
		q.Limit = MaxLogPageLimit
	}

	return q
}

func (q LogQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type LogPage struct {
	Items []RetentionLog `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
