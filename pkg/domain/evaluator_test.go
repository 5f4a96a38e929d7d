package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitsByAge(branch string, ages ...float64) []Commit {
	var result []Commit
	for i, age := range ages {
		result = append(result, Commit{
			ProjectId:  "p1",
			Sha:        fmt.Sprintf("%s-%02d", branch, i),
			Branch:     branch,
			DeployedAt: daysAgo(age),
			Assets: []Asset{
				{Path: "index.html", BlobKey: fmt.Sprintf("%s-%02d-index", branch, i), Size: 100},
			},
		})
	}
	return result
}

func shas(commits []PreviewCommit) []string {
	var result []string
	for _, c := range commits {
		result = append(result, c.Sha)
	}
	return result
}

func TestEvaluate_Scenario(t *testing.T) {
	commits := commitsByAge("feature/x", 0, 3, 8, 10, 15)

	rule := Rule{
		ProjectId:     "p1",
		BranchPattern: "feature/*",
		RetentionDays: 7,
		KeepMinimum:   2,
		KeepWithAlias: true,
	}

	snapshot := Snapshot{
		ProjectId: "p1",
		Commits:   map[string][]Commit{"feature/x": commits},
		Aliases:   []Alias{{ProjectId: "p1", Name: "staging", CommitSha: commits[3].Sha}},
	}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	// oldest first
	assert.Equal(t, []string{commits[4].Sha, commits[2].Sha}, shas(result))
	assert.Equal(t, 15, result[0].AgeDays)
	assert.Equal(t, 8, result[1].AgeDays)
}

func TestEvaluate_KeepMinimumIgnoresAge(t *testing.T) {
	commits := commitsByAge("main", 30, 40, 50, 60)

	rule := Rule{BranchPattern: "main", RetentionDays: 0, KeepMinimum: 3}
	snapshot := Snapshot{Commits: map[string][]Commit{"main": commits}}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Equal(t, []string{commits[3].Sha}, shas(result))
}

func TestEvaluate_KeepMinimumLargerThanBranch(t *testing.T) {
	commits := commitsByAge("main", 30, 40)

	rule := Rule{BranchPattern: "main", KeepMinimum: 5}
	snapshot := Snapshot{Commits: map[string][]Commit{"main": commits}}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestEvaluate_NoProtectionYieldsEveryCommit(t *testing.T) {
	commits := commitsByAge("feature/a", 0, 0.5, 2)

	rule := Rule{BranchPattern: "feature/*"}
	snapshot := Snapshot{Commits: map[string][]Commit{"feature/a": commits}}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Len(t, result, 3)
}

func TestEvaluate_AliasProtectsRegardlessOfAge(t *testing.T) {
	commits := commitsByAge("main", 100, 200)

	rule := Rule{BranchPattern: "main", KeepWithAlias: true}
	snapshot := Snapshot{
		Commits: map[string][]Commit{"main": commits},
		Aliases: []Alias{{Name: "production", CommitSha: commits[1].Sha}},
	}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Equal(t, []string{commits[0].Sha}, shas(result))
}

func TestEvaluate_AliasIgnoredWithoutKeepWithAlias(t *testing.T) {
	commits := commitsByAge("main", 100)

	rule := Rule{BranchPattern: "main"}
	snapshot := Snapshot{
		Commits: map[string][]Commit{"main": commits},
		Aliases: []Alias{{Name: "production", CommitSha: commits[0].Sha}},
	}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Len(t, result, 1)
}

func TestEvaluate_BranchSelection(t *testing.T) {
	snapshot := Snapshot{Commits: map[string][]Commit{
		"feature/a":   commitsByAge("feature/a", 10),
		"feature/b":   commitsByAge("feature/b", 10),
		"main":        commitsByAge("main", 10),
		"feature/a/b": commitsByAge("feature/a/b", 10),
	}}

	rule := Rule{BranchPattern: "feature/*", ExcludeBranches: []string{"feature/b"}}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Equal(t, []string{"feature/a-00"}, shas(result))
}

func TestEvaluate_RegexpBranchPattern(t *testing.T) {
	snapshot := Snapshot{Commits: map[string][]Commit{
		"release-1": commitsByAge("release-1", 10),
		"release-x": commitsByAge("release-x", 10),
	}}

	rule := Rule{BranchPattern: "/^release-[0-9]+$/"}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Equal(t, []string{"release-1-00"}, shas(result))
}

func TestEvaluate_EmptyBranch(t *testing.T) {
	rule := Rule{BranchPattern: "*"}
	snapshot := Snapshot{Commits: map[string][]Commit{"main": nil}}

	result, err := Evaluate(rule, snapshot, testNow)

	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestEvaluate_IncludePathFilter(t *testing.T) {
	commit := Commit{
		Sha:        "abc",
		Branch:     "main",
		DeployedAt: daysAgo(20),
		Assets: []Asset{
			{Path: "index.html", BlobKey: "k1", Size: 10},
			{Path: "js/app.js", BlobKey: "k2", Size: 20},
			{Path: "js/app.js.map", BlobKey: "k3", Size: 300},
			{Path: "css/site.css.map", BlobKey: "k4", Size: 400},
		},
	}

	rule := Rule{
		BranchPattern: "main",
		PathPatterns:  []string{"*.map"},
		PathMode:      PathModeInclude,
	}

	result, err := Evaluate(rule, Snapshot{Commits: map[string][]Commit{"main": {commit}}}, testNow)

	require.NoError(t, err)
	require.Len(t, result, 1)

	c := result[0]
	assert.True(t, c.IsPartial)
	assert.Equal(t, 2, c.AssetCount)
	assert.Equal(t, int64(700), c.SizeBytes)
	require.NotNil(t, c.TotalAssetCount)
	require.NotNil(t, c.TotalSizeBytes)
	assert.Equal(t, 4, *c.TotalAssetCount)
	assert.Equal(t, int64(730), *c.TotalSizeBytes)
	assert.Equal(t, []Asset{commit.Assets[2], commit.Assets[3]}, c.Assets)
}

func TestEvaluate_ExcludePathFilter(t *testing.T) {
	commit := Commit{
		Sha:        "abc",
		Branch:     "main",
		DeployedAt: daysAgo(20),
		Assets: []Asset{
			{Path: "index.html", BlobKey: "k1", Size: 10},
			{Path: "js/app.js.map", BlobKey: "k3", Size: 300},
		},
	}

	rule := Rule{
		BranchPattern: "main",
		PathPatterns:  []string{"*.html"},
		PathMode:      PathModeExclude,
	}

	result, err := Evaluate(rule, Snapshot{Commits: map[string][]Commit{"main": {commit}}}, testNow)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].IsPartial)
	assert.Equal(t, 1, result[0].AssetCount)
	assert.Equal(t, "js/app.js.map", result[0].Assets[0].Path)
}

func TestEvaluate_FilterMatchingEverythingIsNotPartial(t *testing.T) {
	commit := Commit{
		Sha:        "abc",
		Branch:     "main",
		DeployedAt: daysAgo(20),
		Assets:     []Asset{{Path: "a.map", BlobKey: "k1", Size: 10}},
	}

	rule := Rule{BranchPattern: "main", PathPatterns: []string{"*.map"}, PathMode: PathModeInclude}

	result, err := Evaluate(rule, Snapshot{Commits: map[string][]Commit{"main": {commit}}}, testNow)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.False(t, result[0].IsPartial)
	assert.Nil(t, result[0].TotalAssetCount)
	assert.Nil(t, result[0].TotalSizeBytes)
}

func TestEvaluate_IncludeFilterMatchingNothing(t *testing.T) {
	commit := Commit{
		Sha:        "abc",
		Branch:     "main",
		DeployedAt: daysAgo(20),
		Assets:     []Asset{{Path: "index.html", BlobKey: "k1", Size: 10}},
	}

	rule := Rule{BranchPattern: "main", PathPatterns: []string{"*.map"}, PathMode: PathModeInclude}

	result, err := Evaluate(rule, Snapshot{Commits: map[string][]Commit{"main": {commit}}}, testNow)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 0, result[0].AssetCount)
	assert.True(t, result[0].IsPartial)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	snapshot := Snapshot{Commits: map[string][]Commit{
		"b": commitsByAge("b", 10, 20, 30, 30),
		"a": commitsByAge("a", 5, 50),
		"c": commitsByAge("c", 1),
	}}

	rule := Rule{BranchPattern: "*", KeepMinimum: 1}

	first, err := Evaluate(rule, snapshot, testNow)
	require.NoError(t, err)

	second, err := Evaluate(rule, snapshot, testNow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a-01", "b-02", "b-03", "b-01"}, shas(first))
}

func TestEvaluate_InvalidPattern(t *testing.T) {
	_, err := Evaluate(Rule{BranchPattern: ""}, Snapshot{}, testNow)

	assert.Error(t, err)
}

func TestNewPreviewResponse_Totals(t *testing.T) {
	resp := newPreviewResponse([]PreviewCommit{
		{Sha: "a", AssetCount: 2, SizeBytes: 10},
		{Sha: "b", AssetCount: 3, SizeBytes: 15},
	})

	assert.Equal(t, 5, resp.TotalAssets)
	assert.Equal(t, int64(25), resp.TotalBytes)

	empty := newPreviewResponse(nil)
	assert.NotNil(t, empty.Commits)
}
