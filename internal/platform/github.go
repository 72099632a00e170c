package platform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GitHubAPI is the public GitHub REST endpoint
const GitHubAPI = "https://api.github.com"

func init() {
	Register("github", newGitHub)
}

// GitHub reads GitHub Actions workflow runs.
type GitHub struct {
	client *Client
	repo   string
	branch string
}

func newGitHub(cfg Config, cc ClientConfig) (Provider, error) {
	if !strings.Contains(cfg.Repo, "/") {
		return nil, fmt.Errorf("github: repo must be owner/name, got %q", cfg.Repo)
	}
	if cc.BaseURL == "" {
		cc.BaseURL = GitHubAPI
	}
	c := NewClient(cc)
	c.rc.SetHeader("Accept", "application/vnd.github+json")
	c.rc.SetHeader("X-GitHub-Api-Version", "2022-11-28")
	return &GitHub{client: c, repo: cfg.Repo, branch: cfg.Branch}, nil
}

// Name implements Provider.
func (g *GitHub) Name() string { return "github" }

type githubRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	HeadBranch string    `json:"head_branch"`
	HeadSHA    string    `json:"head_sha"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *githubRun) toRun() *Run {
	return &Run{
		ID:        strconv.FormatInt(r.ID, 10),
		Name:      r.Name,
		URL:       r.HTMLURL,
		Branch:    r.HeadBranch,
		Commit:    r.HeadSHA,
		Status:    githubStatus(r.Status, r.Conclusion),
		CreatedAt: r.CreatedAt,
	}
}

func githubStatus(status, conclusion string) Status {
	switch status {
	case "completed":
	case "in_progress":
		return StatusBuilding
	default:
		// queued, requested, waiting, pending
		return StatusQueued
	}
	switch conclusion {
	case "success", "neutral":
		return StatusSuccess
	case "cancelled", "skipped", "stale":
		return StatusCanceled
	default:
		// failure, timed_out, action_required, startup_failure
		return StatusFailed
	}
}

func (g *GitHub) path(format string, args ...interface{}) string {
	return "/repos/" + g.repo + fmt.Sprintf(format, args...)
}

// LatestRun implements Provider.
func (g *GitHub) LatestRun(ctx context.Context) (*Run, error) {
	q := map[string]string{"per_page": "1"}
	if g.branch != "" {
		q["branch"] = g.branch
	}
	var resp struct {
		WorkflowRuns []githubRun `json:"workflow_runs"`
	}
	if err := g.client.GetJSON(ctx, g.path("/actions/runs"), q, &resp); err != nil {
		return nil, fmt.Errorf("github: list runs: %w", err)
	}
	if len(resp.WorkflowRuns) == 0 {
		return nil, fmt.Errorf("github: %w", ErrNoRun)
	}
	return resp.WorkflowRuns[0].toRun(), nil
}

// GetRun implements Provider.
func (g *GitHub) GetRun(ctx context.Context, id string) (*Run, error) {
	var r githubRun
	if err := g.client.GetJSON(ctx, g.path("/actions/runs/%s", id), nil, &r); err != nil {
		return nil, fmt.Errorf("github: get run %s: %w", id, err)
	}
	return r.toRun(), nil
}

type githubJob struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

// FetchLog implements Provider. Each job log is headed by the job name.
func (g *GitHub) FetchLog(ctx context.Context, run *Run) (string, error) {
	var resp struct {
		Jobs []githubJob `json:"jobs"`
	}
	if err := g.client.GetJSON(ctx, g.path("/actions/runs/%s/jobs", run.ID), map[string]string{"per_page": "100"}, &resp); err != nil {
		return "", fmt.Errorf("github: list jobs for run %s: %w", run.ID, err)
	}

	jobs := resp.Jobs
	var failed []githubJob
	for _, j := range jobs {
		if githubStatus(j.Status, j.Conclusion) == StatusFailed {
			failed = append(failed, j)
		}
	}
	if len(failed) > 0 {
		jobs = failed
	}

	var sb strings.Builder
	for _, j := range jobs {
		text, err := g.client.GetText(ctx, g.path("/actions/jobs/%d/logs", j.ID), nil)
		if err != nil {
			return "", fmt.Errorf("github: fetch log for job %s: %w", j.Name, err)
		}
		fmt.Fprintf(&sb, "=== %s ===\n%s\n", j.Name, strings.TrimRight(text, "\n"))
	}
	return sb.String(), nil
}

// Retry implements Provider by re-running the failed jobs of the run.
func (g *GitHub) Retry(ctx context.Context, run *Run) (*Run, error) {
	if err := g.client.PostJSON(ctx, g.path("/actions/runs/%s/rerun-failed-jobs", run.ID), nil, map[string]string{}, nil); err != nil {
		return nil, fmt.Errorf("github: rerun %s: %w", run.ID, err)
	}
	next := *run
	next.Status = StatusQueued
	return &next, nil
}
