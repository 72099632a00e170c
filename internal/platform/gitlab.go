package platform

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// GitLabAPI is the public GitLab REST endpoint
const GitLabAPI = "https://gitlab.com/api/v4"

func init() {
	Register("gitlab", newGitLab)
}

// GitLab reads GitLab CI pipelines.
type GitLab struct {
	client  *Client
	project string // URL-escaped ID or path
	branch  string
}

func newGitLab(cfg Config, cc ClientConfig) (Provider, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("gitlab: project is required")
	}
	if cc.BaseURL == "" {
		cc.BaseURL = GitLabAPI
	}
	return &GitLab{client: NewClient(cc), project: url.PathEscape(cfg.Project), branch: cfg.Branch}, nil
}

// Name implements Provider.
func (g *GitLab) Name() string { return "gitlab" }

type gitlabPipeline struct {
	ID        int64     `json:"id"`
	Status    string    `json:"status"`
	Ref       string    `json:"ref"`
	SHA       string    `json:"sha"`
	WebURL    string    `json:"web_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *gitlabPipeline) toRun() *Run {
	return &Run{
		ID:        strconv.FormatInt(p.ID, 10),
		Name:      "pipeline " + strconv.FormatInt(p.ID, 10),
		URL:       p.WebURL,
		Branch:    p.Ref,
		Commit:    p.SHA,
		Status:    gitlabStatus(p.Status),
		CreatedAt: p.CreatedAt,
	}
}

func gitlabStatus(s string) Status {
	switch s {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "canceled", "skipped", "manual":
		return StatusCanceled
	case "running":
		return StatusBuilding
	default:
		// created, waiting_for_resource, preparing, pending, scheduled
		return StatusQueued
	}
}

func (g *GitLab) path(format string, args ...interface{}) string {
	return "/projects/" + g.project + fmt.Sprintf(format, args...)
}

// LatestRun implements Provider.
func (g *GitLab) LatestRun(ctx context.Context) (*Run, error) {
	q := map[string]string{"per_page": "1", "order_by": "id", "sort": "desc"}
	if g.branch != "" {
		q["ref"] = g.branch
	}
	var pipelines []gitlabPipeline
	if err := g.client.GetJSON(ctx, g.path("/pipelines"), q, &pipelines); err != nil {
		return nil, fmt.Errorf("gitlab: list pipelines: %w", err)
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("gitlab: %w", ErrNoRun)
	}
	return pipelines[0].toRun(), nil
}

// GetRun implements Provider.
func (g *GitLab) GetRun(ctx context.Context, id string) (*Run, error) {
	var p gitlabPipeline
	if err := g.client.GetJSON(ctx, g.path("/pipelines/%s", id), nil, &p); err != nil {
		return nil, fmt.Errorf("gitlab: get pipeline %s: %w", id, err)
	}
	return p.toRun(), nil
}

type gitlabJob struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

// FetchLog implements Provider. Each job trace is headed by stage and name.
func (g *GitLab) FetchLog(ctx context.Context, run *Run) (string, error) {
	var jobs []gitlabJob
	if err := g.client.GetJSON(ctx, g.path("/pipelines/%s/jobs", run.ID), map[string]string{"per_page": "100"}, &jobs); err != nil {
		return "", fmt.Errorf("gitlab: list jobs for pipeline %s: %w", run.ID, err)
	}

	var failed []gitlabJob
	for _, j := range jobs {
		if j.Status == "failed" {
			failed = append(failed, j)
		}
	}
	if len(failed) > 0 {
		jobs = failed
	}

	var sb strings.Builder
	for _, j := range jobs {
		trace, err := g.client.GetText(ctx, g.path("/jobs/%d/trace", j.ID), nil)
		if err != nil {
			return "", fmt.Errorf("gitlab: fetch trace for job %s: %w", j.Name, err)
		}
		fmt.Fprintf(&sb, "=== %s:%s ===\n%s\n", j.Stage, j.Name, strings.TrimRight(trace, "\n"))
	}
	return sb.String(), nil
}

// Retry implements Provider by retrying the failed jobs of the pipeline.
func (g *GitLab) Retry(ctx context.Context, run *Run) (*Run, error) {
	var p gitlabPipeline
	if err := g.client.PostJSON(ctx, g.path("/pipelines/%s/retry", run.ID), nil, map[string]string{}, &p); err != nil {
		return nil, fmt.Errorf("gitlab: retry pipeline %s: %w", run.ID, err)
	}
	return p.toRun(), nil
}
