package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// VercelAPI is the public Vercel endpoint
const VercelAPI = "https://api.vercel.com"

func init() {
	Register("vercel", newVercel)
}

// Vercel reads deployments and build events from the Vercel REST API.
type Vercel struct {
	client  *Client
	project string
	team    string
	branch  string
}

func newVercel(cfg Config, cc ClientConfig) (Provider, error) {
	if cc.BaseURL == "" {
		cc.BaseURL = VercelAPI
	}
	return &Vercel{client: NewClient(cc), project: cfg.Project, team: cfg.Team, branch: cfg.Branch}, nil
}

// Name implements Provider.
func (v *Vercel) Name() string { return "vercel" }

type vercelDeployment struct {
	UID        string `json:"uid"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	State      string `json:"state"`
	ReadyState string `json:"readyState"`
	Created    int64  `json:"created"`
	CreatedAt  int64  `json:"createdAt"`
	Meta       struct {
		GithubCommitRef string `json:"githubCommitRef"`
		GithubCommitSha string `json:"githubCommitSha"`
	} `json:"meta"`
}

func (d *vercelDeployment) toRun() *Run {
	id := d.UID
	if id == "" {
		id = d.ID
	}
	state := d.State
	if state == "" {
		state = d.ReadyState
	}
	created := d.Created
	if created == 0 {
		created = d.CreatedAt
	}
	run := &Run{
		ID:     id,
		Name:   d.Name,
		Branch: d.Meta.GithubCommitRef,
		Commit: d.Meta.GithubCommitSha,
		Status: vercelStatus(state),
	}
	if d.URL != "" {
		run.URL = "https://" + strings.TrimPrefix(d.URL, "https://")
	}
	if created > 0 {
		run.CreatedAt = time.UnixMilli(created)
	}
	return run
}

func vercelStatus(state string) Status {
	switch strings.ToUpper(state) {
	case "READY":
		return StatusSuccess
	case "ERROR":
		return StatusFailed
	case "CANCELED":
		return StatusCanceled
	case "BUILDING", "DEPLOYING":
		return StatusBuilding
	default:
		// QUEUED, INITIALIZING
		return StatusQueued
	}
}

func (v *Vercel) query(extra map[string]string) map[string]string {
	q := map[string]string{}
	if v.team != "" {
		q["teamId"] = v.team
	}
	for k, val := range extra {
		q[k] = val
	}
	return q
}

// LatestRun implements Provider.
func (v *Vercel) LatestRun(ctx context.Context) (*Run, error) {
	q := v.query(map[string]string{"limit": "1"})
	if v.project != "" {
		q["projectId"] = v.project
	}
	if v.branch != "" {
		q["branch"] = v.branch
	}

	var resp struct {
		Deployments []vercelDeployment `json:"deployments"`
	}
	if err := v.client.GetJSON(ctx, "/v6/deployments", q, &resp); err != nil {
		return nil, fmt.Errorf("vercel: list deployments: %w", err)
	}
	if len(resp.Deployments) == 0 {
		return nil, fmt.Errorf("vercel: %w", ErrNoRun)
	}
	return resp.Deployments[0].toRun(), nil
}

// GetRun implements Provider.
func (v *Vercel) GetRun(ctx context.Context, id string) (*Run, error) {
	var d vercelDeployment
	if err := v.client.GetJSON(ctx, "/v13/deployments/"+url.PathEscape(id), v.query(nil), &d); err != nil {
		return nil, fmt.Errorf("vercel: get deployment %s: %w", id, err)
	}
	return d.toRun(), nil
}

type vercelEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Payload struct {
		Text string `json:"text"`
	} `json:"payload"`
}

// FetchLog implements Provider. Build output lines are joined in order.
func (v *Vercel) FetchLog(ctx context.Context, run *Run) (string, error) {
	var evs []vercelEvent
	path := "/v3/deployments/" + url.PathEscape(run.ID) + "/events"
	if err := v.client.GetJSON(ctx, path, v.query(map[string]string{"builds": "1"}), &evs); err != nil {
		return "", fmt.Errorf("vercel: fetch events for %s: %w", run.ID, err)
	}

	var sb strings.Builder
	for _, e := range evs {
		text := e.Payload.Text
		if text == "" {
			text = e.Text
		}
		if text == "" {
			continue
		}
		sb.WriteString(strings.TrimRight(text, "\n"))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// Retry implements Provider by redeploying the same deployment.
func (v *Vercel) Retry(ctx context.Context, run *Run) (*Run, error) {
	body := map[string]interface{}{
		"name":         run.Name,
		"deploymentId": run.ID,
	}
	var d vercelDeployment
	if err := v.client.PostJSON(ctx, "/v13/deployments", v.query(map[string]string{"forceNew": "1"}), body, &d); err != nil {
		return nil, fmt.Errorf("vercel: redeploy %s: %w", run.ID, err)
	}
	return d.toRun(), nil
}
