package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TrackerClient is a GraphQL issue-tracker client. Responses are decoded
// into explicit schemas and validated at the boundary; a payload that does
// not match is an error, not a silently empty result.
type TrackerClient struct {
	url      string
	token    string
	teamIDs  map[string]string
	labelIDs []string
	http     *http.Client
}

func NewTrackerClient(cfg Config) *TrackerClient {
	return &TrackerClient{
		url:      cfg.TrackerURL,
		token:    cfg.TrackerToken,
		teamIDs:  cfg.TrackerTeamIDs,
		labelIDs: cfg.TrackerLabelIDs,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type issueNode struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	State      *struct {
		Name string `json:"name"`
	} `json:"state"`
	Team *struct {
		Key string `json:"key"`
	} `json:"team"`
}

type issueSearchResponse struct {
	Data *struct {
		IssueSearch struct {
			Nodes []issueNode `json:"nodes"`
		} `json:"issueSearch"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type issueCreateResponse struct {
	Data *struct {
		IssueCreate struct {
			Success bool       `json:"success"`
			Issue   *issueNode `json:"issue"`
		} `json:"issueCreate"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

const issueSearchQuery = `query IssueSearch($query: String!) {
  issueSearch(query: $query, first: 10) {
    nodes { identifier title url state { name } team { key } }
  }
}`

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { identifier title url state { name } team { key } }
  }
}`

// SearchIssues runs a full-text search and returns candidates in the
// tracker's relevance order.
func (t *TrackerClient) SearchIssues(ctx context.Context, query string) ([]CandidateIssue, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	body, err := t.post(ctx, graphqlRequest{
		Query:     issueSearchQuery,
		Variables: map[string]any{"query": query},
	})
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}

	var resp issueSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("tracker search error: %s", resp.Errors[0].Message)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("tracker search returned no data")
	}

	issues := make([]CandidateIssue, 0, len(resp.Data.IssueSearch.Nodes))
	for _, node := range resp.Data.IssueSearch.Nodes {
		issues = append(issues, convertIssueNode(node))
	}
	return issues, nil
}

// CreateIssue files a new issue and returns its identifier and URL.
// Priority uses the tracker's numeric scale (1 = urgent .. 4 = low).
func (t *TrackerClient) CreateIssue(ctx context.Context, team Team, title, description string, priority int) (CandidateIssue, error) {
	teamID, ok := t.teamIDs[string(team)]
	if !ok {
		return CandidateIssue{}, fmt.Errorf("no tracker team id configured for team %q", team)
	}
	if priority < 1 || priority > 4 {
		return CandidateIssue{}, fmt.Errorf("priority %d out of range 1-4", priority)
	}

	input := map[string]any{
		"teamId":      teamID,
		"title":       title,
		"description": description,
		"priority":    priority,
	}
	if len(t.labelIDs) > 0 {
		input["labelIds"] = t.labelIDs
	}

	body, err := t.post(ctx, graphqlRequest{
		Query:     issueCreateMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return CandidateIssue{}, fmt.Errorf("creating issue: %w", err)
	}

	var resp issueCreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CandidateIssue{}, fmt.Errorf("parsing create response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return CandidateIssue{}, fmt.Errorf("tracker create error: %s", resp.Errors[0].Message)
	}
	if resp.Data == nil || !resp.Data.IssueCreate.Success || resp.Data.IssueCreate.Issue == nil {
		return CandidateIssue{}, fmt.Errorf("tracker create did not return an issue")
	}
	return convertIssueNode(*resp.Data.IssueCreate.Issue), nil
}

func (t *TrackerClient) post(ctx context.Context, reqBody graphqlRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", t.token)

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("tracker API returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func convertIssueNode(node issueNode) CandidateIssue {
	issue := CandidateIssue{
		Identifier: node.Identifier,
		Title:      node.Title,
		URL:        node.URL,
	}
	if node.State != nil {
		issue.Status = node.State.Name
	}
	if node.Team != nil {
		if team, err := ParseTeam(strings.ToLower(node.Team.Key)); err == nil {
			issue.Team = team
		}
	}
	return issue
}
