package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestTracker(t *testing.T, handler http.HandlerFunc) *TrackerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTrackerClient(Config{
		TrackerURL:     server.URL,
		TrackerToken:   "test-token",
		TrackerTeamIDs: map[string]string{"platform": "team-uuid-1"},
	})
}

func decodeGraphQL(t *testing.T, r *http.Request) graphqlRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	var req graphqlRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("decoding graphql request: %v", err)
	}
	return req
}

func TestSearchIssues(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "test-token" {
			t.Errorf("Authorization = %q", got)
		}
		req := decodeGraphQL(t, r)
		if !strings.Contains(req.Query, "issueSearch") {
			t.Errorf("unexpected query: %s", req.Query)
		}
		if req.Variables["query"] != "dashboard 403" {
			t.Errorf("unexpected search variable: %v", req.Variables["query"])
		}
		io.WriteString(w, `{"data": {"issueSearch": {"nodes": [
			{"identifier": "PLAT-1423", "title": "403 on dashboard", "url": "https://tracker/PLAT-1423",
			 "state": {"name": "In Progress"}, "team": {"key": "PLATFORM"}},
			{"identifier": "DATA-7", "title": "report export stale", "url": "https://tracker/DATA-7"}
		]}}}`)
	})

	issues, err := tracker.SearchIssues(context.Background(), "dashboard 403")
	if err != nil {
		t.Fatalf("SearchIssues failed: %v", err)
	}
	want := []CandidateIssue{
		{Identifier: "PLAT-1423", Title: "403 on dashboard", Status: "In Progress", Team: TeamPlatform, URL: "https://tracker/PLAT-1423"},
		{Identifier: "DATA-7", Title: "report export stale", URL: "https://tracker/DATA-7"},
	}
	if diff := cmp.Diff(want, issues); diff != "" {
		t.Fatalf("unexpected candidates (-want +got):\n%s", diff)
	}
}

func TestSearchIssuesEmptyQuerySkipsRequest(t *testing.T) {
	called := false
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	issues, err := tracker.SearchIssues(context.Background(), "   ")
	if err != nil || issues != nil {
		t.Fatalf("expected nil, nil for empty query, got %v, %v", issues, err)
	}
	if called {
		t.Fatal("empty query should not hit the tracker")
	}
}

func TestSearchIssuesGraphQLError(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"errors": [{"message": "rate limited"}]}`)
	})
	_, err := tracker.SearchIssues(context.Background(), "anything")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected graphql error to surface, got %v", err)
	}
}

func TestSearchIssuesHTTPError(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	_, err := tracker.SearchIssues(context.Background(), "anything")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSearchIssuesMissingData(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	_, err := tracker.SearchIssues(context.Background(), "anything")
	if err == nil || !strings.Contains(err.Error(), "no data") {
		t.Fatalf("expected missing-data error, got %v", err)
	}
}

func TestCreateIssue(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeGraphQL(t, r)
		input, ok := req.Variables["input"].(map[string]any)
		if !ok {
			t.Fatalf("missing input variable: %v", req.Variables)
		}
		if input["teamId"] != "team-uuid-1" {
			t.Errorf("teamId = %v", input["teamId"])
		}
		if input["priority"] != float64(1) {
			t.Errorf("priority = %v", input["priority"])
		}
		io.WriteString(w, `{"data": {"issueCreate": {"success": true, "issue":
			{"identifier": "PLAT-2000", "title": "Checkout 500s", "url": "https://tracker/PLAT-2000"}}}}`)
	})

	issue, err := tracker.CreateIssue(context.Background(), TeamPlatform, "Checkout 500s", "desc", 1)
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if issue.Identifier != "PLAT-2000" || issue.URL != "https://tracker/PLAT-2000" {
		t.Fatalf("unexpected issue: %+v", issue)
	}
}

func TestCreateIssueValidation(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("validation failures must not reach the tracker")
	})

	if _, err := tracker.CreateIssue(context.Background(), TeamPayments, "t", "d", 1); err == nil {
		t.Fatal("expected error for team without a configured id")
	}
	if _, err := tracker.CreateIssue(context.Background(), TeamPlatform, "t", "d", 0); err == nil {
		t.Fatal("expected error for out-of-range priority")
	}
	if _, err := tracker.CreateIssue(context.Background(), TeamPlatform, "t", "d", 5); err == nil {
		t.Fatal("expected error for out-of-range priority")
	}
}

func TestCreateIssueUnsuccessful(t *testing.T) {
	tracker := newTestTracker(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {"issueCreate": {"success": false}}}`)
	})
	_, err := tracker.CreateIssue(context.Background(), TeamPlatform, "t", "d", 2)
	if err == nil || !strings.Contains(err.Error(), "did not return an issue") {
		t.Fatalf("expected unsuccessful-create error, got %v", err)
	}
}
