package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"
)

// Request is one endpoint call of the workload.
type Request struct {
	Kind   string
	Path   string
	Params url.Values
}

func (r Request) URL(base string) string {
	return base + r.Path + "?" + r.Params.Encode()
}

func defaultWorkload() []Request {
	queries := []string{"", "login", "crash OR timeout", "status:Open", "database AND NOT flaky", "priority:High"}
	fields := []string{issue.FieldStatus, issue.FieldPriority, issue.FieldAssignee, issue.FieldLabels, "customfield_10010"}

	var reqs []Request
	for i, q := range queries {
		reqs = append(reqs, Request{
			Kind:   "search",
			Path:   "/api/v1/search",
			Params: url.Values{"q": {q}, "limit": {"10"}},
		})
		for _, f := range fields {
			reqs = append(reqs, Request{
				Kind:   "field",
				Path:   "/api/v1/stats/field",
				Params: url.Values{"q": {q}, "field": {f}},
			})
		}
		x, y := fields[i%len(fields)], fields[(i+1)%len(fields)]
		reqs = append(reqs, Request{
			Kind:   "matrix",
			Path:   "/api/v1/stats/matrix",
			Params: url.Values{"q": {q}, "x": {x}, "y": {y}},
		})
	}
	return reqs
}

func runLoadTest(client *http.Client, cfg Config) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		next := w
		g.Go(func() error {
			for ctx.Err() == nil {
				req := cfg.Requests[next%len(cfg.Requests)]
				next++
				res := do(ctx, client, cfg.BaseURL, req)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(res)
			}
			return nil
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// Result is the outcome of one request.
type Result struct {
	Kind     string
	Duration time.Duration
	Status   int
	CacheHit bool
	Partial  bool
	Err      error
}

func do(ctx context.Context, client *http.Client, base string, r Request) Result {
	res := Result{Kind: r.Kind}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(base), nil)
	if err != nil {
		res.Err = err
		return res
	}
	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	res.Status = resp.StatusCode

	var body struct {
		CacheHit bool `json:"cache_hit"`
		Partial  bool `json:"partial"`
	}
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&body) == nil {
		res.CacheHit = body.CacheHit
		res.Partial = body.Partial
	}
	io.Copy(io.Discard, resp.Body)
	return res
}

// seedIssues ingests n synthetic issues spread over a few projects, issue
// types and field values.
func seedIssues(ctx context.Context, client *http.Client, base string, n int) error {
	const batchSize = 250
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		payload := struct {
			Events []issue.Event `json:"events"`
		}{Events: syntheticEvents(start, end)}
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/events", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("posting events %d-%d: %w", start, end, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("posting events %d-%d: status %d", start, end, resp.StatusCode)
		}
	}
	return nil
}

func syntheticEvents(from, to int) []issue.Event {
	projects := []string{"ops", "web", "data"}
	types := []string{"bug", "task", "story"}
	statuses := []string{"Open", "In Progress", "Done"}
	priorities := []string{"Low", "Medium", "High", ""}
	words := []string{"login", "crash", "timeout", "database", "flaky", "dashboard", "deploy"}

	out := make([]issue.Event, 0, to-from)
	for i := from; i < to; i++ {
		id := strconv.Itoa(100000 + i)
		fields := map[string][]string{
			issue.FieldStatus:   {statuses[i%len(statuses)]},
			issue.FieldAssignee: {"user" + strconv.Itoa(i%7)},
		}
		if p := priorities[i%len(priorities)]; p != "" {
			fields[issue.FieldPriority] = []string{p}
		}
		if i%5 == 0 {
			fields["customfield_10010"] = []string{"team-" + strconv.Itoa(i%3)}
		}
		out = append(out, issue.Event{
			TypeID: issue.EventIssueCreated,
			Issue: &issue.Issue{
				ID:          id,
				Key:         fmt.Sprintf("LOAD-%d", i),
				ProjectID:   projects[i%len(projects)],
				IssueTypeID: types[(i/3)%len(types)],
				Summary:     words[i%len(words)] + " " + words[(i/2)%len(words)],
				Fields:      fields,
				Version:     1,
			},
		})
	}
	return out
}
