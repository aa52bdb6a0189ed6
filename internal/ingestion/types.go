// Package ingestion accepts batches of issue events over HTTP and hands them
// to the issue event pipeline.
package ingestion

import "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/issue"

// IngestRequest is the JSON body accepted by the ingestion endpoint.
type IngestRequest struct {
	Events []issue.Event `json:"events"`
}

// IngestResponse is returned once a batch has been handed on.
type IngestResponse struct {
	Accepted int    `json:"accepted"`
	Status   string `json:"status"`
}
