package http

import (
	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

// RegisterRequest is the body of POST /api/v1/tenants/register.
type RegisterRequest struct {
	tenant.Key
	Profile tenant.Profile `json:"profile"`
}

// RegisterResponse reports the registered profile and its store location.
type RegisterResponse struct {
	Entry profiles.Entry `json:"entry"`
	Store string         `json:"store"`
}

// IngestRequest is the body of POST /api/v1/ingest. A missing profile is
// taken from the profile directory.
type IngestRequest struct {
	tenant.Key
	Chunks  []chunk.Record  `json:"chunks"`
	Mode    string          `json:"mode"`
	Profile *tenant.Profile `json:"profile,omitempty"`
}

// IngestResponse reports the store size after an ingest.
type IngestResponse struct {
	Tenant   string `json:"tenant"`
	Ingested int    `json:"ingested"`
	Size     int    `json:"size"`
}

// UploadResponse is the body returned by POST /api/v1/upload.
type UploadResponse struct {
	UploadID string `json:"upload_id"`
	Filename string `json:"filename"`
	Tenant   string `json:"tenant"`
	Chunks   int    `json:"chunks"`
	Size     int    `json:"size"`
}

// SearchRequest is the body of POST /api/v1/search. Mode is plain,
// hybrid or keyword; hybrid is the default.
type SearchRequest struct {
	tenant.Key
	Query string   `json:"query"`
	K     int      `json:"k"`
	Alpha *float64 `json:"alpha,omitempty"`
	Mode  string   `json:"mode"`
}

// FanOutRequest is the body of POST /api/v1/fanout.
type FanOutRequest struct {
	Organization    string   `json:"organization"`
	UserID          string   `json:"user_id"`
	Query           string   `json:"query"`
	K               int      `json:"k"`
	Alpha           *float64 `json:"alpha,omitempty"`
	PreferredDomain string   `json:"preferred_domain,omitempty"`
}

// SearchResponse carries ranked results.
type SearchResponse struct {
	Results []store.Result `json:"results"`
}

// AskRequest is the body of POST /api/v1/ask. An empty domain asks the
// general domain.
type AskRequest struct {
	tenant.Key
	Question string `json:"question"`
}

// UpdateAnswerRequest is the body of PUT /api/v1/answers.
type UpdateAnswerRequest struct {
	tenant.Key
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Tenants   int                     `json:"tenants"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}
