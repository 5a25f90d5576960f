package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunk"
	"github.com/fyrsmithlabs/tenantrag/internal/profiles"
	"github.com/fyrsmithlabs/tenantrag/internal/registry"
	"github.com/fyrsmithlabs/tenantrag/internal/store"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
)

// handleHealth reports liveness, open tenant stores and telemetry state.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Tenants: len(s.opts.Registry.Tenants())}
	if s.opts.Telemetry != nil {
		h := s.opts.Telemetry.Health()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if s.opts.Profiles == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "profile directory disabled")
	}
	ctx := s.withTenant(c, req.Key)

	entry, err := s.opts.Profiles.Upsert(ctx, req.Key, req.Profile)
	if err != nil {
		return toHTTPError(err)
	}
	path, err := s.opts.Registry.StorePath(req.Key)
	if err != nil {
		return toHTTPError(err)
	}
	s.logger.Info(ctx, "tenant registered")
	return c.JSON(http.StatusCreated, RegisterResponse{Entry: entry, Store: path})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	mode, err := store.ParseMode(req.Mode)
	if err != nil {
		return toHTTPError(err)
	}
	ctx := s.withTenant(c, req.Key)

	st, err := s.opts.Registry.Resolve(ctx, req.Key)
	if err != nil {
		return toHTTPError(err)
	}
	profile, err := s.profileFor(ctx, req.Key, req.Profile)
	if err != nil {
		return toHTTPError(err)
	}
	if err := st.Ingest(ctx, chunk.FromRecords(req.Chunks), profile, mode); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, IngestResponse{Tenant: st.Key().String(), Ingested: len(req.Chunks), Size: st.Size()})
}

// handleUpload splits a multipart file and appends its fragments. The form
// carries organization, user_id, domain and file.
func (s *Server) handleUpload(c echo.Context) error {
	r := c.Request()
	if r.ContentLength > s.config.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds size limit")
	}
	r.Body = http.MaxBytesReader(c.Response(), r.Body, s.config.MaxUploadBytes)

	key := tenant.NewKey(c.FormValue("organization"), c.FormValue("user_id"), c.FormValue("domain"))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	ctx := s.withTenant(c, key)

	st, err := s.opts.Registry.Resolve(ctx, key)
	if err != nil {
		return toHTTPError(err)
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file").SetInternal(err)
	}
	defer f.Close()

	upload, err := s.opts.Splitter.Split(ctx, fh.Filename, f)
	if err != nil {
		return toHTTPError(err)
	}
	profile, err := s.profileFor(ctx, key, nil)
	if err != nil {
		return toHTTPError(err)
	}
	if err := st.Ingest(ctx, upload.Chunks, profile, store.ModeAppend); err != nil {
		return toHTTPError(err)
	}

	s.logger.Info(ctx, "file uploaded",
		zap.String("upload_id", upload.ID),
		zap.String("filename", upload.Filename),
		zap.Int("chunks", len(upload.Chunks)),
	)
	return c.JSON(http.StatusOK, UploadResponse{
		UploadID: upload.ID,
		Filename: upload.Filename,
		Tenant:   st.Key().String(),
		Chunks:   len(upload.Chunks),
		Size:     st.Size(),
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := s.withTenant(c, req.Key)

	st, err := s.opts.Registry.Resolve(ctx, req.Key)
	if err != nil {
		return toHTTPError(err)
	}
	k := s.k(req.K)

	var results []store.Result
	switch strings.ToLower(req.Mode) {
	case "", "hybrid":
		results, err = st.HybridSearch(ctx, req.Query, k, s.alpha(req.Alpha))
	case "plain":
		results, err = st.Search(ctx, req.Query, k)
	case "keyword":
		results, err = st.KeywordSearch(ctx, req.Query, k)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be plain, hybrid or keyword")
	}
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleFanOut(c echo.Context) error {
	var req FanOutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := s.withTenant(c, tenant.NewKey(req.Organization, req.UserID, req.PreferredDomain))

	results, err := s.opts.Registry.FanOutSearch(ctx, req.Organization, req.UserID, req.Query, registry.FanOutOptions{
		K:               s.k(req.K),
		Alpha:           s.alpha(req.Alpha),
		PreferredDomain: req.PreferredDomain,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if s.opts.Pipeline == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "answer pipeline disabled")
	}
	ctx := s.withTenant(c, req.Key)

	ans, err := s.opts.Pipeline.Ask(ctx, req.Key, req.Question)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ans)
}

func (s *Server) handleUpdateAnswer(c echo.Context) error {
	var req UpdateAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := s.withTenant(c, req.Key)

	st, err := s.opts.Registry.Resolve(ctx, req.Key)
	if err != nil {
		return toHTTPError(err)
	}
	if err := st.UpdateAnswer(ctx, req.Question, req.Answer); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// withTenant attaches key to the request context for logging.
func (s *Server) withTenant(c echo.Context, key tenant.Key) context.Context {
	ctx := tenant.WithKey(c.Request().Context(), key)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx
}

// profileFor returns explicit when set, otherwise the registered profile.
// Unregistered tenants ingest with an empty profile.
func (s *Server) profileFor(ctx context.Context, key tenant.Key, explicit *tenant.Profile) (tenant.Profile, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if s.opts.Profiles == nil {
		return tenant.Profile{}, nil
	}
	entry, err := s.opts.Profiles.Get(ctx, key)
	if errors.Is(err, profiles.ErrNotFound) {
		return tenant.Profile{}, nil
	}
	if err != nil {
		return tenant.Profile{}, err
	}
	return entry.Profile, nil
}

func (s *Server) k(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.config.K
}

func (s *Server) alpha(requested *float64) float64 {
	if requested != nil {
		return *requested
	}
	return s.config.Alpha
}
