package server

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/audit"
	"github.com/edgecomet/siteguard/internal/common/clientip"
	"github.com/edgecomet/siteguard/internal/common/httputil"
	"github.com/edgecomet/siteguard/internal/domainx"
	"github.com/edgecomet/siteguard/internal/hostsfile"
	"github.com/edgecomet/siteguard/internal/risk"
)

type checkRequest struct {
	URL string `json:"url"`
}

type domainRequest struct {
	Domain string `json:"domain"`
}

type addResponse struct {
	Added bool `json:"added"`
}

type removeResponse struct {
	Removed bool `json:"removed"`
}

type listResponse struct {
	Blocked []string `json:"blocked"`
}

func (s *Server) handleIndex(ctx *fasthttp.RequestCtx, _ string, _ *zap.Logger) {
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(indexHTML)
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx, _ string, _ *zap.Logger) {
	ctx.Response.Header.Set("Content-Type", "text/plain")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.SetBodyString("OK")
}

// handleReady reports 503 until a model is loaded, the hosts file parses
// and every registered readiness check passes.
func (s *Server) handleReady(ctx *fasthttp.RequestCtx, _ string, logger *zap.Logger) {
	if !s.assessor.Ready() {
		httputil.JSONError(ctx, "Model not loaded", fasthttp.StatusServiceUnavailable)
		return
	}

	opCtx, cancel := s.opContext()
	defer cancel()

	if _, err := s.store.List(opCtx); err != nil {
		logger.Warn("Readiness check failed", zap.Error(err))
		httputil.JSONError(ctx, "Hosts file unavailable", fasthttp.StatusServiceUnavailable)
		return
	}

	for _, c := range s.checks {
		if err := c.check(opCtx); err != nil {
			logger.Warn("Readiness check failed", zap.String("check", c.name), zap.Error(err))
			httputil.JSONError(ctx, c.name+" unavailable", fasthttp.StatusServiceUnavailable)
			return
		}
	}

	ctx.Response.Header.Set("Content-Type", "text/plain")
	ctx.Response.SetStatusCode(fasthttp.StatusOK)
	ctx.Response.SetBodyString("OK")
}

func (s *Server) handleCheck(ctx *fasthttp.RequestCtx, _ string, logger *zap.Logger) {
	if !s.assessor.Ready() {
		logger.Error("Scan rejected: no model loaded")
		httputil.JSONError(ctx, "Model not loaded", fasthttp.StatusInternalServerError)
		return
	}

	var req checkRequest
	if err := httputil.DecodeJSON(ctx, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		logger.Debug("Invalid check body", zap.Error(err))
		httputil.JSONError(ctx, "Invalid request body", fasthttp.StatusBadRequest)
		return
	}

	opCtx, cancel := s.opContext()
	defer cancel()

	result, err := s.assessor.Assess(opCtx, req.URL)
	switch {
	case errors.Is(err, risk.ErrEmptyURL):
		httputil.JSONError(ctx, "Empty URL", fasthttp.StatusBadRequest)
		return
	case errors.Is(err, risk.ErrModelUnavailable):
		logger.Error("Scan rejected: no model loaded")
		httputil.JSONError(ctx, "Model not loaded", fasthttp.StatusInternalServerError)
		return
	case err != nil:
		logger.Error("Scoring failed", zap.String("url", req.URL), zap.Error(err))
		httputil.JSONError(ctx, "Scoring failed", fasthttp.StatusInternalServerError)
		return
	}

	s.metrics.RecordScan(result.Score, result.Block)
	logger.Info("URL scanned",
		zap.String("domain", result.Domain),
		zap.Float64("score", result.Score),
		zap.Bool("block", result.Block))

	httputil.JSON(ctx, result, fasthttp.StatusOK)
}

func (s *Server) handleAdd(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	domain, ok := s.readDomain(ctx, logger)
	if !ok {
		return
	}

	if pattern, protected := s.protected.Match(domain); protected {
		s.recordChange(ctx, "add", audit.ActionBlock, domain, audit.ResultRefused, requestID)
		logger.Warn("Refused to block protected domain",
			zap.String("domain", domain),
			zap.String("pattern", pattern))
		httputil.JSONError(ctx, "Domain is protected", fasthttp.StatusForbidden)
		return
	}

	opCtx, cancel := s.opContext()
	defer cancel()

	added, err := s.store.Add(opCtx, domain)

	result := audit.ResultExists
	switch {
	case err != nil:
		result = audit.ResultError
	case added:
		result = audit.ResultAdded
	}
	s.recordChange(ctx, "add", audit.ActionBlock, domain, result, requestID)

	if err != nil {
		s.writeStoreError(ctx, logger, "add", domain, err)
		return
	}

	logger.Info("Domain blocked", zap.String("domain", domain), zap.Bool("changed", added))
	s.refreshAfterChange(opCtx, logger)
	httputil.JSON(ctx, addResponse{Added: true}, fasthttp.StatusOK)
}

func (s *Server) handleRemove(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger) {
	domain, ok := s.readDomain(ctx, logger)
	if !ok {
		return
	}

	opCtx, cancel := s.opContext()
	defer cancel()

	removed, err := s.store.Remove(opCtx, domain)

	result := audit.ResultAbsent
	switch {
	case err != nil:
		result = audit.ResultError
	case removed:
		result = audit.ResultRemoved
	}
	s.recordChange(ctx, "remove", audit.ActionUnblock, domain, result, requestID)

	if err != nil {
		s.writeStoreError(ctx, logger, "remove", domain, err)
		return
	}

	logger.Info("Domain unblocked", zap.String("domain", domain), zap.Bool("changed", removed))
	s.refreshAfterChange(opCtx, logger)
	httputil.JSON(ctx, removeResponse{Removed: true}, fasthttp.StatusOK)
}

func (s *Server) handleList(ctx *fasthttp.RequestCtx, _ string, logger *zap.Logger) {
	opCtx, cancel := s.opContext()
	defer cancel()

	domains, err := s.store.List(opCtx)
	if err != nil {
		s.metrics.RecordHostsOperation("list", audit.ResultError)
		s.writeStoreError(ctx, logger, "list", "", err)
		return
	}
	s.metrics.RecordHostsOperation("list", "ok")
	s.metrics.SetManagedEntries(len(domains))

	if domains == nil {
		domains = []string{}
	}
	httputil.JSON(ctx, listResponse{Blocked: domains}, fasthttp.StatusOK)
}

// readDomain decodes and normalizes the domain of an add or remove request.
// On failure it has already written the 400 response.
func (s *Server) readDomain(ctx *fasthttp.RequestCtx, logger *zap.Logger) (string, bool) {
	var req domainRequest
	if err := httputil.DecodeJSON(ctx, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		logger.Debug("Invalid domain body", zap.Error(err))
		httputil.JSONError(ctx, "Invalid request body", fasthttp.StatusBadRequest)
		return "", false
	}

	domain, err := domainx.Normalize(req.Domain)
	switch {
	case errors.Is(err, domainx.ErrEmptyDomain):
		httputil.JSONError(ctx, "Missing domain", fasthttp.StatusBadRequest)
		return "", false
	case err != nil:
		logger.Debug("Rejected domain", zap.String("domain", req.Domain), zap.Error(err))
		httputil.JSONError(ctx, "Invalid domain", fasthttp.StatusBadRequest)
		return "", false
	}
	return domain, true
}

func (s *Server) recordChange(ctx *fasthttp.RequestCtx, op, action, domain, result, requestID string) {
	s.metrics.RecordHostsOperation(op, result)
	s.audit.Emit(&audit.Event{
		Time:      time.Now(),
		Action:    action,
		Domain:    domain,
		Result:    result,
		RequestID: requestID,
		ClientIP:  clientip.Extract(ctx, s.cfg.ClientIPHeaders),
	})
}

func (s *Server) refreshAfterChange(ctx context.Context, logger *zap.Logger) {
	if err := s.RefreshManagedEntries(ctx); err != nil {
		logger.Warn("Failed to refresh managed entries", zap.Error(err))
	}
}

func (s *Server) writeStoreError(ctx *fasthttp.RequestCtx, logger *zap.Logger, op, domain string, err error) {
	logger.Error("Hosts file operation failed",
		zap.String("op", op),
		zap.String("domain", domain),
		zap.Error(err))

	switch {
	case hostsfile.IsFormatError(err):
		httputil.JSONError(ctx, "Hosts file block is malformed", fasthttp.StatusInternalServerError)
	case hostsfile.IsIOError(err):
		httputil.JSONError(ctx, "Hosts file not accessible", fasthttp.StatusInternalServerError)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httputil.JSONError(ctx, "Hosts file busy", fasthttp.StatusServiceUnavailable)
	default:
		httputil.JSONError(ctx, "Hosts file operation failed", fasthttp.StatusInternalServerError)
	}
}
