package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-tracker/internal/tracker"
)

type checkedRequest struct {
	URL     string `json:"url"`
	Checked bool   `json:"checked"`
}

type siteCrawlResponse struct {
	SiteID string         `json:"site_id"`
	Crawl  *tracker.Crawl `json:"crawl,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (s *Server) findSitemap(w http.ResponseWriter, r *http.Request) {
	base := r.URL.Query().Get("url")
	if base == "" {
		writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	sitemapURL, err := s.deps.Finder.FindSitemapURL(r.Context(), base)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sitemap_url": sitemapURL})
}

// crawlSite runs a crawl synchronously, or queues it when async=true.
func (s *Server) crawlSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.ownedSite(r.Context(), chi.URLParam(r, "site_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if s.deps.Queue == nil {
			writeError(w, http.StatusNotImplemented, "background crawls are disabled")
			return
		}
		req := tracker.CrawlRequest{SiteID: site.ID, Trigger: "api", Submitted: s.deps.Clock.Now().Unix()}
		if err := s.deps.Queue.Enqueue(r.Context(), req); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"site_id": site.ID, "status": "queued"})
		return
	}

	crawl, err := s.deps.Tracker.CrawlSite(r.Context(), site)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, crawl)
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	site, err := s.ownedSite(r.Context(), chi.URLParam(r, "site_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	crawls, err := s.deps.Tracker.ListCrawls(r.Context(), site.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"site_id": site.ID, "crawls": crawls})
}

func (s *Server) deleteSiteCrawls(w http.ResponseWriter, r *http.Request) {
	site, err := s.ownedSite(r.Context(), chi.URLParam(r, "site_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Tracker.DeleteCrawlsForSite(r.Context(), site.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) crawlAllSites(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Tracker.CrawlUserSites(r.Context(), userID(r.Context()))
	if err != nil && len(results) == 0 {
		s.fail(w, r, err)
		return
	}
	out := make([]siteCrawlResponse, 0, len(results))
	for _, res := range results {
		item := siteCrawlResponse{SiteID: res.Site.ID}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else {
			crawl := res.Crawl
			item.Crawl = &crawl
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	crawl, err := s.ownedCrawl(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, crawl)
}

func (s *Server) crawlURLs(w http.ResponseWriter, r *http.Request) {
	crawl, err := s.ownedCrawl(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := s.deps.Tracker.URLsAt(r.Context(), crawl.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawl_id": crawl.ID, "count": len(urls), "urls": urls})
}

func (s *Server) updateChecked(w http.ResponseWriter, r *http.Request) {
	var req checkedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	crawl, err := s.ownedCrawl(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, found, err := s.deps.Tracker.UpdateURLCheckedStatus(r.Context(), crawl.ID, req.URL, req.Checked)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteCrawl(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tracker.DeleteCrawl(r.Context(), chi.URLParam(r, "crawl_id"), userID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportCrawl(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is disabled")
		return
	}
	crawl, err := s.ownedCrawl(r.Context(), chi.URLParam(r, "crawl_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Exporter.ExportCrawl(r.Context(), crawl.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ownedSite loads a site and checks it belongs to the caller.
func (s *Server) ownedSite(ctx context.Context, siteID string) (tracker.Site, error) {
	site, err := s.deps.Tracker.GetSite(ctx, siteID)
	if err != nil {
		return tracker.Site{}, err
	}
	if site.UserID != userID(ctx) {
		return tracker.Site{}, tracker.ErrUnauthorized
	}
	return site, nil
}

func (s *Server) ownedCrawl(ctx context.Context, crawlID string) (tracker.Crawl, error) {
	crawl, err := s.deps.Tracker.GetCrawl(ctx, crawlID)
	if err != nil {
		return tracker.Crawl{}, err
	}
	if _, err := s.ownedSite(ctx, crawl.SiteID); err != nil {
		return tracker.Crawl{}, err
	}
	return crawl, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := s.logger.With(
		zap.String("path", r.URL.Path),
		zap.String("request_id", requestID(r.Context())),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status))
	} else {
		logger.Debug("request rejected", zap.Int("status", status))
	}
	writeError(w, status, err.Error())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var fetchErr *tracker.FetchError
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, tracker.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrConflict), errors.Is(err, tracker.ErrAlreadyQueued):
		return http.StatusConflict
	case errors.Is(err, tracker.ErrInvalidSitemap), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, tracker.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
