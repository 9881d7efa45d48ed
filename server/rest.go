package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/mrcoles/iron-blogger2/pkg/feed"
	"github.com/mrcoles/iron-blogger2/pkg/ledger"
	"github.com/mrcoles/iron-blogger2/pkg/repository"
)

const excerptLen = 200

// bloggerInfo is the per-participant standing returned by the bloggers endpoint
type bloggerInfo struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	Missed    int       `json:"missed_posts"`
	Owed      int       `json:"owed"`
}

// roundInfo is one ledger entry of a blogger, with the satisfying post if any
type roundInfo struct {
	ID       int64     `json:"id"`
	Due      time.Time `json:"due"`
	Paid     int       `json:"paid"`
	Forgiven int       `json:"forgiven"`
	Owed     int       `json:"owed"`
	Post     *postInfo `json:"post,omitempty"`
}

type postInfo struct {
	Blogger   string     `json:"blogger,omitempty"`
	Title     string     `json:"title"`
	PageURL   string     `json:"page_url"`
	Timestamp time.Time  `json:"timestamp"`
	Excerpt   string     `json:"excerpt"`
	CountsFor *time.Time `json:"counts_for,omitempty"`
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// bloggersHandler returns all participants with their missed-round counts and
// outstanding debt
func (s *Server) bloggersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bloggers, err := s.db.ListBloggers(ctx)
	if err != nil {
		lgr.Printf("[ERROR] failed to list bloggers: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	result := make([]bloggerInfo, 0, len(bloggers))
	for _, b := range bloggers {
		posts, err := s.db.ListPostsByBlogger(ctx, b.ID)
		if err != nil {
			lgr.Printf("[ERROR] failed to list posts for %s: %v", b.Name, err)
			renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		times := make([]time.Time, len(posts))
		for i, p := range posts {
			times[i] = p.Timestamp
		}

		entries, _, err := s.db.LedgerEntries(ctx, b.ID)
		if err != nil {
			lgr.Printf("[ERROR] failed to load ledger for %s: %v", b.Name, err)
			renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		total := 0
		for _, e := range entries {
			owed, err := ledger.Owed(e)
			if err != nil {
				lgr.Printf("[ERROR] ledger fault for %s: %v", b.Name, err)
				renderError(w, r, err, http.StatusInternalServerError)
				return
			}
			total += owed
		}

		result = append(result, bloggerInfo{
			Name:      b.Name,
			StartDate: b.StartDate,
			Missed:    ledger.MissedPosts(ledger.Snapshot{StartDate: b.StartDate, PostTimes: times}, time.Time{}, time.Time{}),
			Owed:      total,
		})
	}

	renderJSON(w, r, http.StatusOK, result)
}

// ledgerHandler returns the full round ledger of one participant
func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	blogger, err := s.db.GetBloggerByName(ctx, name)
	if err != nil {
		renderError(w, r, fmt.Errorf("blogger %q not found", name), http.StatusNotFound)
		return
	}

	entries, ids, err := s.db.LedgerEntries(ctx, blogger.ID)
	if err != nil {
		lgr.Printf("[ERROR] failed to load ledger for %s: %v", name, err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	result := make([]roundInfo, len(entries))
	for i, e := range entries {
		owed, err := ledger.Owed(e)
		if err != nil {
			// invariant violation is a data defect, surface it instead of rendering bad numbers
			lgr.Printf("[ERROR] ledger fault for %s: %v", name, err)
			renderError(w, r, err, http.StatusInternalServerError)
			return
		}
		info := roundInfo{ID: ids[i], Due: e.Due, Paid: e.Paid, Forgiven: e.Forgiven, Owed: owed}
		if e.Post != nil {
			info.Post = &postInfo{
				Title:     e.Post.Title,
				PageURL:   e.Post.PageURL,
				Timestamp: e.Post.Timestamp,
				Excerpt:   feed.Excerpt(e.Post.Summary, excerptLen),
			}
		}
		result[i] = info
	}

	renderJSON(w, r, http.StatusOK, result)
}

// recentPostsHandler returns the newest posts across all blogs
func (s *Server) recentPostsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = n
	}

	posts, err := s.db.ListRecentPosts(r.Context(), limit)
	if err != nil {
		lgr.Printf("[ERROR] failed to list recent posts: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	result := make([]postInfo, len(posts))
	for i, p := range posts {
		result[i] = postInfo{
			Blogger:   p.BloggerName,
			Title:     p.Title,
			PageURL:   p.PageURL,
			Timestamp: p.Timestamp,
			Excerpt:   feed.Excerpt(p.Summary, excerptLen),
			CountsFor: p.CountsFor,
		}
	}

	renderJSON(w, r, http.StatusOK, result)
}

// paymentHandler records a payment against a round's debt
func (s *Server) paymentHandler(w http.ResponseWriter, r *http.Request) {
	s.creditHandler(w, r, s.db.RecordPayment)
}

// forgivenessHandler waives part of a round's debt
func (s *Server) forgivenessHandler(w http.ResponseWriter, r *http.Request) {
	s.creditHandler(w, r, s.db.RecordForgiveness)
}

func (s *Server) creditHandler(w http.ResponseWriter, r *http.Request, record func(ctx context.Context, roundID int64, amount int) error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid round ID"), http.StatusBadRequest)
		return
	}

	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, fmt.Errorf("invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		renderError(w, r, fmt.Errorf("amount must be positive"), http.StatusBadRequest)
		return
	}

	if err := record(r.Context(), id, req.Amount); err != nil {
		var cerr *ledger.ConsistencyError
		switch {
		case errors.As(err, &cerr):
			renderError(w, r, err, http.StatusConflict)
		case errors.Is(err, repository.ErrRoundNotFound):
			renderError(w, r, err, http.StatusNotFound)
		default:
			lgr.Printf("[ERROR] failed to credit round %d: %v", id, err)
			renderError(w, r, err, http.StatusInternalServerError)
		}
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]string{"result": "ok"})
}

// syncHandler runs a fetch-then-assign cycle on demand
func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.RunOnce(r.Context()); err != nil {
		lgr.Printf("[ERROR] manual sync failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"result": "ok"})
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
