package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"postcal/internal/calendar"
	"postcal/internal/optimizer"
	"postcal/internal/post"
	"postcal/pkg/logx"
)

type createRequest struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Content string `json:"content"`
	Type    string `json:"type"`
	// Hashtags are appended to content; ImageURL implies type image when
	// type is omitted.
	Hashtags []string `json:"hashtags,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

type patchRequest struct {
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	Content *string `json:"content"`
	Type    *string `json:"type"`
}

type patchResponse struct {
	Applied bool       `json:"applied"`
	Post    *post.Post `json:"post,omitempty"`
}

type dayResponse struct {
	Date  post.Date   `json:"date"`
	Today bool        `json:"today"`
	Posts []post.Post `json:"posts"`
}

// query reads ?type= and ?q=.
func query(r *http.Request) (calendar.Query, error) {
	f, err := post.ParseFilter(r.URL.Query().Get("type"))
	if err != nil {
		return calendar.Query{}, err
	}
	return calendar.Query{Filter: f, Search: r.URL.Query().Get("q")}, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "posts": s.posts.Len()})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	q, err := query(r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.FilterPosts(s.posts.List(), q))
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind := req.Type
	if strings.TrimSpace(kind) == "" {
		kind = post.InferKind(req.ImageURL).String()
	}
	d, err := post.ParseDraft(req.Date, req.Time, post.WithHashtags(req.Content, req.Hashtags), kind)
	if err != nil {
		writeInputError(w, err)
		return
	}
	p, err := s.posts.Create(d)
	if err != nil {
		writeInputError(w, err)
		return
	}
	w.Header().Set("Location", "/api/posts/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.posts.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "post "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// patchPost answers 200 with applied=false for an unknown id.
func (s *Server) patchPost(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	patch, err := post.ParsePatch(req.Date, req.Time, req.Content, req.Type)
	if err != nil {
		writeInputError(w, err)
		return
	}
	p, ok, err := s.posts.Update(mux.Vars(r)["id"], patch)
	if err != nil {
		writeInputError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, patchResponse{Applied: false})
		return
	}
	writeJSON(w, http.StatusOK, patchResponse{Applied: true, Post: &p})
}

// deletePost is idempotent: 204 whether or not the post existed.
func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	s.posts.Remove(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) optimizePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, ok := s.posts.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "post "+id+" not found")
		return
	}
	out, err := s.optimizer().Optimize(r.Context(), p.Content)
	switch {
	case errors.Is(err, optimizer.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.Warn("optimize failed", logx.String("rid", RequestID(r.Context())), logx.String("post_id", id), logx.Err(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	updated, ok, err := s.posts.Update(id, post.Patch{Content: &out})
	if err != nil {
		writeInputError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "post "+id+" was removed")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func pathMonth(r *http.Request) (calendar.Month, error) {
	v := mux.Vars(r)
	y, _ := strconv.Atoi(v["year"])
	m, _ := strconv.Atoi(v["month"])
	return calendar.NewMonth(y, time.Month(m))
}

func (s *Server) monthView(w http.ResponseWriter, r *http.Request) {
	m, err := pathMonth(r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	q, err := query(r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	now, _, weekStart := s.clock()
	switch strings.ToLower(r.URL.Query().Get("week_start")) {
	case "":
	case "sunday":
		weekStart = time.Sunday
	case "monday":
		weekStart = time.Monday
	default:
		writeError(w, http.StatusBadRequest, "week_start must be sunday or monday")
		return
	}
	writeJSON(w, http.StatusOK, calendar.BuildMonth(s.posts.List(), q, m, weekStart, now))
}

func (s *Server) dayView(w http.ResponseWriter, r *http.Request) {
	m, err := pathMonth(r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	d, _ := strconv.Atoi(mux.Vars(r)["day"])
	day, err := post.NewDate(m.Year, m.Month, d)
	if err != nil {
		writeInputError(w, err)
		return
	}
	q, err := query(r)
	if err != nil {
		writeInputError(w, err)
		return
	}
	now, _, _ := s.clock()
	posts := calendar.SortByInstant(calendar.PostsOnDay(calendar.FilterPosts(s.posts.List(), q), day))
	writeJSON(w, http.StatusOK, dayResponse{Date: day, Today: calendar.IsToday(day, now), Posts: posts})
}
