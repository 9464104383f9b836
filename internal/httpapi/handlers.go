package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/UkralStul/forum-service/internal/auth"
	"github.com/UkralStul/forum-service/internal/domain"
)

type registerRequest struct {
	Username        string `json:"username" validate:"required,max=64"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (q *registerRequest) fromForm(get func(...string) string) {
	q.Username = get("username")
	q.Password = get("password")
	q.ConfirmPassword = get("confirmPassword", "confirm_password")
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

func (q *loginRequest) fromForm(get func(...string) string) {
	q.Username = get("username")
	q.Password = get("password")
}

type postRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
}

func (q *postRequest) fromForm(get func(...string) string) {
	q.Title = get("title")
	q.Content = get("content")
}

type replyRequest struct {
	Content string `json:"content" validate:"required"`
}

func (q *replyRequest) fromForm(get func(...string) string) {
	q.Content = get("content", "reply")
}

type idResponse struct {
	ID string `json:"id"`
}

type likeResponse struct {
	Liked   bool `json:"liked"`
	NoLikes int  `json:"no_likes"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.auth.Register(r.Context(), req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.sessionCookie(sess.Token, sess.ExpiresAt, int(s.ttl/time.Second)))
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Revoke(r.Context(), sessionToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	http.SetCookie(w, s.sessionCookie("", time.Unix(0, 0), -1))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.content.CreatePost(r.Context(), req.Title, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reply, err := s.content.CreateReply(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFrom(r.Context())
	if !ok {
		s.writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	res, err := s.likes.Toggle(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.content.Invalidate()
	writeJSON(w, http.StatusOK, likeResponse{Liked: res.Liked(), NoLikes: res.NoLikes})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	threads, err := s.content.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	thread, err := s.content.GetThread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleGetReply(w http.ResponseWriter, r *http.Request) {
	reply, err := s.content.GetReply(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "replyID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.content.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
