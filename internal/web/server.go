// Package web serves the job UI, health and metrics endpoints.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/jobs"
	"github.com/example/resy-sniper/internal/reservation"
)

//go:embed templates/*.html
var templateFS embed.FS

// JobRepo is the part of *jobs.Repo the UI uses.
type JobRepo interface {
	Create(ctx context.Context, j jobs.Job) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]jobs.Job, error)
	GetByIDForUser(ctx context.Context, id, userID int64) (jobs.Job, error)
	ListRuns(ctx context.Context, jobID int64) ([]jobs.Run, error)
}

type Server struct {
	Auth    *auth.Store
	Jobs    JobRepo
	Metrics http.Handler // served on /metrics when set
	// Location is used to read wake times typed into the form.
	Location *time.Location

	BaseURL string
}

type tmplData struct {
	Title string
	User  int64

	Flash string
	Jobs  []jobs.Job
	Job   jobs.Job
	Runs  []jobs.Run
	Form  jobForm
}

func (s *Server) Routes(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.Metrics != nil {
		mux.Handle("/metrics", s.Metrics)
	}

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.Handle("/", s.Auth.RequireAuth(http.HandlerFunc(s.handleHome)))
	mux.Handle("/jobs/new", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobNew)))
	mux.Handle("/jobs/create", s.Auth.RequireAuth(http.HandlerFunc(s.handleJobCreate)))
	mux.Handle("/jobs/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleJob)))

	return withLogging(logger, mux)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	js, err := s.Jobs.ListByUser(r.Context(), uid)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "templates/jobs.html", tmplData{Title: "Jobs", User: uid, Jobs: js})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	j, err := s.Jobs.GetByIDForUser(r.Context(), id, uid)
	if errors.Is(err, db.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	runs, err := s.Jobs.ListRuns(r.Context(), j.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "templates/job.html", tmplData{Title: j.Name, User: uid, Job: j, Runs: runs})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(r.FormValue("username"))
		id, err := s.Auth.Authenticate(r.Context(), username, r.FormValue("password"))
		if err != nil {
			zerolog.Ctx(r.Context()).Info().Err(err).Str("username", username).Msg("login failed")
			s.render(w, r, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
			return
		}
		if err := s.Auth.SetSession(w, r, id); err != nil {
			s.serverError(w, r, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleJobNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s.render(w, r, http.StatusOK, "templates/new_job.html", tmplData{Title: "New Job", User: uid, Form: defaultJobForm()})
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f := jobFormFrom(r.PostForm)
	j, err := f.job(uid, s.location())
	if err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, "templates/new_job.html", tmplData{Title: "New Job", User: uid, Flash: err.Error(), Form: f})
		return
	}
	id, err := s.Jobs.Create(r.Context(), j)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("create job failed")
		s.render(w, r, http.StatusInternalServerError, "templates/new_job.html", tmplData{Title: "New Job", User: uid, Flash: "Failed to create job", Form: f})
		return
	}
	zerolog.Ctx(r.Context()).Info().Int64("job_id", id).Time("wake_at", j.WakeAt).Msg("job created")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

var funcs = template.FuncMap{
	"clock": reservation.FormatClock,
	"day":   func(t time.Time) string { return t.Format(reservation.DayLayout) },
	"stamp": func(t time.Time) string { return t.Local().Format(reservation.DateTimeLayout) },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/base.html", name)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// Start serves h on addr until ctx is done.
func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	zerolog.Ctx(ctx).Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
