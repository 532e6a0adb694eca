package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pavelanni/examcert/internal/certificate"
	"github.com/pavelanni/examcert/internal/handler/views"
	appI18n "github.com/pavelanni/examcert/internal/i18n"
	"github.com/pavelanni/examcert/internal/metrics"
	"github.com/pavelanni/examcert/internal/model"
	"github.com/pavelanni/examcert/internal/session"
	"github.com/pavelanni/examcert/internal/store"
)

// Generator produces an exam document for a course and level.
type Generator interface {
	Generate(ctx context.Context, course string, level model.ExamLevel) (*model.ExamDocument, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	gen     Generator
	metrics *metrics.Metrics
	config  model.AppConfig
	limiter *rateLimiter
	now     func() time.Time
}

// New creates a new Handler. m may be nil to disable metrics.
func New(s *store.Store, gen Generator, m *metrics.Metrics, cfg model.AppConfig) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: nil store")
	}
	if gen == nil {
		return nil, errors.New("handler: nil generator")
	}
	return &Handler{
		store:   s,
		gen:     gen,
		metrics: m,
		config:  cfg,
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateWindow),
		now:     time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	pageLimit := h.limiter.middleware(h.tooManyRequestsPage)
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.With(pageLimit).Post("/exam/start", h.handleStartExam)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Get("/exam", h.handleExamPage)
			r.Post("/exam/answer", h.handleAnswer)
			r.With(pageLimit).Post("/exam/retry", h.handleRetry)
			r.Post("/exam/reset", h.handleReset)
			r.Get("/exam/certificate", h.handleCertificate)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins(),
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(h.limiter.middleware(h.tooManyRequestsAPI))
		r.Post("/generate-questions", h.handleGenerateAPI)
	})
}

func (h *Handler) corsOrigins() []string {
	if len(h.config.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return h.config.CORSOrigins
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}

// transitionError answers 409 for session misuse and 500 for anything else.
func (h *Handler) transitionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		slog.Warn("invalid session transition", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, store.ErrNotFound):
		h.clearSessionCookie(w)
		h.redirectToStart(w, r)
	default:
		h.serverError(w, "failed to update exam session", err)
	}
}

func (h *Handler) tooManyRequestsPage(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "too many requests, try again later", http.StatusTooManyRequests)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.IndexPage(views.StartForm{}, ""))
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	form := views.StartForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Course:   strings.TrimSpace(r.FormValue("course")),
		Level:    strings.TrimSpace(r.FormValue("level")),
	}
	level, err := model.ParseLevel(form.Level)
	if form.Username == "" || form.Course == "" || err != nil {
		h.render(w, r, http.StatusBadRequest, views.IndexPage(form, appI18n.T(r.Context(), "MissingFields")))
		return
	}

	if n, err := h.store.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Debug("removed expired sessions", "count", n)
	}

	// Starting over replaces whatever session the browser had.
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := h.store.DeleteSession(cookie.Value); err != nil {
			slog.Warn("failed to delete previous session", "error", err)
		}
	}

	sess := session.New(form.Username, form.Course, level)
	if err := h.store.CreateSession(sess); err != nil {
		h.serverError(w, "failed to create exam session", err)
		return
	}
	slog.Info("exam started", "session", sess.ID, "course", sess.Course, "level", sess.Level)

	if err := h.loadExam(r.Context(), sess); err != nil {
		h.transitionError(w, r, err)
		return
	}
	h.setSessionCookie(w, sess.ID)
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

// loadExam generates the exam of a loading session and stores the outcome.
// A generation failure moves the session to the error state; only storage
// problems are returned.
func (h *Handler) loadExam(ctx context.Context, sess *session.Session) error {
	doc, genErr := h.generate(ctx, sess.Course, sess.Level)
	_, err := h.store.UpdateSession(sess.ID, func(s *session.Session) error {
		if genErr != nil {
			return s.Fail(genErr)
		}
		if err := s.Load(*doc); err != nil {
			return err
		}
		return s.Begin()
	})
	return err
}

func (h *Handler) generate(ctx context.Context, course string, level model.ExamLevel) (*model.ExamDocument, error) {
	start := time.Now()
	doc, err := h.gen.Generate(ctx, course, level)
	elapsed := time.Since(start)
	if err != nil {
		slog.Error("exam generation failed", "course", course, "level", level, "duration", elapsed, "error", err)
		h.metrics.ObserveGeneration(string(level), "error", elapsed)
		return nil, err
	}
	slog.Info("exam generated", "course", course, "level", level, "questions", doc.Len(), "duration", elapsed)
	h.metrics.ObserveGeneration(string(level), "ok", elapsed)
	return doc, nil
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	switch sess.State {
	case session.StateError:
		h.render(w, r, http.StatusOK, views.ErrorPage(sess.Err))
	case session.StateInProgress:
		q, ok := sess.Current()
		if !ok {
			h.serverError(w, "exam session has no current question", fmt.Errorf("position %d of %d", sess.Position, sess.Len()))
			return
		}
		answer, answered := sess.CurrentAnswer()
		h.render(w, r, http.StatusOK, views.QuestionPage(views.QuestionView{
			Number:    sess.Position + 1,
			Total:     sess.Len(),
			Question:  q,
			Answer:    answer,
			HasAnswer: answered,
			IsLast:    sess.IsLast(),
		}))
	case session.StateCompleted:
		breakdown, err := sess.Score()
		if err != nil {
			h.transitionError(w, r, err)
			return
		}
		h.render(w, r, http.StatusOK, views.ResultsPage(views.ResultsView{
			Username:  sess.Username,
			Course:    sess.Course,
			Level:     sess.Level,
			Breakdown: breakdown,
		}))
	default:
		h.render(w, r, http.StatusOK, views.LoadingPage())
	}
}

var errStaleForm = errors.New("answer form does not match the current question")

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	position := -1
	if p := r.PostFormValue("position"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		position = n
	}
	values, hasAnswer := r.PostForm["answer"]

	updated, err := h.store.UpdateSession(sess.ID, func(s *session.Session) error {
		// A resubmitted form must not move the exam on. Once the exam is over
		// every positioned form is stale and the results page is shown.
		if position >= 0 && (s.State != session.StateInProgress || position != s.Position) {
			return errStaleForm
		}
		if hasAnswer && len(values) > 0 {
			if err := s.RecordAnswer(values[0]); err != nil {
				return err
			}
		}
		return s.Advance()
	})
	if errors.Is(err, errStaleForm) {
		http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
		return
	}
	if err != nil {
		h.transitionError(w, r, err)
		return
	}
	h.setSessionCookie(w, updated.ID)

	if updated.State == session.StateCompleted {
		if breakdown, err := updated.Score(); err == nil {
			h.metrics.ObserveScore(string(updated.Level), breakdown.Total)
			slog.Info("exam completed", "session", updated.ID, "course", updated.Course,
				"level", updated.Level, "score", breakdown.Total)
		}
	}
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	restarted, err := h.store.UpdateSession(sess.ID, func(s *session.Session) error {
		if s.State != session.StateError {
			return fmt.Errorf("%w: retry in state %s", session.ErrInvalidTransition, s.State)
		}
		s.Restart()
		return nil
	})
	if err != nil {
		h.transitionError(w, r, err)
		return
	}
	if err := h.loadExam(r.Context(), restarted); err != nil {
		h.transitionError(w, r, err)
		return
	}
	h.setSessionCookie(w, restarted.ID)
	http.Redirect(w, r, h.path("/exam"), http.StatusSeeOther)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if err := h.store.DeleteSession(sess.ID); err != nil {
		h.serverError(w, "failed to delete exam session", err)
		return
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleCertificate(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	breakdown, err := sess.Score()
	if err != nil {
		h.transitionError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = certificate.Render(&buf, certificate.Certificate{
		Username: sess.Username,
		Course:   sess.Course,
		Level:    string(sess.Level),
		Score:    breakdown.Total,
		IssuedAt: h.now(),
		Labels:   CertificateLabels(r.Context()),
	})
	if err != nil {
		h.serverError(w, "failed to render certificate", err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": certificate.Filename(sess.Username, sess.Course),
	})
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write certificate", "error", err)
	}
}

// CertificateLabels returns the certificate wording for the language in ctx.
func CertificateLabels(ctx context.Context) certificate.Labels {
	return certificate.Labels{
		Title:        appI18n.T(ctx, "CertTitle"),
		Certify:      appI18n.T(ctx, "CertCertify"),
		Completed:    appI18n.T(ctx, "CertCompleted"),
		CourseFormat: appI18n.T(ctx, "CertCourseFormat"),
		ScoreFormat:  appI18n.T(ctx, "CertScoreFormat"),
		IssuedFormat: appI18n.T(ctx, "CertIssuedFormat"),
		DateLayout:   appI18n.T(ctx, "CertDateLayout"),
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	n, err := h.store.SessionCount()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": n})
}
