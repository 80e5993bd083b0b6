package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	api "github.com/traincore/traincore-lms/internal/api/http"
	"github.com/traincore/traincore-lms/internal/assessment"
	auth "github.com/traincore/traincore-lms/internal/auth/middleware"
	"github.com/traincore/traincore-lms/internal/catalog"
	"github.com/traincore/traincore-lms/internal/config"
	"github.com/traincore/traincore-lms/internal/db"
	"github.com/traincore/traincore-lms/internal/eventlog"
	"github.com/traincore/traincore-lms/internal/progress"
	"github.com/traincore/traincore-lms/internal/rbac"
)

// enrollmentSource adapts the progress store to the narrow view the
// attempt manager needs for eligibility checks.
type enrollmentSource struct{ store progress.Store }

func (s enrollmentSource) Enrollment(ctx context.Context, id string) (assessment.Enrollment, error) {
	e, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return assessment.Enrollment{}, err
	}
	return assessment.Enrollment{
		ID:        e.ID,
		CourseID:  e.CourseID,
		TraineeID: e.TraineeID,
		Status:    e.Status,
	}, nil
}

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	if err := seedAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Stores and services ---
	catStore := catalog.NewSQLStore(dbh)
	progStore := progress.NewSQLStore(dbh)
	assessStore := assessment.NewSQLStore(dbh)
	events := eventlog.NewRepo(dbh)

	agg := progress.NewAggregator(catStore, progStore, assessStore, events, nil)
	tracker := progress.NewTracker(catStore, progStore, agg, events)
	svc := assessment.NewService(assessStore, enrollmentSource{progStore}, agg, events, cfg.SubmitGraceSec, nil)
	auto := assessment.NewAutoSubmitter(svc, time.Duration(cfg.SubmitGraceSec)*time.Second)
	defer auto.Stop()

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Background jobs ---
	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		jctx, jcancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer jcancel()
		idleBefore := time.Now().Add(-time.Duration(cfg.AbandonAfterHours) * time.Hour).Unix()
		expired, abandoned, err := svc.SweepStale(jctx, idleBefore)
		if err != nil {
			log.Printf("[attempt-sweep] %v", err)
			return
		}
		if expired+abandoned > 0 {
			log.Printf("[attempt-sweep] expired=%d abandoned=%d", expired, abandoned)
		}
	}); err != nil {
		log.Fatalf("schedule attempt sweep: %v", err)
	}
	if _, err := c.AddFunc(cfg.RecomputeSchedule, func() {
		jctx, jcancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer jcancel()
		n, err := agg.RecomputeAll(jctx)
		if err != nil {
			log.Printf("[progress-sweep] %v", err)
			return
		}
		log.Printf("[progress-sweep] recomputed %d enrollments", n)
	}); err != nil {
		log.Fatalf("schedule progress sweep: %v", err)
	}
	c.Start()
	defer c.Stop()

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT -> role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh))

		// Authoring
		pr.With(rbac.Require("course:author")).
			Post("/courses/seed", api.SeedCourseHandler(catStore, progStore))
		pr.With(rbac.RequireAny("course:author", "assessment:view")).
			Get("/courses/{courseID}", api.GetCourseHandler(catStore))
		pr.With(rbac.Require("assessment:create")).
			Post("/assessments", api.CreateAssessmentHandler(svc))
		pr.With(rbac.Require("assessment:view")).
			Get("/assessments/{assessmentID}", api.GetAssessmentHandler(svc, progStore))

		// Attempt flow
		pr.With(rbac.Require("attempt:create")).
			Post("/assessments/{assessmentID}/attempts", api.StartAttemptHandler(svc, auto, progStore))
		pr.With(rbac.Require("attempt:save")).
			Post("/attempts/{attemptID}/responses", api.SaveResponsesHandler(svc, progStore))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(svc, auto, progStore))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(svc, progStore))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(svc, progStore))

		// Progress
		pr.With(rbac.Require("progress:record")).
			Post("/enrollments/{enrollmentID}/contents/{contentID}/complete", api.CompleteContentHandler(tracker, progStore))
		pr.With(rbac.Require("progress:record")).
			Post("/enrollments/{enrollmentID}/contents/{contentID}/video-progress", api.VideoProgressHandler(tracker, progStore))
		pr.With(rbac.RequireAny("progress:view-own", "progress:view-all")).
			Get("/enrollments/{enrollmentID}/progress", api.GetProgressHandler(agg, progStore))
		pr.With(rbac.Require("enrollment:drop")).
			Post("/enrollments/{enrollmentID}/drop", api.DropEnrollmentHandler(progStore))
		pr.With(rbac.Require("progress:view-all")).
			Get("/courses/{courseID}/progress", api.CourseProgressHandler(agg))
		pr.With(rbac.Require("progress:view-all")).
			Get("/courses/{courseID}/progress/export", api.ExportCourseProgressHandler(agg))

		// Users
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.Post("/users/me/password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedAdmin inserts the bootstrap admin account if no row for the
// configured username exists.
func seedAdmin(ctx context.Context, dbh *sql.DB, username, passHash string) error {
	if username == "" || passHash == "" {
		return nil
	}
	err := dbh.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, username).Scan(new(int))
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = dbh.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,'admin',$4)`,
		uuid.NewString(), username, passHash, time.Now().Unix())
	return err
}
