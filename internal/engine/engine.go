package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"schemaline/internal/changelog"
	"schemaline/internal/config"
	"schemaline/internal/domain"
	"schemaline/internal/engine/auth"
	"schemaline/internal/repo"
	"schemaline/internal/resolve"
	"schemaline/internal/schema"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Registry *schema.Registry
	Auth     auth.Service
	Resolver resolve.Resolver
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     r,
		Registry: schema.NewRegistry(r),
		Auth:     auth.Service{DB: db},
		Resolver: resolve.Resolver{MaxDepth: cfg.Display.MaxDepth},
		Config:   cfg,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) audit() changelog.Writer {
	return changelog.Writer{Repo: e.Repo, Now: e.now}
}

// inTx runs fn in one transaction, committing only when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StorageFailure("begin transaction", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.StorageFailure("commit", err)
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// notFoundOr maps repo.ErrNotFound to a NotFound error and anything else to
// a storage failure.
func notFoundOr(err error, what, id, op string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NotFound(what, id)
	}
	return domain.StorageFailure(op, err)
}

func (e Engine) workflowStates(ctx context.Context, q repo.Querier, m domain.Model) ([]domain.WorkflowState, error) {
	if m.WorkflowID == nil {
		return nil, nil
	}
	states, err := e.Repo.ListWorkflowStates(ctx, q, *m.WorkflowID)
	if err != nil {
		return nil, domain.StorageFailure("load workflow states", err)
	}
	return states, nil
}

// GetWorkflow returns a workflow definition.
func (e Engine) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	w, err := e.Repo.GetWorkflow(ctx, nil, id)
	if err != nil {
		return w, notFoundOr(err, "workflow", id, "load workflow")
	}
	return w, nil
}

func (e Engine) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	ws, err := e.Repo.ListWorkflows(ctx, nil)
	if err != nil {
		return nil, domain.StorageFailure("list workflows", err)
	}
	return ws, nil
}
