package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"schemaline/internal/config"
	"schemaline/internal/db"
	"schemaline/internal/domain"
	"schemaline/internal/engine"
	"schemaline/internal/engine/auth"
	"schemaline/internal/migrate"
)

// SystemActor is recorded as the author of bootstrap writes.
const SystemActor = "system"

// Workspace bundles an opened database with the config and engine built on it.
type Workspace struct {
	Root   string
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

// Open loads the workspace config, opens and migrates the database and seeds
// workflows, roles and models declared in the config. Seeding is idempotent.
func Open(ctx context.Context, root string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(root)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: root})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Logger = logger
	if err := Seed(ctx, eng, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return &Workspace{Root: root, Config: cfg, DB: conn, Engine: eng}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Init writes a default config granting admin to adminActor. An existing
// config is kept unless force is set.
func Init(root, adminActor string, force bool) (string, error) {
	if _, err := db.EnsureWorkspace(root); err != nil {
		return "", err
	}
	path := config.Path(root)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("config %s already exists; use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return path, err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault(adminActor)), 0o644); err != nil {
		return path, err
	}
	return path, nil
}

// Seed applies the config's workflows, roles, grants and models.
func Seed(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	sys := auth.System(SystemActor)
	for _, spec := range cfg.Schema.Workflows {
		if _, err := eng.PutWorkflow(ctx, sys, spec.ToWorkflow("")); err != nil {
			return fmt.Errorf("seed workflow %s: %w", spec.ID, err)
		}
	}
	roleIDs := make([]string, 0, len(cfg.RBAC.Roles))
	for id := range cfg.RBAC.Roles {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	for _, id := range roleIDs {
		role := cfg.RBAC.Roles[id]
		if err := eng.DefineRole(ctx, sys, id, role.Description, role.Permissions); err != nil {
			return fmt.Errorf("seed role %s: %w", id, err)
		}
	}
	for actorID, roles := range cfg.RBAC.Grants {
		for _, roleID := range roles {
			if err := eng.GrantRole(ctx, sys, actorID, roleID); err != nil {
				return fmt.Errorf("grant %s to %s: %w", roleID, actorID, err)
			}
		}
	}
	return ApplyModels(ctx, eng, sys, cfg.Schema.Models)
}

// ApplyModels creates or updates models from specs, in an order that puts
// relationship targets first where possible.
func ApplyModels(ctx context.Context, eng engine.Engine, actor auth.Actor, specs []config.ModelSpec) error {
	for _, spec := range orderSpecs(specs) {
		m := spec.ToModel()
		_, err := eng.Registry.GetModel(ctx, m.ID)
		switch {
		case err == nil:
			if _, err := eng.UpdateModel(ctx, actor, m); err != nil {
				return fmt.Errorf("update model %s: %w", m.ID, err)
			}
		case domain.IsKind(err, domain.KindNotFound):
			if _, err := eng.CreateModel(ctx, actor, m); err != nil {
				return fmt.Errorf("create model %s: %w", m.ID, err)
			}
		default:
			return err
		}
	}
	return nil
}

// orderSpecs sorts specs so a model comes after the models it references.
// Cycles keep their input order.
func orderSpecs(specs []config.ModelSpec) []config.ModelSpec {
	byID := map[string]config.ModelSpec{}
	for _, s := range specs {
		byID[s.ID] = s
	}
	var out []config.ModelSpec
	state := map[string]int{}
	var visit func(s config.ModelSpec)
	visit = func(s config.ModelSpec) {
		if state[s.ID] != 0 {
			return
		}
		state[s.ID] = 1
		for _, p := range s.Properties {
			if dep, ok := byID[p.RelatedModel]; ok && dep.ID != s.ID {
				visit(dep)
			}
		}
		state[s.ID] = 2
		out = append(out, s)
	}
	for _, s := range specs {
		visit(s)
	}
	return out
}
