package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"schemaline/internal/app"
	"schemaline/internal/config"
	"schemaline/internal/domain"
	"schemaline/internal/engine"
	"schemaline/internal/engine/auth"
	"schemaline/internal/server"
)

const secretKey = "SCHEMALINE_JWT_SECRET"

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Schemaline CLI",
	Long: `Schemaline stores objects whose shape is defined at runtime.
- Models: named sets of typed properties (string, number, relationship, ...).
- Objects: data maps validated against their model, optionally moved through a workflow.
- Changelog: every create, update and delete is recorded and can be fed to webhooks.
- RBAC: roles grant model:<action>:<model> permissions; owners keep access to their objects.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envPath := filepath.Join(viper.GetString("workspace"), ".env")
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envPath, err)
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SCHEMALINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); defaults to the config value")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(modelCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(objectCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(depsCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create schemaline.yml and the database in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			actorID := viper.GetString("actor-id")
			path, err := app.Init(workspace, actorID, force)
			if err != nil {
				return err
			}
			created, err := ensureSecret(filepath.Join(workspace, ".env"))
			if err != nil {
				return err
			}
			ws, err := app.Open(cmd.Context(), workspace, newLogger("", "text"))
			if err != nil {
				return err
			}
			defer ws.Close()
			fmt.Printf("Wrote %s; %s is admin\n", path, actorID)
			if created {
				fmt.Printf("Generated %s in %s/.env\n", secretKey, workspace)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func modelCmd() *cobra.Command {
	c := &cobra.Command{Use: "model", Short: "Manage models"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				models, err := e.ListModels(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(models)
				}
				tw := newTable("ID", "Name", "Namespace", "Properties", "Workflow")
				for _, m := range models {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Namespace, len(m.Properties), deref(m.WorkflowID)})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show <model-id>",
		Short: "Show a model definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				m, err := e.GetModel(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(m)
			})
		},
	})
	var file string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create or update models from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			specs, err := config.ParseModelSpecs(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				if err := app.ApplyModels(ctx, e, actor, specs); err != nil {
					return err
				}
				fmt.Printf("Applied %d model(s)\n", len(specs))
				return nil
			})
		},
	}
	apply.Flags().StringVarP(&file, "file", "f", "", "YAML file with a models list")
	_ = apply.MarkFlagRequired("file")
	c.AddCommand(apply)
	c.AddCommand(&cobra.Command{
		Use:   "delete <model-id>",
		Short: "Delete a model without objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.DeleteModel(ctx, actor, args[0])
			})
		},
	})
	return c
}

func workflowCmd() *cobra.Command {
	c := &cobra.Command{Use: "workflow", Short: "Inspect workflows"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workflows and their states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				ws, err := e.ListWorkflows(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ws)
				}
				tw := newTable("Workflow", "State", "Initial", "Successors")
				for _, w := range ws {
					for _, s := range w.States {
						tw.AppendRow(table.Row{w.ID, s.ID, s.IsInitial, strings.Join(s.SuccessorStateIDs, ", ")})
					}
				}
				tw.Render()
				return nil
			})
		},
	})
	return c
}

func objectCmd() *cobra.Command {
	c := &cobra.Command{Use: "object", Short: "Manage objects"}
	c.AddCommand(objectCreateCmd())
	c.AddCommand(objectUpdateCmd())
	c.AddCommand(objectShowCmd())
	c.AddCommand(objectListCmd())
	c.AddCommand(objectDeleteCmd())
	c.AddCommand(objectBatchDeleteCmd())
	c.AddCommand(objectConvertCmd())
	c.AddCommand(objectTransitionCmd())
	c.AddCommand(objectDisplayCmd())
	return c
}

func objectCreateCmd() *cobra.Command {
	var dataJSON string
	var sets []string
	cmd := &cobra.Command{
		Use:   "create <model-id>",
		Short: "Create an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := objectData(dataJSON, sets)
			if err != nil {
				return err
			}
			if data == nil {
				data = map[string]any{}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				obj, err := e.CreateObject(ctx, actor, args[0], data)
				if err != nil {
					return err
				}
				return printJSON(obj)
			})
		},
	}
	cmd.Flags().StringVar(&dataJSON, "data", "", "object data as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "property=value (value parsed as JSON when possible)")
	return cmd
}

func objectUpdateCmd() *cobra.Command {
	var dataJSON, state string
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <object-id>",
		Short: "Update object data or workflow state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := objectData(dataJSON, sets)
			if err != nil {
				return err
			}
			opts := engine.ObjectUpdateOptions{Data: data}
			if cmd.Flags().Changed("state") {
				opts.StateID = &state
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				if len(sets) > 0 && dataJSON == "" {
					// --set patches the current data instead of replacing it.
					current, err := e.GetObject(ctx, actor, args[0], false)
					if err != nil {
						return err
					}
					merged := make(map[string]any, len(current.Data)+len(data))
					for k, v := range current.Data {
						merged[k] = v
					}
					for k, v := range data {
						merged[k] = v
					}
					opts.Data = merged
				}
				obj, err := e.UpdateObject(ctx, actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(obj)
			})
		},
	}
	cmd.Flags().StringVar(&dataJSON, "data", "", "replacement data as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "property=value to change")
	cmd.Flags().StringVar(&state, "state", "", "target workflow state")
	return cmd
}

func objectShowCmd() *cobra.Command {
	var deleted bool
	cmd := &cobra.Command{
		Use:   "show <object-id>",
		Short: "Show an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				view, err := e.GetObject(ctx, actor, args[0], deleted)
				if err != nil {
					return err
				}
				return printJSON(view)
			})
		},
	}
	cmd.Flags().BoolVar(&deleted, "include-deleted", false, "show soft-deleted objects")
	return cmd
}

func objectListCmd() *cobra.Command {
	var modelID string
	var deleted bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				items, err := e.ListObjects(ctx, actor, engine.ListOptions{ModelID: modelID, IncludeDeleted: deleted, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Model", "Display", "State", "Owner", "Deleted", "Created")
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.ModelID, o.Display, deref(o.CurrentStateID), deref(o.OwnerID), o.IsDeleted, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&modelID, "model", "", "model id filter")
	cmd.Flags().BoolVar(&deleted, "include-deleted", false, "include soft-deleted objects")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of objects")
	return cmd
}

func objectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <object-id>",
		Short: "Soft-delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				res, err := e.SoftDeleteObject(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func objectBatchDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-delete <object-id>...",
		Short: "Soft-delete several objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				res, err := e.BatchSoftDelete(ctx, actor, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Deleted %d/%d\n", res.DeletedCount, res.Total)
				for _, id := range res.AlreadyDeleted {
					fmt.Printf("  %s already deleted\n", id)
				}
				for _, f := range res.Failed {
					fmt.Printf("  %s failed: %s\n", f.ObjectID, f.Message)
				}
				return nil
			})
		},
	}
}

func objectConvertCmd() *cobra.Command {
	var target string
	var mappings, defaults []string
	var deleteOriginal bool
	cmd := &cobra.Command{
		Use:   "convert <object-id>",
		Short: "Convert an object into a new object of another model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fieldMap := map[string]string{}
			for _, m := range mappings {
				k, v, ok := strings.Cut(m, "=")
				if !ok || k == "" || v == "" {
					return fmt.Errorf("invalid --map %q, want target=source", m)
				}
				fieldMap[k] = v
			}
			defs, err := parseAssignments(defaults)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				obj, err := e.ConvertObject(ctx, actor, engine.ConvertOptions{
					SourceID:       args[0],
					TargetModelID:  target,
					FieldMapping:   fieldMap,
					Defaults:       defs,
					DeleteOriginal: deleteOriginal,
				})
				if err != nil {
					return err
				}
				return printJSON(obj)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target model id")
	cmd.Flags().StringArrayVar(&mappings, "map", nil, "target=source property mapping")
	cmd.Flags().StringArrayVar(&defaults, "default", nil, "target=value used when the mapped value is empty")
	cmd.Flags().BoolVar(&deleteOriginal, "delete-original", false, "soft-delete the source object")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func objectTransitionCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "transition <object-id> [state-id]",
		Short: "Move an object to a workflow state, or list reachable states",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				if list || len(args) == 1 {
					states, err := e.AvailableTransitions(ctx, actor, args[0])
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(states)
					}
					for _, s := range states {
						fmt.Printf("%s\t%s\n", s.ID, s.Name)
					}
					return nil
				}
				obj, err := e.TransitionObject(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(obj)
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list reachable states")
	return cmd
}

func objectDisplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "display <object-id>...",
		Short: "Print display values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				values, err := e.DisplayValues(ctx, actor, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(values)
				}
				for _, id := range args {
					if v, ok := values[id]; ok {
						fmt.Printf("%s\t%s\n", id, v)
					}
				}
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	var after string
	var limit int
	cmd := &cobra.Command{
		Use:   "log [object-id]",
		Short: "Show the changelog of an object, or the global feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				var entries []domain.ChangelogEntry
				var err error
				if len(args) == 1 {
					entries, err = e.ObjectChangelog(ctx, actor, args[0])
				} else {
					if err := actor.RequireAdmin(); err != nil {
						return err
					}
					entries, err = e.ChangelogAfter(ctx, after, limit)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable("ID", "At", "Type", "Object", "Model", "By", "Changes")
				for _, en := range entries {
					tw.AppendRow(table.Row{en.ID, en.ChangedAt, en.ChangeType, en.DataObjectID, en.ModelID, deref(en.ChangedByUserID), string(en.Changes)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "feed cursor (entry id)")
	cmd.Flags().IntVar(&limit, "limit", 50, "feed page size")
	return cmd
}

func depsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <object-id>...",
		Short: "Show objects related to a batch of objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				edges, err := e.DependencyGraph(ctx, actor, args)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				tw := newTable("Object", "Direction", "Related", "Display", "Deleted", "Via")
				for _, edge := range edges {
					via := make([]string, 0, len(edge.Links))
					for _, l := range edge.Links {
						via = append(via, l.SourceObjectID+"."+l.PropertyName)
					}
					tw.AppendRow(table.Row{edge.ObjectID, edge.Direction, edge.RelatedObjectID, edge.RelatedDisplay, edge.RelatedDeleted, strings.Join(via, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func rbacCmd() *cobra.Command {
	c := &cobra.Command{Use: "rbac", Short: "Manage roles and grants"}
	var desc string
	var perms, removed []string
	define := &cobra.Command{
		Use:   "role <role-id>",
		Short: "Create a role, or add and remove its permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				if err := e.DefineRole(ctx, actor, args[0], desc, perms); err != nil {
					return err
				}
				for _, perm := range removed {
					if err := e.RemoveRolePermission(ctx, actor, args[0], perm); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	define.Flags().StringVar(&desc, "description", "", "role description")
	define.Flags().StringArrayVar(&perms, "perm", nil, "permission to add (repeatable)")
	define.Flags().StringArrayVar(&removed, "remove-perm", nil, "permission to remove (repeatable)")
	c.AddCommand(define)
	c.AddCommand(&cobra.Command{
		Use:   "grant <actor-id> <role-id>",
		Short: "Grant a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.GrantRole(ctx, actor, args[0], args[1])
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "revoke <actor-id> <role-id>",
		Short: "Revoke a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.RevokeRole(ctx, actor, args[0], args[1])
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "permissions [actor-id]",
		Short: "Show roles and permissions of an actor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				target := actor.ID
				if len(args) == 1 {
					target = args[0]
				}
				access, err := e.ActorAccess(ctx, target)
				if err != nil {
					return err
				}
				return printJSON(access)
			})
		},
	})
	return c
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var forActor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				key, plain, err := e.CreateAPIKey(ctx, actor, forActor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": plain})
				}
				fmt.Printf("Key %s for %s:\n%s\n", key.ID, key.ActorID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&forActor, "for", "", "actor owning the key (defaults to --actor-id)")
	create.Flags().StringVar(&name, "name", "", "key label")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				keys, err := e.ListAPIKeys(ctx, actor, actor.ID)
				if err != nil {
					return err
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "delete <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.DeleteAPIKey(ctx, actor, args[0])
			})
		},
	})
	return c
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	var perms []string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := server.SignToken(viper.GetString("jwt-secret"), viper.GetString("actor-id"), perms, ttl)
			if err != nil {
				return fmt.Errorf("%w (set %s)", err, secretKey)
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "embed permissions instead of resolving roles per request")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level, cfg.Log.Format)
			ws, err := app.Open(ctx, workspace, logger)
			if err != nil {
				return err
			}
			defer ws.Close()
			if addr == "" {
				addr = cfg.Server.Addr
			}
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: logger}
			if authCfg.JWTSecret == "" {
				logger.Warn("bearer auth disabled", "reason", secretKey+" not set")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: cfg.Server.BasePath,
				Auth:     authCfg,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ctx, ws.Engine, logger)
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", "addr", "http://"+addr+cfg.Server.BasePath, "docs", "/docs")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, auth.Actor) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	ws, err := app.Open(ctx, workspace, newLogger(cfg.Log.Level, cfg.Log.Format))
	if err != nil {
		return err
	}
	defer ws.Close()
	actor, err := ws.Engine.ActorFor(ctx, viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	return fn(ctx, ws.Engine, actor)
}

func newLogger(level, format string) *slog.Logger {
	if flag := viper.GetString("log-level"); flag != "" {
		level = flag
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ensureSecret adds a random JWT secret to the .env file when it has none.
func ensureSecret(path string) (bool, error) {
	env, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if env == nil {
		env = map[string]string{}
	}
	if env[secretKey] != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, err
	}
	env[secretKey] = hex.EncodeToString(buf)
	if err := godotenv.Write(env, path); err != nil {
		return false, err
	}
	return true, nil
}

func objectData(raw string, sets []string) (map[string]any, error) {
	var data map[string]any
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
	}
	extra, err := parseAssignments(sets)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 && data == nil {
		data = map[string]any{}
	}
	for k, v := range extra {
		data[k] = v
	}
	return data, nil
}

func parseAssignments(items []string) (map[string]any, error) {
	out := map[string]any{}
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid assignment %q, want name=value", item)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		out[strings.TrimSpace(k)] = parsed
	}
	return out, nil
}

func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	tw.AppendHeader(row)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
