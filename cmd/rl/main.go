package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reviewline/internal/app"
	"reviewline/internal/config"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/lifecycle"
	"reviewline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Reviewline CLI",
	Long: `Reviewline manages solution review documents for systems.
Core concepts:
- Review document: one version of a system's solution review. It moves DRAFT -> SUBMITTED -> APPROVED -> ACTIVE -> OUTDATED.
- Exclusivity: a system has at most one review in DRAFT, SUBMITTED or APPROVED and at most one ACTIVE review.
- Activation: ACTIVATE makes an APPROVED review authoritative, labels it (v1.0.0, v1.0.1, ...) and outdates the previous one.
- Audit trail: every activation is pushed onto the system's trail; UNAPPROVE pops it and restores the previous version.
- Event log: diary of changes, view with 'rl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REVIEWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides reviewline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(transitionCmd())
	rootCmd.AddCommand(operationsCmd())
	rootCmd.AddCommand(trailCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Manage solution review documents"}
	rev.AddCommand(reviewCreateCmd())
	rev.AddCommand(reviewForkCmd())
	rev.AddCommand(reviewShowCmd())
	rev.AddCommand(reviewListCmd())
	rev.AddCommand(reviewUpdateCmd())
	rev.AddCommand(reviewDeleteCmd())
	return rev
}

func reviewCreateCmd() *cobra.Command {
	var id, system, payload, payloadFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a DRAFT review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if system == "" {
				return fmt.Errorf("--system required")
			}
			body, err := readPayload(payload, payloadFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.CreateDraft(ctx, engine.CreateOptions{
					ID:         id,
					SystemCode: system,
					Payload:    body,
					Actor:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printDocuments(doc)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "document id (generated when empty)")
	cmd.Flags().StringVar(&system, "system", "", "system code")
	cmd.Flags().StringVar(&payload, "payload", "", "review content as JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read review content from a JSON file")
	return cmd
}

func reviewForkCmd() *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "fork",
		Short: "Create a DRAFT from the system's ACTIVE review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if system == "" {
				return fmt.Errorf("--system required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.CreateFromActive(ctx, system, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printDocuments(doc)
			})
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system code")
	return cmd
}

func reviewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.GetDocument(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(doc)
			})
		},
	}
	return cmd
}

func reviewListCmd() *cobra.Command {
	var system, state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews of a system",
		RunE: func(cmd *cobra.Command, args []string) error {
			if system == "" {
				return fmt.Errorf("--system required")
			}
			var filter domain.DocumentState
			if state != "" {
				s, err := lifecycle.ParseState(state)
				if err != nil {
					return err
				}
				filter = s
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				docs, err := e.ListBySystem(ctx, system)
				if err != nil {
					return err
				}
				if filter != "" {
					kept := docs[:0]
					for _, d := range docs {
						if d.State == filter {
							kept = append(kept, d)
						}
					}
					docs = kept
				}
				return printDocuments(docs...)
			})
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system code")
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	return cmd
}

func reviewUpdateCmd() *cobra.Command {
	var payload, payloadFile string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the content of a DRAFT review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readPayload(payload, payloadFile)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.UpdateDraft(ctx, args[0], body, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printDocuments(doc)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "review content as JSON")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read review content from a JSON file")
	return cmd
}

func reviewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a DRAFT review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteDraft(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[0]})
				}
				fmt.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func transitionCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "transition <id> <operation>",
		Short: "Execute a lifecycle operation",
		Long:  "Operations: " + strings.Join(lifecycle.Names(lifecycle.Operations), ", ") + ". Names are case-insensitive.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ExecuteTransition(ctx, engine.TransitionRequest{
					DocumentID: args[0],
					Operation:  args[1],
					Actor:      viper.GetString("actor-id"),
					Comment:    comment,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%s: %s -> %s", res.Document.ID, res.From, res.Document.State)
				if res.Document.Version != "" {
					fmt.Printf(" (%s)", res.Document.Version)
				}
				fmt.Println()
				if res.Counterpart != nil {
					fmt.Printf("%s: now %s", res.Counterpart.ID, res.Counterpart.State)
					if res.Counterpart.Version != "" {
						fmt.Printf(" (%s)", res.Counterpart.Version)
					}
					fmt.Println()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "change description recorded on the trail")
	return cmd
}

func operationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operations <id>",
		Short: "List operations available on a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, ops, err := e.AvailableOperations(ctx, args[0])
				if err != nil {
					return err
				}
				names := lifecycle.Names(ops)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"documentId": doc.ID, "state": doc.State, "operations": names})
				}
				fmt.Printf("%s is %s\n", doc.ID, doc.State)
				if len(names) == 0 {
					fmt.Println("no operations available")
					return nil
				}
				fmt.Println("available:", strings.Join(names, ", "))
				return nil
			})
		},
	}
	return cmd
}

func trailCmd() *cobra.Command {
	tr := &cobra.Command{Use: "trail", Short: "Inspect a system's audit trail"}
	tr.AddCommand(trailShowCmd())
	tr.AddCommand(trailVerifyCmd())
	return tr
}

func trailShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <system>",
		Short: "Show the audit trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				head, nodes, err := e.TrailHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"head": head, "nodes": nodes})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Document", "Timestamp", "Description"})
				for _, n := range nodes {
					tw.AppendRow(table.Row{n.VersionLabel, n.ReviewDocumentID, n.Timestamp, n.ChangeDescription})
				}
				tw.AppendFooter(table.Row{"", "", "nodes", head.NodeCount})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func trailVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <system>",
		Short: "Check the audit trail links and counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			withErr := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				err = e.VerifyTrail(ctx, args[0])
				return nil
			})
			if withErr != nil {
				return withErr
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("trail OK")
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in reviewline.yml at the workspace root: server address and base path, logging, store busy timeout, metrics and lifecycle lock timeout. Defaults apply when the file is absent.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate reviewline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default reviewline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.DefaultYAML), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, system string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.RecentEvents(ctx, n, system, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "System", "Entity", "Actor", "Payload"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.SystemCode, ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&system, "system", "", "system code filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			metricsPath := ""
			if a.Config.Metrics.Enabled {
				metricsPath = a.Config.Metrics.Path
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, MetricsPath: metricsPath, Log: a.Log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			a.Log.Info().Str("addr", addr).Str("base_path", basePath).Str("metrics_path", metricsPath).Msg("serving reviewline API")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from reviewline.yml)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from reviewline.yml)")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
		LogOutput: os.Stderr,
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func readPayload(inline, file string) (json.RawMessage, error) {
	if inline != "" && file != "" {
		return nil, fmt.Errorf("use either --payload or --payload-file")
	}
	data := []byte(inline)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printDocuments(docs ...domain.ReviewDocument) error {
	if viper.GetBool("json") {
		if len(docs) == 1 {
			return printJSON(docs[0])
		}
		return printJSON(docs)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "System", "State", "Version", "Modified By", "Modified At"})
	for _, d := range docs {
		tw.AppendRow(table.Row{d.ID, d.SystemCode, d.State, d.Version, d.LastModifiedBy, d.LastModifiedAt})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
