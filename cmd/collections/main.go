/*
main.go - Application entry point

PURPOSE:
  The collections CLI. Serves the HTTP API and runs the same operations
  from a terminal for operators and cron jobs.

COMMANDS:
  serve                     HTTP API (+ optional assignment scheduler)
  seed <file.yml>           Apply a YAML seed document
  scenario [id]             List demo scenarios, or reset and load one
  suggest                   Get or generate today's suggested config
  approve <config-id>       Approve a suggestion
  save-config               Save explicit approved percentages
  assign                    Stratified run with an approved config
  assign-simple             Round-robin run over everyone on duty

CONFIGURATION:
  Flags > COLLECTIONS_* env > --config YAML > defaults.
  See config/config.go for keys.

OUTPUT:
  Tables by default, --json for machine-readable output.

GRACEFUL SHUTDOWN:
  serve stops on SIGINT/SIGTERM: stop the scheduler, drain requests
  (30s timeout), close the database.

EXAMPLES:
  collections serve --db=":memory:"
  collections seed ./demo.yml
  collections scenario missing-level --db demo.db
  collections suggest --scope bucket-a --actor-id lead-1
  collections approve 6f1c... --actor-id lead-1
  collections assign --scope bucket-a --config 6f1c...
  COLLECTIONS_ASSIGNMENT_SIMPLE_BATCH_SIZE=50 collections assign-simple

SEE ALSO:
  - api/server.go: Router configuration
  - collections/: Services
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/api"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/config"
	"github.com/warp/collections-engine/factory"
	"github.com/warp/collections-engine/store/sqlite"
)

var (
	v       *viper.Viper = config.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "collections",
	Short:         "Collections case assignment engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("db", "collections.db", "SQLite database path (\":memory:\" for in-memory)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = v.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = v.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(scenarioCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(saveConfigCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(assignSimpleCmd())
}

// app bundles the services built from one loaded config.
type app struct {
	cfg     *config.Config
	store   *sqlite.Store
	handler *api.Handler
}

func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	h := api.NewHandler(store)
	h.Assign.SimpleBatchSize = cfg.Assignment.SimpleBatchSize
	h.Roster.CutoffHour = cfg.Assignment.RosterCutoffHour

	return fn(ctx, &app{cfg: cfg, store: store, handler: h})
}

func actor() allocation.ActorID {
	return allocation.ActorID(v.GetString("actor-id"))
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return allocation.Today(), nil
	}
	return allocation.ParseDay(s)
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				router := api.NewRouter(a.handler, api.RouterOptions{
					AllowedOrigins: a.cfg.Server.AllowedOrigins,
					Auth: api.AuthConfig{
						JWTSecret:        a.cfg.Auth.JWTSecret,
						AllowActorHeader: a.cfg.Auth.AllowActorHeader,
					},
				})

				scheduler := api.NewAssignmentScheduler(a.store, a.handler.Assign)
				scheduler.Enabled = a.cfg.Scheduler.Enabled
				scheduler.CheckInterval = a.cfg.Scheduler.Interval
				for _, s := range a.cfg.Scheduler.Scopes {
					scheduler.Scopes = append(scheduler.Scopes, allocation.ScopeID(s))
				}
				scheduler.Start()
				defer scheduler.Stop()

				server := &http.Server{
					Addr:         a.cfg.Addr(),
					Handler:      router,
					ReadTimeout:  15 * time.Second,
					WriteTimeout: 60 * time.Second,
					IdleTimeout:  60 * time.Second,
				}

				go func() {
					<-ctx.Done()
					log.Println("Shutting down server...")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					if err := server.Shutdown(shutdownCtx); err != nil {
						log.Printf("Server forced to shutdown: %v", err)
					}
				}()

				log.Printf("Server starting on http://localhost%s (API at /api, metrics at /metrics)", a.cfg.Addr())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				log.Println("Server stopped")
				return nil
			})
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

// =============================================================================
// SEED
// =============================================================================

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yml>",
		Short: "Apply a YAML seed document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			seed, err := factory.ParseSeed(data)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := seed.Apply(ctx, a.store, actor(), time.Now().UTC())
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("seeded %d agents, %d level records, %d duty entries, %d cases\n",
					res.Agents, res.Levels, res.Duty, res.Cases)
				return nil
			})
		},
	}
}

func scenarioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario [id]",
		Short: "List demo scenarios, or wipe the database and load one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return printScenarios()
			}
			scenario, ok := factory.ScenarioByID(args[0])
			if !ok {
				return fmt.Errorf("unknown scenario %q (run `collections scenario` to list them)", args[0])
			}
			seed, err := scenario.Seed(allocation.Today())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if err := a.store.Reset(ctx); err != nil {
					return err
				}
				res, err := seed.Apply(ctx, a.store, actor(), time.Now().UTC())
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("loaded %s: %d agents, %d duty entries, %d cases in %s\n",
					scenario.ID, res.Agents, res.Duty, res.Cases, scenario.Scope)
				return nil
			})
		},
	}
}

// =============================================================================
// CONFIG LIFECYCLE
// =============================================================================

func suggestCmd() *cobra.Command {
	var scope, date, weightsFile string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Get or generate the suggested level config",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if weightsFile != "" {
					data, err := os.ReadFile(weightsFile)
					if err != nil {
						return err
					}
					seed, err := factory.ParseSeed(data)
					if err != nil {
						return err
					}
					a.handler.Configs.SetWeights(seed.WeightTable())
				}
				cfg, err := a.handler.Configs.GetOrGenerate(ctx, allocation.ScopeID(scope), day, actor())
				if err != nil {
					return err
				}
				return printConfig(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope (required)")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "YAML document with a weights block")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func approveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <config-id>",
		Short: "Approve a suggested level config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				cfg, err := a.handler.Configs.Approve(ctx, allocation.ConfigID(args[0]), actor())
				if err != nil {
					return err
				}
				return printConfig(cfg)
			})
		},
	}
}

func saveConfigCmd() *cobra.Command {
	var scope, date string
	pcts := make(map[allocation.Level]*string, len(allocation.Levels))
	cmd := &cobra.Command{
		Use:   "save-config",
		Short: "Save explicit approved percentages",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			split := make(allocation.Split, len(allocation.Levels))
			for _, l := range allocation.Levels {
				d, err := decimal.NewFromString(*pcts[l])
				if err != nil {
					return fmt.Errorf("--%s: %w", flagName(l), err)
				}
				split[l] = d
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				cfg, err := a.handler.Configs.Save(ctx, collections.SaveRequest{
					Scope:    allocation.ScopeID(scope),
					Date:     day,
					Split:    split,
					Approver: actor(),
				})
				if err != nil {
					return err
				}
				return printConfig(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope (required)")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	for _, l := range allocation.Levels {
		pcts[l] = cmd.Flags().String(flagName(l), "0", l.String()+" percentage")
	}
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func flagName(l allocation.Level) string {
	return strings.ReplaceAll(l.String(), "_", "-")
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

func assignCmd() *cobra.Command {
	var scope, date, configID string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Run stratified assignment with an approved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				result, err := a.handler.Assign.RunStratified(ctx, collections.StratifiedRequest{
					Scope:    allocation.ScopeID(scope),
					Date:     day,
					ConfigID: allocation.ConfigID(configID),
					Actor:    actor(),
				})
				if err != nil {
					return err
				}
				return printRun(result)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope (required)")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&configID, "config", "", "approved config id (required)")
	_ = cmd.MarkFlagRequired("scope")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func assignSimpleCmd() *cobra.Command {
	var scope, date string
	cmd := &cobra.Command{
		Use:   "assign-simple",
		Short: "Run round-robin assignment over everyone on duty",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				result, err := a.handler.Assign.RunSimple(ctx, collections.SimpleRequest{
					Date:  day,
					Scope: allocation.ScopeID(scope),
					Actor: actor(),
				})
				if err != nil {
					return err
				}
				return printRun(result)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope (default all)")
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	return cmd
}

// =============================================================================
// OUTPUT
// =============================================================================

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printScenarios() error {
	if v.GetBool("json") {
		return printJSON(factory.Scenarios)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Scope", "Description"})
	for _, sc := range factory.Scenarios {
		tw.AppendRow(table.Row{sc.ID, sc.Name, sc.Scope, sc.Description})
	}
	tw.Render()
	return nil
}

func printConfig(cfg *allocation.LevelConfig) error {
	if v.GetBool("json") {
		return printJSON(cfg)
	}
	fmt.Printf("config %s  scope=%s date=%s state=%s active=%t cases=%d\n",
		cfg.ID, cfg.Scope, allocation.FormatDay(cfg.Date), cfg.State, cfg.Active, cfg.CaseCount)

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Level", "Agents", "Percentage"})
	for _, l := range allocation.Levels {
		tw.AppendRow(table.Row{l.String(), cfg.AgentCounts[l], cfg.Split.Get(l).StringFixed(2)})
	}
	tw.AppendFooter(table.Row{"total", "", cfg.Split.Sum().StringFixed(2)})
	tw.Render()
	return nil
}

func printRun(r *collections.RunResult) error {
	if v.GetBool("json") {
		return printJSON(r)
	}
	fmt.Printf("run %s  mode=%s scope=%s date=%s assigned=%d leftover=%d unplaced=%d contended=%d\n",
		r.RunID, r.Mode, r.Scope, allocation.FormatDay(r.Date),
		r.TotalAssigned, r.LeftoverPlaced, len(r.Unplaced), len(r.Contended))

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Agent", "Name", "Level", "Cases", "DPD"})
	for _, s := range r.Agents {
		var parts []string
		for _, dpd := range s.SortedDPDs() {
			parts = append(parts, strconv.Itoa(dpd)+":"+strconv.Itoa(s.DPD[dpd]))
		}
		tw.AppendRow(table.Row{s.AgentID, s.Name, s.Level.String(), s.Total, strings.Join(parts, " ")})
	}
	tw.Render()

	if len(r.ExcludedAgents) > 0 {
		fmt.Printf("excluded (no level): %v\n", r.ExcludedAgents)
	}
	return nil
}

