package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stratline/internal/app"
	"stratline/internal/config"
	"stratline/internal/db"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/migrate"
	"stratline/internal/repo"
	"stratline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "strat",
	Short: "Stratline CLI",
	Long: `Stratline tracks strategic plans and rolls activity progress up the hierarchy.
Core concepts:
- Workspace: your .stratline directory holding the database; configs live in the DB and are imported explicitly.
- Plan: the strategic plan that owns pillars, objectives, initiatives and activities.
- Hierarchy: plan -> pillar -> objective -> initiative -> activity; every non-leaf progress figure is a weighted average of its children.
- Activities: the leaves where real progress is recorded. Progress changes go through submit -> approve/decline; the recorded figure only moves on approval.
- Rules: ordered classification rules that map a progress figure (or an overdue deadline) to a status label like On Track or Delayed.
- Report: a read-time snapshot of the whole tree with derived progress and classified statuses ('strat report').
- Event log: diary of changes, view with 'strat log tail'.`,
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
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STRATLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("plan", "", "plan id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("plan", rootCmd.PersistentFlags().Lookup("plan"))
}

func registerCommands() {
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(pillarCmd())
	rootCmd.AddCommand(objectiveCmd())
	rootCmd.AddCommand(initiativeCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- plan ---

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage plans"}
	plan.AddCommand(planListCmd())
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planShowCmd())
	plan.AddCommand(planUpdateCmd())
	plan.AddCommand(planDeleteCmd())
	plan.AddCommand(planConfigCmd())
	plan.AddCommand(planUseCmd())
	return plan
}

func planListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPlans(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Start", "End"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.StartDate, p.EndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func planCreateCmd() *cobra.Command {
	var id, title, desc, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan with its default config and seed rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, config.Default(id))
			p, err := e.InitPlan(cmd.Context(), id, title, desc, startDate, endDate, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "plan id (optional, random UUID if omitted)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func planShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetPlan(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func planUpdateCmd() *cobra.Command {
	var title, desc, startDate, endDate, status string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePlan(ctx, e.Config.Plan.ID,
					changedString(cmd, "title", &title),
					changedString(cmd, "description", &desc),
					changedString(cmd, "start-date", &startDate),
					changedString(cmd, "end-date", &endDate),
					changedString(cmd, "status", &status),
					viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "status (active, archived)")
	return cmd
}

func planDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a plan and everything under it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePlan(ctx, e.Config.Plan.ID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func planUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set current plan for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			planID := strings.TrimSpace(args[0])
			if planID == "" {
				return fmt.Errorf("plan id is required")
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "STRATLINE_PLAN", planID); err != nil {
				return err
			}
			fmt.Printf("Set STRATLINE_PLAN=%s in %s/.env\n", planID, workspace)
			return nil
		},
	}
	return cmd
}

func planConfigCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage plan config",
	}
	cfg.AddCommand(planConfigShowCmd())
	cfg.AddCommand(planConfigImportCmd())
	cfg.AddCommand(planConfigInitCmd())
	return cfg
}

func planConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show plan config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func planConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import plan config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			planID := cfg.Plan.ID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if planID == "" {
					planID = e.Config.Plan.ID
				}
				if err := e.Repo.UpsertPlanConfig(ctx, planID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func planConfigInitCmd() *cobra.Command {
	var planID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print default config YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if planID == "" {
				planID = viper.GetString("plan")
			}
			if planID == "" {
				planID = "my-plan"
			}
			fmt.Print(config.GenerateDefault(planID))
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan-id", "", "plan id to embed")
	return cmd
}

// --- hierarchy ---

func pillarCmd() *cobra.Command {
	pillar := &cobra.Command{
		Use:   "pillar",
		Short: "Manage pillars",
		Long:  "Pillars are the top level under a plan. They carry no weight of their own: plan progress is the plain average of pillar progress.",
	}
	pillar.AddCommand(pillarAddCmd())
	pillar.AddCommand(pillarListCmd())
	pillar.AddCommand(pillarUpdateCmd())
	pillar.AddCommand(pillarRemoveCmd())
	return pillar
}

func pillarAddCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a pillar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddPillar(ctx, e.Config.Plan.ID, title, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func pillarListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pillars",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListPillars(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Position"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Position})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func pillarUpdateCmd() *cobra.Command {
	var title string
	var position int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a pillar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePillar(ctx, args[0],
					changedString(cmd, "title", &title),
					changedInt(cmd, "position", &position),
					viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().IntVar(&position, "position", 0, "position among siblings")
	return cmd
}

func pillarRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a pillar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePillar(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func objectiveCmd() *cobra.Command {
	objective := &cobra.Command{
		Use:   "objective",
		Short: "Manage objectives",
		Long:  "Objectives sit under a pillar and carry a weight. Pillar progress is the weighted average of its objectives.",
	}
	objective.AddCommand(objectiveAddCmd())
	objective.AddCommand(objectiveListCmd())
	objective.AddCommand(objectiveUpdateCmd())
	objective.AddCommand(objectiveRemoveCmd())
	return objective
}

func objectiveAddCmd() *cobra.Command {
	var pillarID, title string
	var weight float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an objective",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.AddObjective(ctx, e.Config.Plan.ID, pillarID, title, weight, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&pillarID, "pillar", "", "pillar id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&weight, "weight", 1, "weight")
	_ = cmd.MarkFlagRequired("pillar")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func objectiveListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List objectives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListObjectives(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Pillar", "Title", "Weight", "Position"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.PillarID, o.Title, o.Weight, o.Position})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func objectiveUpdateCmd() *cobra.Command {
	var title string
	var weight float64
	var position int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.UpdateObjective(ctx, args[0],
					changedString(cmd, "title", &title),
					changedFloat(cmd, "weight", &weight),
					changedInt(cmd, "position", &position),
					viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight")
	cmd.Flags().IntVar(&position, "position", 0, "position among siblings")
	return cmd
}

func objectiveRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteObjective(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func initiativeCmd() *cobra.Command {
	initiative := &cobra.Command{
		Use:   "initiative",
		Short: "Manage initiatives",
		Long:  "Initiatives sit under an objective and carry a weight. Initiative progress is the weighted average of its activities.",
	}
	initiative.AddCommand(initiativeAddCmd())
	initiative.AddCommand(initiativeListCmd())
	initiative.AddCommand(initiativeUpdateCmd())
	initiative.AddCommand(initiativeRemoveCmd())
	return initiative
}

func initiativeAddCmd() *cobra.Command {
	var objectiveID, title string
	var weight float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an initiative",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				i, err := e.AddInitiative(ctx, e.Config.Plan.ID, objectiveID, title, weight, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&objectiveID, "objective", "", "objective id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&weight, "weight", 1, "weight")
	_ = cmd.MarkFlagRequired("objective")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func initiativeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List initiatives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInitiatives(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Objective", "Title", "Weight", "Position"})
				for _, i := range items {
					tw.AppendRow(table.Row{i.ID, i.ObjectiveID, i.Title, i.Weight, i.Position})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func initiativeUpdateCmd() *cobra.Command {
	var title string
	var weight float64
	var position int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an initiative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				i, err := e.UpdateInitiative(ctx, args[0],
					changedString(cmd, "title", &title),
					changedFloat(cmd, "weight", &weight),
					changedInt(cmd, "position", &position),
					viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight")
	cmd.Flags().IntVar(&position, "position", 0, "position among siblings")
	return cmd
}

func initiativeRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an initiative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteInitiative(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- activity ---

func activityCmd() *cobra.Command {
	activity := &cobra.Command{
		Use:   "activity",
		Short: "Manage activities",
		Long:  "Activities hold the recorded progress. Changing that figure goes through 'strat activity submit' and waits for 'strat activity approve' (or decline). Standalone activities have no initiative and stay out of the rollup.",
	}
	activity.AddCommand(activityCreateCmd())
	activity.AddCommand(activityListCmd())
	activity.AddCommand(activityGetCmd())
	activity.AddCommand(activityEditCmd())
	activity.AddCommand(activityRemoveCmd())
	activity.AddCommand(activitySubmitCmd())
	activity.AddCommand(activityApproveCmd())
	activity.AddCommand(activityDeclineCmd())
	activity.AddCommand(activityHistoryCmd())
	return activity
}

func activityCreateCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.PlanID == "" {
					opts.PlanID = e.Config.Plan.ID
				}
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "activity id (optional, deterministic UUID if omitted)")
	cmd.Flags().StringVar(&opts.PlanID, "plan-id", "", "plan id")
	cmd.Flags().StringVar(&opts.InitiativeID, "initiative", "", "initiative id (omit for a standalone activity)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().Float64Var(&opts.Weight, "weight", 1, "weight")
	cmd.Flags().StringVar(&opts.StartDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.EndDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ResponsibleID, "responsible-id", "", "responsible user id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func activityListCmd() *cobra.Command {
	var f repo.ActivityFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.PlanID == "" {
					f.PlanID = e.Config.Plan.ID
				}
				items, err := e.Repo.ListActivities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Initiative", "Progress", "Status", "Approval"})
				for _, a := range items {
					initiative := ""
					if a.InitiativeID != nil {
						initiative = *a.InitiativeID
					}
					tw.AppendRow(table.Row{a.ID, a.Title, initiative, a.Progress, a.Status, a.ApprovalStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.PlanID, "plan-id", "", "plan id")
	cmd.Flags().StringVar(&f.InitiativeID, "initiative", "", "initiative filter")
	cmd.Flags().BoolVar(&f.Standalone, "standalone", false, "only standalone activities")
	cmd.Flags().StringVar(&f.ApprovalStatus, "approval", "", "approval status filter (pending, approved, declined)")
	cmd.Flags().StringVar(&f.ResponsibleID, "responsible-id", "", "responsible filter")
	return cmd
}

func activityGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func activityEditCmd() *cobra.Command {
	var title, startDate, endDate, responsibleID, initiativeID string
	var weight float64
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit descriptive fields of an activity",
		Long:  "Edits titles, dates, weight and assignment. Progress is not editable here; use 'strat activity submit'.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ActivityEditOptions{
				ID:            args[0],
				Title:         changedString(cmd, "title", &title),
				Weight:        changedFloat(cmd, "weight", &weight),
				StartDate:     changedString(cmd, "start-date", &startDate),
				EndDate:       changedString(cmd, "end-date", &endDate),
				ResponsibleID: changedString(cmd, "responsible-id", &responsibleID),
				InitiativeID:  changedString(cmd, "initiative", &initiativeID),
				ActorID:       viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.EditActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&responsibleID, "responsible-id", "", "responsible user id (empty clears)")
	cmd.Flags().StringVar(&initiativeID, "initiative", "", "initiative id (empty detaches)")
	return cmd
}

func activityRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteActivity(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func activitySubmitCmd() *cobra.Command {
	var progress float64
	var comment string
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a progress update for approval",
		Long:  "Records a proposed progress figure with a comment. The activity's recorded progress does not change until an approver accepts it. A newer submission supersedes any earlier pending one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SubmitUpdate(ctx, args[0], progress, comment, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().Float64Var(&progress, "progress", 0, "proposed progress (0-100)")
	cmd.Flags().StringVar(&comment, "comment", "", "comment explaining the update")
	_ = cmd.MarkFlagRequired("progress")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func activityApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve the pending update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ApproveUpdate(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func activityDeclineCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "decline <id>",
		Short: "Decline the pending update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DeclineUpdate(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for declining")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func activityHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the activity's update trail, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.UpdateHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Created", "User", "Progress", "Status", "State", "Comment"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.CreatedAt, u.UserID, u.Progress, u.Status, u.ApprovalState, u.Comment})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- rules ---

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{
		Use:   "rule",
		Short: "Manage status rules",
		Long:  "Rules classify a progress figure into a status label. Conditional rules (overdue) win first, then an exact-zero rule, then ranges in ascending order. System rules cannot be edited or removed.",
	}
	rule.AddCommand(ruleListCmd())
	rule.AddCommand(ruleAddCmd())
	rule.AddCommand(ruleUpdateCmd())
	rule.AddCommand(ruleRemoveCmd())
	rule.AddCommand(ruleMoveCmd())
	return rule
}

func ruleListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRules(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Pos", "Status", "Min", "Max", "Unbounded", "Condition", "System", "ID"})
				for _, ru := range items {
					tw.AppendRow(table.Row{ru.Position, ru.Status, ru.Min, ru.Max, ru.Unbounded, ru.Condition, ru.IsSystem, ru.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ruleAddCmd() *cobra.Command {
	var ru domain.Rule
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a custom rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateRule(ctx, e.Config.Plan.ID, ru, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&ru.ID, "id", "", "rule id (optional)")
	cmd.Flags().StringVar(&ru.Status, "status", "", "status label")
	cmd.Flags().StringVar(&ru.Description, "description", "", "description")
	cmd.Flags().Float64Var(&ru.Min, "min", 0, "range lower bound")
	cmd.Flags().Float64Var(&ru.Max, "max", 0, "range upper bound")
	cmd.Flags().BoolVar(&ru.Unbounded, "unbounded", false, "no upper bound")
	cmd.Flags().StringVar(&ru.Condition, "condition", "", "named condition (overdue)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func ruleUpdateCmd() *cobra.Command {
	var status, desc, condition string
	var min, max float64
	var unbounded bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a custom rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.RuleUpdateOptions{
				ID:          args[0],
				Status:      changedString(cmd, "status", &status),
				Description: changedString(cmd, "description", &desc),
				Min:         changedFloat(cmd, "min", &min),
				Max:         changedFloat(cmd, "max", &max),
				Unbounded:   changedBool(cmd, "unbounded", &unbounded),
				Condition:   changedString(cmd, "condition", &condition),
				ActorID:     viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ru, err := e.UpdateRule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ru)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status label")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().Float64Var(&min, "min", 0, "range lower bound")
	cmd.Flags().Float64Var(&max, "max", 0, "range upper bound")
	cmd.Flags().BoolVar(&unbounded, "unbounded", false, "no upper bound")
	cmd.Flags().StringVar(&condition, "condition", "", "named condition (overdue)")
	return cmd
}

func ruleRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a custom rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRule(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func ruleMoveCmd() *cobra.Command {
	var position int
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a rule to a new position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.MoveRule(ctx, args[0], position, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&position, "position", 1, "target position (1-based)")
	_ = cmd.MarkFlagRequired("position")
	return cmd
}

// --- report ---

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the rolled-up plan report",
		Long:  "Renders the full hierarchy with derived progress per level and the classified status of every activity.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.PlanReport(ctx, e.Config.Plan.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("Plan: %s (%d%%)\n", rep.Plan.Title, rep.Progress)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Title", "Kind", "Weight", "Progress", "Status"})
				for _, n := range rep.Nodes {
					if n.Kind == "plan" {
						continue
					}
					indent := strings.Repeat("  ", n.Depth-1)
					tw.AppendRow(table.Row{n.Code, indent + n.Title, n.Kind, n.Weight, fmt.Sprintf("%d%%", n.Progress), n.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- users / api keys ---

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userRoleCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, id, name, role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "contributor", "role (administrator, approver, contributor)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userRoleCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "role <id>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetUserRole(ctx, args[0], role, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role (administrator, approver, contributor)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, raw, err := e.CreateAPIKey(ctx, userID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				out := map[string]any{
					"id":      k.ID,
					"user_id": k.UserID,
					"name":    k.Name,
					"key":     raw,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("API key %s created for %s\n", k.ID, k.UserID)
				fmt.Printf("Secret (store it now, it is not retrievable): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- log / serve ---

func logCmd() *cobra.Command {
	logC := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logC.AddCommand(logTailCmd())
	return logC
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Plan.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolvePlanAndConfig(cmd.Context(), viper.GetString("plan"), viper.GetString("actor-id"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("STRATLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("STRATLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Stratline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolvePlanAndConfig(ctx, viper.GetString("plan"), viper.GetString("actor-id"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	return fn(ctx, r)
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

func changedString(cmd *cobra.Command, name string, v *string) *string {
	if cmd.Flags().Changed(name) {
		return v
	}
	return nil
}

func changedFloat(cmd *cobra.Command, name string, v *float64) *float64 {
	if cmd.Flags().Changed(name) {
		return v
	}
	return nil
}

func changedInt(cmd *cobra.Command, name string, v *int) *int {
	if cmd.Flags().Changed(name) {
		return v
	}
	return nil
}

func changedBool(cmd *cobra.Command, name string, v *bool) *bool {
	if cmd.Flags().Changed(name) {
		return v
	}
	return nil
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
