// Package cli implements the workflowctl command line: offline validation of
// workflow files plus administrative commands against the service database.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/admissions-workflow/internal/application/service"
	"github.com/garyjia/admissions-workflow/internal/config"
	"github.com/garyjia/admissions-workflow/internal/container"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
	"github.com/garyjia/admissions-workflow/pkg/database"
	"github.com/garyjia/admissions-workflow/pkg/utils"
)

// ErrInvalidWorkflow is returned by validate when a file has errors
var ErrInvalidWorkflow = errors.New("workflow file is invalid")

// NewRootCommand builds the workflowctl command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "workflowctl",
		Short:         "Manage admissions workflow definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "configs/config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for database commands")

	SetupCLI(rootCmd)
	return rootCmd
}

// SetupCLI registers every subcommand on rootCmd
func SetupCLI(rootCmd *cobra.Command) {
	validateCmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate workflow YAML files without touching the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args)
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Define a workflow from a YAML file, or replace it with --id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cmd.Flags().GetString("id")
			if err != nil {
				return err
			}
			sub, err := LoadSubmissionFile(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc service.WorkflowService) error {
				return applyWorkflow(ctx, cmd.OutOrStdout(), svc, id, sub)
			})
		},
	}
	applyCmd.Flags().String("id", "", "id of the workflow to update")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc service.WorkflowService) error {
				return listWorkflows(ctx, cmd.OutOrStdout(), svc, !all)
			})
		},
	}
	listCmd.Flags().Bool("all", false, "include deactivated workflows")

	deactivateCmd := &cobra.Command{
		Use:   "deactivate [workflow-id]",
		Short: "Stop new applications from starting on a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc service.WorkflowService) error {
				def, err := svc.DeactivateWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated workflow '%s' (%s)\n", def.Name, def.ID)
				return nil
			})
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history [application-id]",
		Short: "Print an application's status history, or export it with --xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("xlsx")
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc service.WorkflowService) error {
				if out != "" {
					return exportHistory(ctx, cmd.OutOrStdout(), svc, args[0], out)
				}
				return printHistory(ctx, cmd.OutOrStdout(), svc, args[0])
			})
		},
	}
	historyCmd.Flags().String("xlsx", "", "write the history to this .xlsx file")

	migrateCmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			return runMigrate(cmd, direction)
		},
	}

	rootCmd.AddCommand(validateCmd, applyCmd, listCmd, deactivateCmd, historyCmd, migrateCmd)
}

func runValidate(out io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		sub, err := LoadSubmissionFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}

		result := CheckSubmission(sub, uuid.NewString)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "%s: warning %s %s: %s\n", path, w.Code, w.Path, w.Message)
		}
		if !result.OK() {
			for _, e := range result.Errors {
				fmt.Fprintf(out, "%s: error %s %s: %s\n", path, e.Code, e.Path, e.Message)
			}
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok (%d stages, %d transitions)\n", path, len(sub.Stages), len(sub.Transitions))
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files failed", ErrInvalidWorkflow, failed, len(paths))
	}
	return nil
}

func applyWorkflow(ctx context.Context, out io.Writer, svc service.WorkflowService, id string, sub workflow.Submission) error {
	var (
		res *service.DefineResult
		err error
	)
	if id == "" {
		res, err = svc.DefineWorkflow(ctx, sub)
	} else {
		res, err = svc.UpdateWorkflow(ctx, id, sub)
	}

	var vErr *workflow.ValidationFailedError
	if errors.As(err, &vErr) {
		for _, e := range vErr.Errors {
			fmt.Fprintf(out, "error %s %s: %s\n", e.Code, e.Path, e.Message)
		}
		return fmt.Errorf("%w: %d errors", ErrInvalidWorkflow, len(vErr.Errors))
	}
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning %s %s: %s\n", w.Code, w.Path, w.Message)
	}
	verb := "Created"
	if id != "" {
		verb = "Updated"
	}
	fmt.Fprintf(out, "%s workflow '%s' with ID %s (version %d)\n", verb, res.Definition.Name, res.Definition.ID, res.Definition.Version)
	return nil
}

func listWorkflows(ctx context.Context, out io.Writer, svc service.WorkflowService, activeOnly bool) error {
	defs, err := svc.ListWorkflows(ctx, activeOnly)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Fprintln(out, "No workflows found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tVERSION\tACTIVE\tSTAGES\tUPDATED")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\t%d\t%s\n",
			d.ID, d.Name, d.ApplicationType, d.Version, d.IsActive, len(d.Stages), d.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func printHistory(ctx context.Context, out io.Writer, svc service.WorkflowService, applicationID string) error {
	history, err := svc.GetHistory(ctx, applicationID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTAGE\tENTERED AT\tBY\tTRANSITION\tNOTE")
	for _, e := range history {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Position, e.StageID, e.EnteredAt.Format(time.RFC3339), e.EnteredBy, e.TransitionID, e.Note)
	}
	return tw.Flush()
}

func exportHistory(ctx context.Context, out io.Writer, svc service.WorkflowService, applicationID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := svc.ExportHistory(ctx, applicationID, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	fmt.Fprintf(out, "Exported history of %s to %s\n", applicationID, path)
	return nil
}

func runMigrate(cmd *cobra.Command, direction string) error {
	cfg, logger, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.New(database.Config{Path: cfg.Database.Path}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	switch strings.ToLower(direction) {
	case "up":
		err = database.Migrate(db, logger)
	case "down":
		err = database.Rollback(db, logger)
	default:
		return fmt.Errorf("unknown migrate direction %q, want up or down", direction)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s applied to %s\n", direction, cfg.Database.Path)
	return nil
}

// withService starts a container without background workers, runs fn and
// shuts the container down again.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc service.WorkflowService) error) error {
	cfg, logger, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ccfg := cfg.ToContainerConfig()
	ccfg.Workflow.SweepEnabled = false

	c, err := container.NewContainer(ccfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(cmd.Context()); err != nil {
		_ = c.Close()
		return err
	}

	runErr := fn(cmd.Context(), c.Services().Workflow)
	if err := c.Close(); err != nil {
		logger.Warn("Container closed with errors", zap.Error(err))
	}
	return runErr
}

func loadEnvironment(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: "stderr",
		Format:     "console",
		Service:    "workflowctl",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
