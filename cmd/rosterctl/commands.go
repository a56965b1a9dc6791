package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jefferyharrell/tagline-roster/internal/importer"
	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

func previewCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "preview",
		Usage:     "Parse a roster file and show the import diff without committing",
		ArgsUsage: "<file.csv|file.tsv>",
		Action:    r.Preview,
	}
}

func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace the entire roster with the contents of a file",
		ArgsUsage: "<file.csv|file.tsv>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: r.Import,
	}
}

func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Download the active roster",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv or tsv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
		},
		Action: r.Export,
	}
}

func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "users",
		Usage:  "List the current roster as JSON",
		Action: r.Users,
	}
}

func rolesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "roles",
		Usage:  "List the role names the server accepts",
		Action: r.Roles,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent import events",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of events to show",
				Value: 20,
			},
		},
		Action: r.History,
	}
}

// Preview parses the file locally and fetches the diff.
func (r *Runner) Preview(ctx context.Context, cmd *cli.Command) error {
	records, err := r.parseFile(cmd.Args().First())
	if err != nil {
		return err
	}

	preview, err := r.client.Preview(ctx, records)
	if err != nil {
		return describeAPIError(err)
	}

	if err := r.printPreview(preview); err != nil {
		return err
	}
	if preview.Blocked() {
		return errors.New("preview has validation problems and cannot be committed")
	}
	return nil
}

// Import runs the full workflow: parse, preview, confirm, commit.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("no file provided")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	w := importer.NewWorkflow(r.client)
	if err := w.SelectFile(ctx, path, data); err != nil {
		return describeAPIError(err)
	}

	if errs := w.ParseErrors(); len(errs) > 0 {
		for _, e := range errs {
			r.logger.Error(e)
		}
		return fmt.Errorf("%d row error(s); fix the file and retry", len(errs))
	}

	preview := w.Preview()
	if err := r.printPreview(preview); err != nil {
		return err
	}
	if preview.Blocked() {
		return errors.New("preview has validation problems and cannot be committed")
	}
	if preview.Empty() {
		r.logger.Info("roster already matches the file, nothing to do")
		return nil
	}

	if !cmd.Bool("yes") {
		if err := r.writePlain("\n%s\n\n", importer.ConfirmWarning); err != nil {
			return err
		}
		ok, err := r.confirm("Type 'yes' to continue:")
		if err != nil {
			return err
		}
		if !ok {
			r.logger.Info("import cancelled")
			return nil
		}
	}

	summary, err := w.Confirm(ctx)
	if err != nil {
		return describeAPIError(err)
	}

	r.logger.Info("import committed",
		"added", summary.UsersAdded,
		"updated", summary.UsersUpdated,
		"deactivated", summary.UsersDeactivated,
	)
	for _, warning := range summary.Warnings {
		r.logger.Warn(warning)
	}
	return nil
}

// Export downloads the roster and writes it to a file or stdout.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if format == "" {
		format = r.config.Import.Format
	}
	if format == "" {
		format = "csv"
	}

	data, err := r.client.Export(ctx, format)
	if err != nil {
		return describeAPIError(err)
	}

	if path := cmd.String("output"); path != "" {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		r.logger.Info("roster exported", "file", path, "bytes", len(data))
		return nil
	}

	_, err = r.output.Write(data)
	return err
}

// Users prints the roster as JSON.
func (r *Runner) Users(ctx context.Context, cmd *cli.Command) error {
	users, err := r.client.Users(ctx)
	if err != nil {
		return describeAPIError(err)
	}
	return r.writeJSON(users)
}

// Roles prints the role names accepted in role columns, one per line.
func (r *Runner) Roles(ctx context.Context, cmd *cli.Command) error {
	roles, err := r.client.Roles(ctx)
	if err != nil {
		return describeAPIError(err)
	}

	for _, role := range roles {
		if err := r.writePlain("%s\n", role); err != nil {
			return err
		}
	}
	return nil
}

// History prints recent import events.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	events, err := r.client.Imports(ctx, int(cmd.Int("limit")))
	if err != nil {
		return describeAPIError(err)
	}

	for _, e := range events {
		if err := r.writePlain("%s  %-30s  +%d ~%d -%d  (%dms)\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Actor, e.UsersAdded, e.UsersUpdated, e.UsersDeactivated, e.DurationMs,
		); err != nil {
			return err
		}
	}
	return nil
}

// parseFile reads and parses a roster file, reporting row errors on the
// logger before failing.
func (r *Runner) parseFile(path string) ([]roster.UserRecord, error) {
	if path == "" {
		return nil, errors.New("no file provided")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	result := roster.Parse(data, path)
	if !result.Ok() {
		for _, e := range result.Errors {
			r.logger.Error(e)
		}
		return nil, fmt.Errorf("%d row error(s); fix the file and retry", len(result.Errors))
	}
	return result.Data, nil
}

// describeAPIError unwraps normalized API errors into readable CLI output.
func describeAPIError(err error) error {
	var apiErr *importer.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Kind {
	case importer.ErrorMessage:
		return fmt.Errorf("server error (%d): %s", apiErr.Status, apiErr.Message)
	case importer.ErrorFields:
		lines := "server rejected the roster:"
		for _, fe := range apiErr.FieldErrors {
			lines += "\n  " + fe
		}
		return errors.New(lines)
	default:
		return fmt.Errorf("server returned an unexpected %d response", apiErr.Status)
	}
}
