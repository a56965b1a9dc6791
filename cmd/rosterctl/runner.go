package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/jefferyharrell/tagline-roster/internal/importer"
	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

// Runner holds all dependencies for CLI commands and provides methods for
// each command action.
type Runner struct {
	config *CtlConfig
	client *importer.Client
	logger *log.Logger
	output io.Writer
	input  io.Reader
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *CtlConfig
	Client *importer.Client
	Logger *log.Logger
	Output io.Writer
	Input  io.Reader
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = DefaultCtlConfig()
	}
	if opts.Client == nil {
		opts.Client = importer.NewClient(opts.Config.Server.URL, opts.Config.Server.Token)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config: opts.Config,
		client: opts.Client,
		logger: opts.Logger,
		output: opts.Output,
		input:  opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		previewCommand, importCommand, exportCommand, usersCommand, rolesCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// confirm prints the prompt and reads one line from input; only the exact
// answer "yes" proceeds.
func (r *Runner) confirm(prompt string) (bool, error) {
	if err := r.writePlain("%s ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(r.input).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}

// printPreview renders an import diff for terminal display.
func (r *Runner) printPreview(preview *roster.ImportPreview) error {
	if err := r.writePlain("To add:        %d\n", len(preview.ToAdd)); err != nil {
		return err
	}
	if err := r.writePlain("To update:     %d\n", len(preview.ToUpdate)); err != nil {
		return err
	}
	if err := r.writePlain("To deactivate: %d\n", len(preview.ToDeactivate)); err != nil {
		return err
	}

	printBucket := func(label string, changes []roster.UserChange) error {
		if len(changes) == 0 {
			return nil
		}
		if err := r.writePlain("\n%s:\n", label); err != nil {
			return err
		}
		for _, c := range changes {
			line := fmt.Sprintf("  %s  %s %s  [%s]", c.Email, c.Firstname, c.Lastname, strings.Join(c.Roles, ", "))
			if len(c.PreviousRoles) > 0 {
				line += fmt.Sprintf("  (was [%s])", strings.Join(c.PreviousRoles, ", "))
			}
			if err := r.writePlain("%s\n", line); err != nil {
				return err
			}
		}
		return nil
	}

	if err := printBucket("Add", preview.ToAdd); err != nil {
		return err
	}
	if err := printBucket("Update", preview.ToUpdate); err != nil {
		return err
	}
	if err := printBucket("Deactivate", preview.ToDeactivate); err != nil {
		return err
	}

	for _, role := range preview.InvalidRoles {
		if err := r.writePlain("\nunknown role: %s\n", role); err != nil {
			return err
		}
	}
	for _, msg := range preview.ValidationErrors {
		if err := r.writePlain("error: %s\n", msg); err != nil {
			return err
		}
	}

	return nil
}
