package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loopexit/internal/analysis"
)

// ValidationResult summarizes a valid program model.
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	Hash    string          `json:"hash"`
	Modules []ModuleSummary `json:"modules"`
}

// ModuleSummary describes one module of a program model.
type ModuleSummary struct {
	Name  string `json:"name"`
	Base  string `json:"base"`
	Size  uint64 `json:"size"`
	Loops int    `json:"loops"`
	Exits int    `json:"exits"`
}

// ValidationFailure locates a program model error.
type ValidationFailure struct {
	Field  string `json:"field"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Program valid (%d module(s), hash %s)\n", len(r.Modules), r.Hash)
	for _, m := range r.Modules {
		fmt.Fprintf(w, "  %-16s base=%s size=%#x loops=%d exits=%d\n", m.Name, m.Base, m.Size, m.Loops, m.Exits)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program-dir>",
		Short: "Validate a CUE program model",
		Long: `Compile the CUE program model in a directory and check it.

A program model declares the loaded modules with their base address and
size, and each module's loops with header, body ranges and exits.
Errors are reported with their CUE position.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	program, err := analysis.LoadDir(dir)
	if err != nil {
		var cerr *analysis.CompileError
		if errors.As(err, &cerr) {
			failure := ValidationFailure{Field: cerr.Field}
			if cerr.Pos.IsValid() {
				failure.File = cerr.Pos.Filename()
				failure.Line = cerr.Pos.Line()
				failure.Column = cerr.Pos.Column()
			}
			_ = formatter.Error(ErrCodeCompile, cerr.Error(), failure)
			return WrapExitError(ExitFailure, "program model invalid", err)
		}
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load program", err)
	}

	hash, err := program.Hash()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash program", err)
	}

	result := ValidationResult{Valid: true, Hash: hash, Modules: []ModuleSummary{}}
	for _, m := range program.Modules() {
		formatter.VerboseLog("Validated module: %s", m.Name)
		summary := ModuleSummary{
			Name:  m.Name,
			Base:  fmt.Sprintf("%#x", m.Base),
			Size:  m.Size,
			Loops: len(m.Loops),
		}
		for _, l := range m.Loops {
			summary.Exits += len(l.Exits)
		}
		result.Modules = append(result.Modules, summary)
	}
	return formatter.Success(result)
}
