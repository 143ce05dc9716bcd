package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/models"
)

// Backend is the slice of the admission services the CLI drives.
type Backend interface {
	Register(ctx context.Context, req dto.RegisterCandidateRequest) (*models.CandidateDetail, error)
	Approve(ctx context.Context, candidateID string, actor dto.Actor) (*dto.ApprovalResult, error)
	Status(ctx context.Context, id string) (*dto.CandidateStatus, bool, error)
	Counters(ctx context.Context, year int) ([]models.NIMCounter, error)
	Seed(ctx context.Context) error
	Close(ctx context.Context) error
}

// Opener connects a Backend; commands call it lazily so --help needs no database.
type Opener func(ctx context.Context) (Backend, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
	Open   Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the pmb-cli root command.
func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "pmb-cli",
		Short: "Operate the PMB admission backend",
		Long:  "Register, approve and inspect candidates and NIM counters against the PMB database.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newRegisterCommand(opts))
	cmd.AddCommand(newApproveCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newCountersCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	return cmd
}

// withBackend opens the backend, runs fn and closes it, keeping fn's error first.
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := opts.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect", err)
	}
	runErr := fn(ctx, backend)
	closeErr := backend.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return closeErr
}
