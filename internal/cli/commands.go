package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/pmb-api/internal/dto"
)

func newRegisterCommand(opts *RootOptions) *cobra.Command {
	var req dto.RegisterCandidateRequest
	var address string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a candidate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				req.Address = &address
			}
			out := formatter{format: opts.Format, w: cmd.OutOrStdout()}
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				candidate, err := b.Register(ctx, req)
				if err != nil {
					return out.failure(err)
				}
				return out.success(candidate, func(w io.Writer) {
					fmt.Fprintf(w, "registered %s (%s) for %s, status %s\n", candidate.FullName, candidate.ID, candidate.ProgramCode, candidate.Status)
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "Indonesian mobile number")
	cmd.Flags().StringVar(&req.BirthDate, "dob", "", "birth date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.ProgramCode, "program", "", "program code")
	cmd.Flags().StringVar(&req.AdmissionPath, "path", "", "admission path (SNBP|SNBT|Mandiri)")
	cmd.Flags().StringVar(&address, "address", "", "postal address")
	for _, name := range []string{"name", "email", "phone", "dob", "program", "path"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newApproveCommand(opts *RootOptions) *cobra.Command {
	var id, actor string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a pending candidate and assign its NIM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter{format: opts.Format, w: cmd.OutOrStdout()}
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				result, err := b.Approve(ctx, id, dto.Actor{UserID: actor, UserAgent: "pmb-cli"})
				if err != nil {
					return out.failure(err)
				}
				return out.success(result, func(w io.Writer) {
					if result.AlreadyApproved {
						fmt.Fprintf(w, "candidate %s was already approved with NIM %s\n", result.CandidateID, result.NIM)
						return
					}
					fmt.Fprintf(w, "approved %s: NIM %s\n", result.CandidateID, result.NIM)
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "candidate id")
	cmd.Flags().StringVar(&actor, "actor", "", "user id recorded in the audit log")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a candidate's application status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter{format: opts.Format, w: cmd.OutOrStdout()}
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				status, _, err := b.Status(ctx, id)
				if err != nil {
					return out.failure(err)
				}
				return out.success(status, func(w io.Writer) {
					nim := "-"
					if status.NIM != nil {
						nim = *status.NIM
					}
					fmt.Fprintf(w, "%s  %s  %s  %s  NIM %s\n", status.ID, status.FullName, status.ProgramCode, status.Status, nim)
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "candidate id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newCountersCommand(opts *RootOptions) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "List NIM counters for an intake year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				year = time.Now().UTC().Year()
			}
			out := formatter{format: opts.Format, w: cmd.OutOrStdout()}
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				counters, err := b.Counters(ctx, year)
				if err != nil {
					return out.failure(err)
				}
				return out.success(counters, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "YEAR\tPROGRAM\tLAST")
					for _, c := range counters {
						fmt.Fprintf(tw, "%d\t%s\t%d\n", c.Year, c.ProgramCode, c.LastSequence)
					}
					_ = tw.Flush()
				})
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "intake year (defaults to the current UTC year)")
	return cmd
}

func newSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and seed default programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatter{format: opts.Format, w: cmd.OutOrStdout()}
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				if err := b.Seed(ctx); err != nil {
					return out.failure(err)
				}
				return out.success(map[string]string{"seed": "done"}, func(w io.Writer) {
					fmt.Fprintln(w, "schema ready, default programs seeded")
				})
			})
		},
	}
}
