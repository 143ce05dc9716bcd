package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/app"
	"github.com/noah-isme/pmb-api/internal/cli"
	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/pkg/config"
	"github.com/noah-isme/pmb-api/pkg/logger"
)

func main() {
	err := cli.NewRootCommand(open).Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}

// backend adapts the wired services to the CLI.
type backend struct {
	app *app.App
	log *zap.Logger
}

func open(ctx context.Context) (cli.Backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logr = logr.WithOptions(zap.IncreaseLevel(zap.WarnLevel))

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return nil, err
	}
	a.Queue.Start(context.Background())
	return &backend{app: a, log: logr}, nil
}

func (b *backend) Register(ctx context.Context, req dto.RegisterCandidateRequest) (*models.CandidateDetail, error) {
	return b.app.Admissions.Register(ctx, req)
}

func (b *backend) Approve(ctx context.Context, id string, actor dto.Actor) (*dto.ApprovalResult, error) {
	return b.app.Admissions.Approve(ctx, id, actor)
}

func (b *backend) Status(ctx context.Context, id string) (*dto.CandidateStatus, bool, error) {
	return b.app.Admissions.Status(ctx, id)
}

func (b *backend) Counters(ctx context.Context, year int) ([]models.NIMCounter, error) {
	return b.app.Counters.List(ctx, year)
}

func (b *backend) Seed(ctx context.Context) error {
	return b.app.Bootstrap(ctx)
}

// Close lets queued approval jobs finish before disconnecting.
func (b *backend) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	defer b.log.Sync() //nolint:errcheck
	return b.app.Close(ctx)
}
