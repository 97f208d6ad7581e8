package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/gresst/gresst/internal/cli/app"
	"github.com/gresst/gresst/internal/cli/config"
	"github.com/gresst/gresst/internal/cli/prompt"
	"github.com/gresst/gresst/internal/logger"
)

// Runtime carries what commands need to build the client. Tests swap the
// config loader, app options and prompter.
type Runtime struct {
	LoadConfig func() (*config.Config, error)
	AppOptions []app.Option
	Prompter   prompt.Prompter
	Getenv     func(string) string
	// LogOutput receives CLI logs; nil disables logging
	LogOutput io.Writer
}

// DefaultRuntime resolves configuration from the environment and prompts on the terminal
func DefaultRuntime() *Runtime {
	return &Runtime{
		LoadConfig: config.Load,
		Prompter:   prompt.Terminal{},
		Getenv:     os.Getenv,
		LogOutput:  os.Stderr,
	}
}

func (r *Runtime) config() (*config.Config, error) {
	cfg, err := r.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// open builds the app and runs the session startup protocol
func (r *Runtime) open(ctx context.Context) (*app.App, error) {
	cfg, err := r.config()
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if r.LogOutput != nil {
		logger.InitWithWriter(r.LogOutput, cfg.LogLevel, cfg.LogFormat)
		log = logger.Component("cli")
	}

	opts := append([]app.Option{app.WithLogger(log)}, r.AppOptions...)
	a, err := app.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun 'gresst init <api-base-url>' to create a configuration file", err)
	}
	a.Start(ctx)
	return a, nil
}
