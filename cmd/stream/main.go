package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/chartflow/internal/engine"
	"github.com/rxtech-lab/chartflow/internal/indicator"
	"github.com/rxtech-lab/chartflow/internal/lifecycle"
	"github.com/rxtech-lab/chartflow/internal/logger"
	"github.com/rxtech-lab/chartflow/pkg/marketdata"
)

// streamAction loads the config, wires the engine against Binance market
// data and streams indicator updates until interrupted.
func streamAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	debug := cmd.Bool("debug")

	var (
		appLogger *logger.Logger
		err       error
	)

	if debug {
		appLogger, err = logger.NewDevelopmentLogger()
	} else {
		appLogger, err = logger.NewLogger()
	}

	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Sync()

	config, err := engine.LoadConfig(configPath)
	if err != nil {
		return err
	}

	registry := indicator.NewDefaultRegistry()
	controller := lifecycle.NewController(appLogger)
	source := marketdata.NewBinanceSource(appLogger)

	eng := engine.New(appLogger, registry, controller, source, config.Timeframe)
	defer eng.Close()

	eng.SetHistoryLimit(config.HistoryLimit)

	for _, spec := range config.Specs() {
		id, err := eng.AddIndicator(spec)
		if err != nil {
			return fmt.Errorf("failed to register indicator %s: %w", spec.Name, err)
		}

		appLogger.Info("registered indicator", zap.String("id", id))
	}

	eng.SubscribeDeltas(func(delta engine.PointDelta) {
		fields := []zap.Field{
			zap.String("indicator", delta.SpecID),
			zap.String("symbol", delta.Symbol),
			zap.Time("time", delta.Point.Time),
			zap.String("status", string(delta.Point.Status)),
		}

		for name, value := range delta.Point.Values {
			if value.IsSome() {
				fields = append(fields, zap.Float64(name, value.Unwrap()))
			}
		}

		appLogger.Info("indicator update", fields...)
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("starting stream",
		zap.Strings("symbols", config.Symbols),
		zap.String("timeframe", config.Timeframe))

	if err := eng.Run(ctx, source, config.StreamConfig()); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream failed: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "stream",
		Usage: "Stream live candles and compute technical indicators incrementally",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML config file",
				Value:    "config.yaml",
				Required: false,
			},
			&cli.BoolFlag{
				Name:     "debug",
				Usage:    "Enable debug logging",
				Required: false,
			},
		},
		Action: streamAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
