package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"cvrpbench/internal/buildinfo"
	"cvrpbench/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx)
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error("cvrp failed")
		stop()
		os.Exit(1)
	}
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "cvrp"
	app.Usage = "solve and benchmark capacitated vehicle routing instances"
	app.Version = buildinfo.String()
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "log-level", Value: "info", EnvVar: "LOG_LEVEL", Usage: "logrus level"},
		cli.BoolFlag{Name: "log-json", EnvVar: "LOG_JSON", Usage: "emit JSON log lines"},
		cli.StringFlag{Name: "database-url", EnvVar: "DATABASE_URL", Usage: "run store: postgres://, sqlite:// or a .db file; empty keeps runs in memory"},
		cli.StringFlag{Name: "redis-url", EnvVar: "REDIS_URL", Usage: "publish solver progress to Redis"},
		cli.StringFlag{Name: "progress-addr", EnvVar: "PROGRESS_ADDR", Usage: "serve live progress over WebSocket on this address"},
		cli.Float64Flag{Name: "progress-rate", Value: 20, Usage: "max progress events per second"},
		cli.StringFlag{Name: "metrics-textfile", EnvVar: "METRICS_TEXTFILE", Usage: "write Prometheus metrics here on exit"},
	}
	app.Before = func(c *cli.Context) error {
		lvl, err := logrus.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		logrus.SetLevel(lvl)
		if c.GlobalBool("log-json") {
			logrus.SetFormatter(&logrus.JSONFormatter{})
		}
		metrics.RegisterDefault()
		return nil
	}
	app.After = func(c *cli.Context) error {
		if path := c.GlobalString("metrics-textfile"); path != "" {
			if err := metrics.WriteTextfile(path); err != nil {
				return err
			}
			logrus.WithField("path", path).Debug("metrics written")
		}
		return nil
	}
	app.Commands = []cli.Command{
		solveCommand(ctx),
		runCommand(ctx),
		checkCommand(),
		runsCommand(ctx),
		watchCommand(ctx),
		{
			Name:  "version",
			Usage: "print build information",
			Action: func(c *cli.Context) error {
				for _, k := range []string{"version", "commit", "builtAt"} {
					if v := buildinfo.Info()[k]; v != "" {
						fmt.Fprintf(c.App.Writer, "%s: %s\n", k, v)
					}
				}
				return nil
			},
		},
	}
	return app
}
