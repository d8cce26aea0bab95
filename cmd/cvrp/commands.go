package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"cvrpbench/internal/config"
	"cvrpbench/internal/experiment"
	"cvrpbench/internal/model"
	"cvrpbench/internal/notify"
	"cvrpbench/internal/opt"
	"cvrpbench/internal/progress"
	"cvrpbench/internal/store"
)

// env holds the long-lived dependencies shared by the commands.
type env struct {
	store    store.Store
	progress progress.Publisher
	closers  []func() error
}

func openEnv(ctx context.Context, c *cli.Context) (*env, error) {
	e := &env{}
	st, err := store.New(ctx, c.GlobalString("database-url"))
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, st.Close)

	var pubs progress.Fanout
	if url := c.GlobalString("redis-url"); url != "" {
		rb, err := progress.NewRedis(url)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, rb.Close)
		pubs = append(pubs, rb)
	}
	if addr := c.GlobalString("progress-addr"); addr != "" {
		b := progress.NewMemory()
		srv, err := serveProgress(addr, b)
		if err != nil {
			e.close()
			return nil, err
		}
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		pubs = append(pubs, b)
	}
	if len(pubs) > 0 {
		e.progress = progress.NewThrottled(pubs, c.GlobalFloat64("progress-rate"), 1)
	}
	return e, nil
}

// serveProgress exposes b on ws://addr/progress until the returned server is
// shut down.
func serveProgress(addr string, b progress.Broker) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("component", "progress")
	mux := http.NewServeMux()
	mux.Handle("/progress", progress.Handler(b, log))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("progress server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("serving progress on /progress")
	return srv, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logrus.WithError(err).Warn("close")
		}
	}
}

func (e *env) runner() *experiment.Runner {
	return &experiment.Runner{Store: e.store, Progress: e.progress, Log: logrus.NewEntry(logrus.StandardLogger())}
}

func solveCommand(ctx context.Context) cli.Command {
	return cli.Command{
		Name:      "solve",
		Usage:     "run one solver on one instance",
		ArgsUsage: "PROBLEM.vrp",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "solver, s", Value: string(opt.KindGenetic), Usage: "random, greedy, ga, ts, sa, h1 or h2"},
			cli.StringFlag{Name: "config, c", Usage: "solver configuration file"},
			cli.Int64Flag{Name: "seed", Usage: "random seed; 0 uses the clock"},
			cli.IntFlag{Name: "attempts", Value: config.DefaultMaxAttempts, Usage: "max retries until a feasible result"},
			cli.IntFlag{Name: "first", Usage: "greedy start customer"},
			cli.StringFlag{Name: "out, o", Usage: "write the solution here"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.NewExitError("solve needs exactly one problem file", 2)
			}
			kind, err := opt.ParseKind(c.String("solver"))
			if err != nil {
				return cli.NewExitError(err.Error(), 2)
			}
			p, err := model.LoadProblem(c.Args().First())
			if err != nil {
				return err
			}
			e, err := openEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.close()

			seed := c.Int64("seed")
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			res, run, err := e.runner().Solve(ctx, p, experiment.Job{
				Kind:          kind,
				ConfigPath:    c.String("config"),
				Index:         1,
				Seed:          seed,
				MaxAttempts:   c.Int("attempts"),
				FirstLocation: c.Int("first"),
			})
			if err != nil && res.Solution == nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "solver:   %s\n", run.Solver)
			fmt.Fprintf(w, "cost:     %s\n", strconv.FormatFloat(res.Cost, 'f', 2, 64))
			fmt.Fprintf(w, "feasible: %t\n", res.Feasible)
			fmt.Fprintf(w, "attempts: %d\n", run.Attempts)
			fmt.Fprintf(w, "elapsed:  %s\n", run.Duration)
			fmt.Fprintf(w, "genome:   %s\n", res.Solution)
			if out := c.String("out"); out != "" {
				if serr := experiment.SaveSolution(out, p, res.Solution); serr != nil {
					return serr
				}
			}
			return err
		},
	}
}

func runCommand(ctx context.Context) cli.Command {
	return cli.Command{
		Name:      "run",
		Usage:     "execute an experiment plan",
		ArgsUsage: "PLAN.yaml",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "webhook-url", EnvVar: "WEBHOOK_URL", Usage: "POST a summary here when the plan finishes"},
			cli.StringFlag{Name: "webhook-secret", EnvVar: "WEBHOOK_SECRET", Usage: "HMAC-SHA256 key for X-Signature"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.NewExitError("run needs exactly one plan file", 2)
			}
			plan, err := config.LoadPlan(c.Args().First())
			if err != nil {
				return err
			}
			e, err := openEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.close()

			outcomes, err := e.runner().Run(ctx, plan)
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tSOLVER\tRUNS\tFAILED\tBEST\tAVERAGE\tSTD")
			for _, o := range outcomes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\n",
					o.Instance, o.Solver, o.Runs, o.Failures, o.Summary.Best, o.Summary.Average, o.Summary.Std)
			}
			if ferr := tw.Flush(); ferr != nil && err == nil {
				err = ferr
			}
			if url := c.String("webhook-url"); url != "" && err == nil {
				err = notify.NewWebhook(url, c.String("webhook-secret")).PlanFinished(ctx, outcomes)
			}
			return err
		},
	}
}

func checkCommand() cli.Command {
	return cli.Command{
		Name:      "check",
		Usage:     "validate a solution file against its instance",
		ArgsUsage: "PROBLEM.vrp SOLUTION",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.NewExitError("check needs a problem and a solution file", 2)
			}
			p, err := model.LoadProblem(c.Args().Get(0))
			if err != nil {
				return err
			}
			f, err := os.Open(c.Args().Get(1))
			if err != nil {
				return err
			}
			defer f.Close()
			s, err := model.ParseSolution(f)
			if err != nil {
				return err
			}
			feasible, err := p.CheckSolution(s)
			if err != nil {
				return err
			}
			if err := model.WriteSolution(c.App.Writer, p, s); err != nil {
				return err
			}
			if !feasible {
				return cli.NewExitError("solution is infeasible", 1)
			}
			return nil
		},
	}
}

func runsCommand(ctx context.Context) cli.Command {
	return cli.Command{
		Name:  "runs",
		Usage: "list recorded runs",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "instance"},
			cli.StringFlag{Name: "solver"},
			cli.IntFlag{Name: "limit", Value: 50},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(ctx, c)
			if err != nil {
				return err
			}
			defer e.close()

			runs, err := e.store.ListRuns(ctx, store.Filter{
				Instance: c.String("instance"),
				Solver:   c.String("solver"),
				Limit:    c.Int("limit"),
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tINSTANCE\tSOLVER\tRUN\tCOST\tFEASIBLE\tATTEMPTS\tDURATION\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%t\t%d\t%s\t%s\n",
					r.ID, r.Instance, r.Solver, r.Index, r.Cost, r.Feasible, r.Attempts,
					r.Duration.Round(time.Millisecond), r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func watchCommand(ctx context.Context) cli.Command {
	return cli.Command{
		Name:      "watch",
		Usage:     "follow live progress of an instance",
		ArgsUsage: "INSTANCE",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "url", Value: "ws://localhost:8081/progress", EnvVar: "PROGRESS_URL"},
			cli.BoolFlag{Name: "until-done", Usage: "exit after the first finished run"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.NewExitError("watch needs an instance name", 2)
			}
			w := c.App.Writer
			err := progress.Watch(ctx, c.String("url"), c.Args().First(), func(e progress.Event) error {
				fmt.Fprintf(w, "%s %s run=%d it=%d best=%.2f done=%t\n",
					e.At.Format(time.TimeOnly), e.Solver, e.Run, e.Iteration, e.BestFitness, e.Done)
				if e.Done && c.Bool("until-done") {
					return progress.ErrStopWatching
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
