// Command classledger runs the record keeper: the loopback API server and
// maintenance commands for export, import, fixtures and rosters.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classledger/internal/adapters/httpapi"
	"classledger/internal/config"
	"classledger/internal/core"
	"classledger/internal/logging"
	"classledger/internal/roster"
	"classledger/internal/seed"
)

var exitFunc = os.Exit

const usage = `usage: classledger [-config file] [-env-file file] <command> [args]

commands:
  serve              run the loopback JSON API
  stats              print collection sizes
  export [-o file]   publish a snapshot export (and optionally write it to file)
  exports            list published exports
  import <file>      replace the dataset with a snapshot file
  restore <key>      replace the dataset with a published export
  seed <file.yaml>   load YAML fixtures
  roster [-sheet s] <file.xlsx>
                     import groups and students from a workbook
  clear -yes         remove every record
`

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("classledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configFile := fs.String("config", "", "config file (default $CLASSLEDGER_CONFIG)")
	envFile := fs.String("env-file", "", "dotenv file (default .env)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(config.Options{ConfigFile: *configFile, DotEnv: *envFile})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger, closeLogger := newLogger(cfg, stderr)
	defer closeLogger()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if err := run(ctx, cfg, logger, cmd, rest, stdout); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintf(stderr, "%v\n\n%s", err, usage)
			return 2
		}
		fmt.Fprintf(stderr, "classledger %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func newLogger(cfg config.Config, stderr io.Writer) (core.Logger, func()) {
	base := logging.New(stderr, cfg.Log.Format, cfg.Log.Level)
	if cfg.Rollbar.Token == "" {
		return base, func() {}
	}
	host, _ := os.Hostname()
	rb := logging.NewRollbar(nil, logging.RollbarConfig{
		Token:       cfg.Rollbar.Token,
		Environment: cfg.Env,
		ServerHost:  host,
	})
	return logging.Multi{base, rb}, func() { _ = rb.Close() }
}

func run(ctx context.Context, cfg config.Config, logger core.Logger, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger, args)
	case "stats", "export", "exports", "import", "restore", "seed", "roster", "clear":
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}

	svc, err := openService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	switch cmd {
	case "stats":
		return printJSON(stdout, map[string]any{
			"counts":      svc.Snapshot().Counts(),
			"storage":     svc.Adapter().Driver(),
			"cascadeMode": svc.Store().CascadeMode(),
		})
	case "export":
		return export(ctx, svc, args, stdout)
	case "exports":
		infos, err := svc.ListExports(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, infos)
	case "import":
		path, err := oneArg(cmd, args)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return err
		}
		if err := svc.Import(ctx, raw); err != nil {
			return err
		}
		return printJSON(stdout, svc.Snapshot().Counts())
	case "restore":
		key, err := oneArg(cmd, args)
		if err != nil {
			return err
		}
		if err := svc.RestoreExport(ctx, key); err != nil {
			return err
		}
		return printJSON(stdout, svc.Snapshot().Counts())
	case "seed":
		path, err := oneArg(cmd, args)
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return err
		}
		defer f.Close()
		fixture, err := seed.Load(f)
		if err != nil {
			return err
		}
		created, err := seed.Apply(ctx, svc, fixture)
		if err != nil {
			return err
		}
		return printJSON(stdout, created)
	case "roster":
		return importRoster(ctx, svc, args, stdout)
	case "clear":
		cfs := flag.NewFlagSet("clear", flag.ContinueOnError)
		cfs.SetOutput(io.Discard)
		yes := cfs.Bool("yes", false, "confirm")
		if err := cfs.Parse(args); err != nil || !*yes {
			return usageError("clear removes every record; pass -yes to confirm")
		}
		out, err := svc.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
		return svc.LastSaveError()
	}
	return nil
}

// openService opens the configured service with the options shared by every
// command. A configured trace file receives one JSON line per observed
// operation and is closed with the service.
func openService(ctx context.Context, cfg config.Config, logger core.Logger, extra ...core.Option) (*core.Service, error) {
	opts := []core.Option{core.WithLogger(logger)}
	var trace *os.File
	if cfg.Trace.File != "" {
		f, err := os.OpenFile(filepath.Clean(cfg.Trace.File), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		trace = f
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)), core.WithCloser(f))
	}
	svc, err := core.Open(ctx, cfg, append(opts, extra...)...)
	if err != nil {
		if trace != nil {
			_ = trace.Close()
		}
		return nil, err
	}
	return svc, nil
}

func oneArg(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError(cmd + " takes exactly one argument")
	}
	return args[0], nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func export(ctx context.Context, svc *core.Service, args []string, stdout io.Writer) error {
	efs := flag.NewFlagSet("export", flag.ContinueOnError)
	efs.SetOutput(io.Discard)
	out := efs.String("o", "", "also write the export to this file")
	if err := efs.Parse(args); err != nil {
		return usageError("export: " + err.Error())
	}
	exp, err := svc.Export(ctx)
	if err != nil {
		return err
	}
	if *out != "" {
		if err := os.WriteFile(filepath.Clean(*out), exp.Data, 0o600); err != nil {
			return err
		}
	}
	return printJSON(stdout, map[string]any{"name": exp.Name, "key": exp.Key, "bytes": len(exp.Data)})
}

func importRoster(ctx context.Context, svc *core.Service, args []string, stdout io.Writer) error {
	rfs := flag.NewFlagSet("roster", flag.ContinueOnError)
	rfs.SetOutput(io.Discard)
	sheet := rfs.String("sheet", "", "sheet name (default first sheet)")
	if err := rfs.Parse(args); err != nil {
		return usageError("roster: " + err.Error())
	}
	path, err := oneArg("roster", rfs.Args())
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()
	plan, err := roster.ImportWorkbook(f, *sheet)
	if err != nil {
		return err
	}
	res, err := roster.Apply(ctx, svc, plan)
	if err != nil {
		return err
	}
	sort.Ints(res.Skipped)
	return printJSON(stdout, res)
}

func serve(ctx context.Context, cfg config.Config, logger core.Logger, args []string) error {
	sfs := flag.NewFlagSet("serve", flag.ContinueOnError)
	sfs.SetOutput(io.Discard)
	addr := sfs.String("addr", cfg.HTTP.Addr, "listen address")
	if err := sfs.Parse(args); err != nil {
		return usageError("serve: " + err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return err
	}
	metrics := core.MultiRecorder{prom, core.NewExpvarMetricsRecorder("classledger")}

	svc, err := openService(ctx, cfg, logger, core.WithMetricsRecorder(metrics))
	if err != nil {
		return err
	}
	defer svc.Close()

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(svc, logger)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.New(io.Discard, "", 0),
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", *addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
