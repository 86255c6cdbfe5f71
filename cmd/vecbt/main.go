package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vecbt/internal/api"
	"vecbt/internal/config"
	"vecbt/internal/engine"
	"vecbt/internal/optimize"
	"vecbt/internal/report"
	"vecbt/internal/store"
	"vecbt/internal/util"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: vecbt <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run          Run one backtest and print its metrics\n")
	fmt.Fprintf(os.Stderr, "  optimize     Sweep a parameter grid and report the best set\n")
	fmt.Fprintf(os.Stderr, "  runs         List stored runs\n")
	fmt.Fprintf(os.Stderr, "  show <id>    Print a stored run\n")
	fmt.Fprintf(os.Stderr, "  strategies   List available strategies\n")
	fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "\nRun 'vecbt <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("vecbt %s\n", version)
	case "run":
		err = cmdRun(ctx, args)
	case "optimize":
		err = cmdOptimize(ctx, args)
	case "runs":
		err = cmdRuns(ctx, args)
	case "show":
		err = cmdShow(ctx, args)
	case "strategies":
		err = cmdStrategies(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags every engine-backed command accepts.
type common struct {
	configPath string
	symbol     string
	start      string
	end        string
	strategy   string
	capital    float64
	costRate   float64
	source     string
	params     paramsFlag
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", defaultConfigPath(), "path to YAML config")
	fs.StringVar(&c.symbol, "symbol", "", "ticker symbol")
	fs.StringVar(&c.start, "start", "", "first date, YYYY-MM-DD")
	fs.StringVar(&c.end, "end", "", "last date, YYYY-MM-DD")
	fs.StringVar(&c.strategy, "strategy", "", "strategy name")
	fs.Float64Var(&c.capital, "capital", 0, "initial capital")
	fs.Float64Var(&c.costRate, "cost", -1, "proportional cost per unit of position change")
	fs.StringVar(&c.source, "source", "", "price source: parquet or alpaca")
	fs.Var(&c.params, "param", "strategy parameter name=value (repeatable)")
}

// open loads config, applies flag overrides and opens the engine.
func (c *common) open() (*config.Config, *engine.Stack, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if c.source != "" {
		cfg.Backtest.Source = c.source
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	st, err := engine.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func (c *common) request() api.BacktestRequest {
	req := api.BacktestRequest{
		Symbol:         c.symbol,
		Start:          c.start,
		End:            c.end,
		InitialCapital: c.capital,
		Strategy:       c.strategy,
	}
	if c.costRate >= 0 {
		rate := c.costRate
		req.CostRate = &rate
	}
	if len(c.params) > 0 {
		req.Params = c.params
	}
	return req
}

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	rc, err := c.request().RunConfig(cfg.Backtest)
	if err != nil {
		return err
	}
	out, err := st.Engine.Backtest(ctx, rc)
	if err != nil {
		return err
	}
	report.NewConsole(os.Stdout).PrintRun(out.Record, out.Metrics)
	return nil
}

func cmdOptimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	var c common
	c.register(fs)
	var grid gridFlag
	fs.Var(&grid, "grid", "sweep range name=start:stop:step (repeatable)")
	metric := fs.String("metric", "", "metric to optimize")
	minimize := fs.Bool("minimize", false, "select the lowest score")
	workers := fs.Int("workers", 0, "concurrent evaluations, 0 uses the config or NumCPU")
	top := fs.Int("top", 10, "evaluations to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	rc, err := c.request().RunConfig(cfg.Backtest)
	if err != nil {
		return err
	}
	if len(c.params) == 0 {
		rc.Params = nil
	}
	g := optimize.Grid(grid)
	if len(g) == 0 {
		g = cfg.Optimize.Grid
	}
	sc := optimize.Config{
		Strategy: rc.Strategy,
		Metric:   cfg.Optimize.Metric,
		Minimize: *minimize || cfg.Optimize.Minimize,
		Workers:  *workers,
	}
	if *metric != "" {
		sc.Metric = *metric
	}
	if sc.Workers == 0 {
		sc.Workers = cfg.Optimize.Workers
	}

	out, err := st.Engine.Optimize(ctx, rc, g, sc)
	if err != nil {
		return err
	}
	con := report.NewConsole(os.Stdout)
	con.PrintSweep(out.Report, *top)
	con.PrintRun(out.Best.Record, out.Best.Metrics)
	return nil
}

func cmdRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	var c common
	c.register(fs)
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.Engine.ListRuns(ctx, store.RunFilter{Symbol: c.symbol, Strategy: c.strategy, Limit: *limit})
	if err != nil {
		return err
	}
	report.NewConsole(os.Stdout).PrintRuns(runs)
	return nil
}

func cmdShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var c common
	fs.StringVar(&c.configPath, "config", defaultConfigPath(), "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("show requires exactly one run id")
	}
	_, st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.Engine.GetRun(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	report.NewConsole(os.Stdout).PrintRecord(*run)
	return nil
}

func cmdStrategies(args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ContinueOnError)
	var c common
	fs.StringVar(&c.configPath, "config", defaultConfigPath(), "path to YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	for _, name := range st.Engine.Strategies() {
		fmt.Println(name)
	}
	return nil
}

// defaultConfigPath is $VECBT_CONFIG, else config/vecbt.yaml when present,
// else no file.
func defaultConfigPath() string {
	if p := os.Getenv("VECBT_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config/vecbt.yaml"); err == nil {
		return "config/vecbt.yaml"
	}
	return ""
}
