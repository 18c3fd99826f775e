package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gridwatch/internal/analysis"
	"gridwatch/internal/config"
	"gridwatch/internal/export"
	"gridwatch/internal/logger"
	"gridwatch/internal/model"
	"gridwatch/internal/reconcile"
	"gridwatch/internal/relay"
	"gridwatch/internal/upstream"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "snapshot":
		err = cmdSnapshot(os.Args[2:], os.Stdout)
	case "grid-csv":
		err = cmdGridCSV(os.Args[2:], os.Stdout)
	case "summary":
		err = cmdSummary(os.Args[2:], os.Stdout)
	case "load":
		err = cmdLoad(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli snapshot --venue \"Western Hub\" --date 2024-01-15")
	fmt.Println("  cli grid-csv --venue \"WH - AD Spread\" --out results/grid.csv")
	fmt.Println("  cli summary --venue \"AD Hub\" --filter Peak --top 5")
	fmt.Println("  cli load --source meteologica --region Western --date 2024-01-15")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - every command fetches once through the relay chain and exits")
	fmt.Println("  - --direct skips the relays; --config or GRIDWATCH_CONFIG selects a YAML config")
}

// common holds the flags every subcommand shares.
type common struct {
	cfgPath string
	direct  bool
	venue   string
	date    string
	timeout time.Duration
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.cfgPath, "config", os.Getenv(config.EnvConfigPath), "Path to YAML config")
	fs.BoolVar(&c.direct, "direct", false, "Call the upstream directly instead of through relays")
	fs.StringVar(&c.venue, "venue", "", "Venue or spread name (default: config poll.default_venue)")
	fs.StringVar(&c.date, "date", "", "Date YYYY-MM-DD (default: today)")
	fs.DurationVar(&c.timeout, "timeout", 2*time.Minute, "Overall deadline")
}

// setup loads configuration and builds the upstream client.
func (c *common) setup() (*config.Config, *upstream.Client, model.Scope, error) {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return nil, nil, model.Scope{}, err
	}
	// Logs go to stderr so stdout stays machine readable.
	lc := cfg.LoggerConfig()
	if lc.File == "" {
		lc.File = "stderr"
	}
	log := logger.New(lc)

	opts := upstream.Options{BaseURL: cfg.Upstream.BaseURL, Logger: log}
	opts.Venues, opts.Spreads = cfg.UpstreamVenues()
	if !c.direct {
		rot, err := relay.NewRotator(cfg.Relay.Endpoints)
		if err != nil {
			return nil, nil, model.Scope{}, err
		}
		opts.HTTP = relay.NewTransport(rot, relay.Options{
			InitialDelay:     cfg.Relay.InitialDelay,
			MaxDelay:         cfg.Relay.MaxDelay,
			AttemptsPerRelay: cfg.Relay.AttemptsPerRelay,
			AttemptTimeout:   cfg.Upstream.Timeout,
			Logger:           log,
		}).Client()
	}
	client := upstream.NewClient(opts)

	scope := model.Scope{Venue: c.venue, Date: c.date}
	if scope.Venue == "" {
		scope.Venue = cfg.Poll.DefaultVenue
	}
	if scope.Date == "" {
		scope.Date = time.Now().Format(model.DateLayout)
	}
	if !client.HasVenue(scope.Venue) {
		return nil, nil, model.Scope{}, fmt.Errorf("unknown venue %q (choose from %v)", scope.Venue, client.VenueNames())
	}
	if _, err := scope.Day(); err != nil {
		return nil, nil, model.Scope{}, fmt.Errorf("invalid --date %q: %w", scope.Date, err)
	}
	return cfg, client, scope, nil
}

// snapshot is the one-shot output of cmdSnapshot.
type snapshot struct {
	Scope       model.Scope               `json:"scope"`
	FetchedAt   time.Time                 `json:"fetched_at"`
	Constraints model.ConstraintsSnapshot `json:"constraints"`
	Ledger      model.LedgerSnapshot      `json:"ledger"`
	Grid        model.GridSnapshot        `json:"grid"`
}

// fetchSnapshot fetches constraints, ledger and grid concurrently and
// reconciles them once.
func fetchSnapshot(ctx context.Context, client *upstream.Client, scope model.Scope) (snapshot, error) {
	day, err := scope.Day()
	if err != nil {
		return snapshot{}, err
	}
	out := snapshot{Scope: scope}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Constraints, err = client.FetchConstraints(gctx, model.CurrentConstraints())
		return err
	})
	g.Go(func() error {
		var err error
		out.Ledger, err = client.FetchLedger(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Grid, err = client.FetchGrid(gctx, scope.Venue, day)
		return err
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	// One reconcile pass over an empty store, as the first poll cycle would.
	store := reconcile.NewStore()
	out.Constraints, _ = store.ApplyConstraints(out.Constraints)
	out.Ledger, _ = store.ApplyLedger(out.Ledger)
	out.Grid, _ = store.ApplyGrid(scope, out.Grid)
	out.FetchedAt = time.Now().UTC()
	return out, nil
}

func cmdSnapshot(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	var c common
	c.register(fs)
	_ = fs.Parse(args)

	_, client, scope, err := c.setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	snap, err := fetchSnapshot(ctx, client, scope)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func cmdGridCSV(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("grid-csv", flag.ExitOnError)
	var c common
	c.register(fs)
	outPath := fs.String("out", "", "Output CSV path (default: stdout)")
	_ = fs.Parse(args)

	_, client, scope, err := c.setup()
	if err != nil {
		return err
	}
	day, _ := scope.Day()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	grid, err := client.FetchGrid(ctx, scope.Venue, day)
	if err != nil {
		return err
	}
	if *outPath == "" {
		return export.WriteGridCSV(w, grid)
	}
	// ensure output dir exists
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return err
	}
	if err := export.WriteGridCSVFile(*outPath, grid); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %d rows for %s %s to %s\n", len(grid.Rows), scope.Venue, scope.Date, *outPath)
	return nil
}

func cmdSummary(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	var c common
	c.register(fs)
	filterArg := fs.String("filter", "All", "All, Peak, Off Peak or an hour-ending 1-24")
	top := fs.Int("top", 5, "Number of largest-spread hours to list")
	_ = fs.Parse(args)

	filter, err := analysis.ParseFilter(*filterArg)
	if err != nil {
		return err
	}
	_, client, scope, err := c.setup()
	if err != nil {
		return err
	}
	day, _ := scope.Day()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	grid, err := client.FetchGrid(ctx, scope.Venue, day)
	if err != nil {
		return err
	}
	printSummary(w, scope, grid, filter, *top)
	return nil
}

func printSummary(w io.Writer, scope model.Scope, grid model.GridSnapshot, filter analysis.Filter, top int) {
	view := analysis.FilterGrid(grid, filter)
	fmt.Fprintf(w, "%s %s filter=%s current HE=%d\n", scope.Venue, scope.Date, view.Filter, analysis.CurrentHE(grid))
	fmt.Fprintf(w, "%-4s %-10s %-10s %-10s %-10s\n", "HE", "RT", "DA", "Combo", "DA/RT")
	for _, r := range view.Rows {
		fmt.Fprintf(w, "%-4d %-10s %-10s %-10s %-10s\n", r.HE, dash(r.RT), dash(r.DA), dash(r.Combo), dash(r.Spread))
	}
	fmt.Fprintf(w, "%-4s %-10s %-10s %-10s %-10s\n", "Avg", dash(view.Avg.RT), dash(view.Avg.DA), dash(view.Avg.Combo), dash(view.Avg.Spread))

	ranked := analysis.RankBySpread(grid, top)
	if len(ranked) == 0 {
		return
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%-4s %-4s %-10s\n", "rank", "HE", "spread")
	for i, r := range ranked {
		fmt.Fprintf(w, "%-4d %-4d %-10s\n", i+1, r.HE, r.Spread)
	}
}

func dash(v model.Value) string {
	if !v.OK {
		return "-"
	}
	return v.String()
}

func cmdLoad(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	var c common
	c.register(fs)
	source := fs.String("source", string(upstream.LoadActual), "actual, gbe, meteologica or tesla")
	region := fs.String("region", "RTO", "RTO, Mid-Atlantic, Western or Southern")
	_ = fs.Parse(args)

	src, err := upstream.ParseLoadSource(*source)
	if err != nil {
		return err
	}
	if _, ok := upstream.Regions[*region]; !ok {
		return fmt.Errorf("unknown region %q", *region)
	}
	_, client, scope, err := c.setup()
	if err != nil {
		return err
	}
	day, _ := scope.Day()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	points, err := client.FetchLoad(ctx, src, day, *region)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s load, %s, %s (%d points)\n", src, *region, scope.Date, len(points))
	for _, p := range points {
		fmt.Fprintf(w, "%-6s %12.1f\n", p.Timestamp, p.Value)
	}
	return nil
}
