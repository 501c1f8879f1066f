// Command seed loads a CSV export of daily bars into the durable store and
// optionally asks a running service to refresh the dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"market-analytics/src/config"
	"market-analytics/src/grpc_control"
	"market-analytics/src/ingestion"
	"market-analytics/src/logger"
	"market-analytics/src/storage"

	"github.com/dustin/go-humanize"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type options struct {
	dataset string
	file    string
	batch   int
	notify  bool
}

// -----------------------------------------------------------------------------

func main() {
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	var opts options
	flag.StringVar(&opts.dataset, "dataset", "", "dataset key to load into")
	flag.StringVar(&opts.file, "file", "", "CSV file with symbol,name,trade_date,open_price,close_price,high_price,low_price,volume,sector,industry")
	flag.IntVar(&opts.batch, "batch", 5000, "rows per insert transaction")
	flag.BoolVar(&opts.notify, "notify", false, "trigger a refresh through the gRPC control service when done")
	flag.Parse()

	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger(conf.LogLevel, "seed")

	if err := run(context.Background(), conf, opts, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func run(ctx context.Context, conf *config.Config, opts options, log *logger.Logger) error {
	if _, ok := conf.Dataset(opts.dataset); !ok {
		return fmt.Errorf("unknown dataset %q (configured: %v)", opts.dataset, conf.DatasetKeys())
	}
	if opts.file == "" {
		return fmt.Errorf("-file is required")
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.file, err)
	}
	defer f.Close()

	rows, stats, err := ingestion.ReadCSV(f)
	if err != nil {
		return fmt.Errorf("parse %s: %w", opts.file, err)
	}
	log.Info("read %s rows from %s (%s skipped)", humanize.Comma(int64(stats.Rows)), opts.file, humanize.Comma(int64(stats.Skipped)))

	store, err := storage.NewDurableStore(conf.MConfig, log.Named("storage"))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()
	if err := store.Initialize(conf.Datasets); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	start := time.Now()
	batch := opts.batch
	if batch <= 0 {
		batch = len(rows)
	}
	for lo := 0; lo < len(rows); lo += batch {
		hi := min(lo+batch, len(rows))
		if err := store.AppendRows(ctx, opts.dataset, rows[lo:hi]); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", lo, hi, err)
		}
		log.Debug("inserted %d/%d", hi, len(rows))
	}
	log.Info("loaded %s rows into %s in %s", humanize.Comma(int64(len(rows))), opts.dataset, time.Since(start).Round(time.Millisecond))

	if opts.notify {
		if err := triggerRefresh(ctx, fmt.Sprintf("%s:%d", conf.GrpcHost, conf.GrpcPort), opts.dataset, log); err != nil {
			return fmt.Errorf("refresh trigger failed: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func triggerRefresh(ctx context.Context, addr, dataset string, log *logger.Logger) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := grpc_control.NewControlClient(conn).Refresh(ctx, dataset)
	if err != nil {
		return err
	}
	ack := resp.AsMap()
	log.Info("refresh of %s queued as job %v (coalesced: %v)", dataset, ack["job_id"], ack["coalesced"])
	return nil
}
