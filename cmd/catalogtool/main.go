// Command catalogtool is a read-only diagnostic CLI over the backup
// catalog engine: it lists instances and backups, reconstructs WAL
// timelines, and previews a retention plan, all without mutating the
// catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cybernetics/pg-probackup/internal/catalog"
	"github.com/cybernetics/pg-probackup/internal/catalogpath"
	"github.com/cybernetics/pg-probackup/internal/fsops"
	"github.com/cybernetics/pg-probackup/internal/logging"
	"github.com/cybernetics/pg-probackup/internal/model"
	"github.com/cybernetics/pg-probackup/internal/retention"
	"github.com/cybernetics/pg-probackup/internal/wal"
)

var (
	catalogRoot = flag.String("catalog-root", ".", "catalog root directory")
	xlogSegSize = flag.Uint64("xlog-seg-size", 16*1024*1024, "instance WAL segment size in bytes")
	logLevel    = flag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	jsonLog     = flag.Bool("json-log", false, "emit logs as JSON instead of a console writer")
)

func main() {
	flag.Parse()
	logger := logging.NewLogger(logging.Config{Level: *logLevel, JSONOutput: *jsonLog}).Component("catalogtool")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warning("received termination signal")
		cancel()
	}()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ops := fsops.NewLocal()
	var err error
	switch args[0] {
	case "list-instances":
		err = runListInstances(ctx, ops, logger)
	case "list-backups":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runListBackups(ctx, ops, args[1], logger)
	case "show-timelines":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runShowTimelines(ctx, ops, args[1], logger)
	case "plan-retention":
		if len(args) < 3 {
			usage()
			os.Exit(2)
		}
		depth, perr := strconv.Atoi(args[2])
		if perr != nil {
			fmt.Fprintf(os.Stderr, "invalid wal-depth %q: %v\n", args[2], perr)
			os.Exit(2)
		}
		err = runPlanRetention(ctx, ops, args[1], depth, logger)
	case "summarize":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runSummarize(ctx, ops, args[1], logger)
	case "validate-timelines":
		if len(args) < 2 {
			usage()
			os.Exit(2)
		}
		err = runValidateTimelines(ctx, ops, args[1], logger)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: catalogtool [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  list-instances")
	fmt.Fprintln(os.Stderr, "  list-backups <instance>")
	fmt.Fprintln(os.Stderr, "  show-timelines <instance>")
	fmt.Fprintln(os.Stderr, "  plan-retention <instance> <wal-depth>")
	fmt.Fprintln(os.Stderr, "  summarize <instance>")
	fmt.Fprintln(os.Stderr, "  validate-timelines <instance>")
	flag.PrintDefaults()
}

func runListInstances(ctx context.Context, ops fsops.FileOps, logger model.Logger) error {
	names, err := catalog.ListInstances(ctx, ops, fsops.Local, *catalogRoot, logger)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runListBackups(ctx context.Context, ops fsops.FileOps, instance string, logger model.Logger) error {
	list, err := catalog.ListBackups(ctx, ops, fsops.Local, *catalogRoot, instance, model.InvalidBackupID, logger)
	if err != nil {
		return err
	}
	for _, b := range list {
		parent := "-"
		if b.ParentLink != nil {
			parent = b.ParentLink.ID.Base36()
		}
		fmt.Printf("%s\tmode=%s\tstatus=%s\ttli=%d\tparent=%s\n", b.ID.Base36(), b.Mode, b.Status, b.TLI, parent)
	}
	return nil
}

func runShowTimelines(ctx context.Context, ops fsops.FileOps, instance string, logger model.Logger) error {
	forest, _, err := loadForest(ctx, ops, instance, logger)
	if err != nil {
		return err
	}
	for _, t := range forest.List {
		fmt.Printf("tli=%d parent_tli=%d begin_segno=%d end_segno=%d n_xlog_files=%d lost_segments=%v\n",
			t.TLI, t.ParentTLI, t.BeginSegNo, t.EndSegNo, t.NXlogFiles, t.LostSegments)
	}
	return nil
}

func runPlanRetention(ctx context.Context, ops fsops.FileOps, instance string, walDepth int, logger model.Logger) error {
	forest, _, err := loadForest(ctx, ops, instance, logger)
	if err != nil {
		return err
	}

	cfg := model.InstanceConfig{Name: instance, XlogSegSize: *xlogSegSize, WalDepth: walDepth}
	retention.Plan(forest, cfg)

	for _, t := range forest.List {
		kept, total := 0, 0
		for _, f := range t.XlogFilelist {
			total++
			if f.Keep {
				kept++
			}
		}
		fmt.Printf("tli=%d anchor_lsn=%s anchor_tli=%d keep_segments=%v kept=%d/%d\n",
			t.TLI, t.AnchorLSN, t.AnchorTLI, t.KeepSegments, kept, total)
	}
	return nil
}

func runSummarize(ctx context.Context, ops fsops.FileOps, instance string, logger model.Logger) error {
	list, err := catalog.ListBackups(ctx, ops, fsops.Local, *catalogRoot, instance, model.InvalidBackupID, logger)
	if err != nil {
		return err
	}
	s := catalog.Summarize(list)
	fmt.Printf("total=%d ok=%d error=%d running=%d other=%d data_bytes=%d\n", s.Total, s.OK, s.Error, s.Running, s.Other, s.DataBytes)
	return nil
}

func runValidateTimelines(ctx context.Context, ops fsops.FileOps, instance string, logger model.Logger) error {
	forest, _, err := loadForest(ctx, ops, instance, logger)
	if err != nil {
		return err
	}
	warnings := forest.Validate()
	if len(warnings) == 0 {
		fmt.Println("no invariant violations found")
		return nil
	}
	for _, w := range warnings {
		fmt.Println(w)
	}
	return nil
}

func loadForest(ctx context.Context, ops fsops.FileOps, instance string, logger model.Logger) (*wal.Forest, []*model.BackupRecord, error) {
	backups, err := catalog.ListBackups(ctx, ops, fsops.Local, *catalogRoot, instance, model.InvalidBackupID, logger)
	if err != nil {
		return nil, nil, err
	}

	walDir, err := catalogpath.InstanceWALPath(*catalogRoot, instance)
	if err != nil {
		return nil, nil, err
	}

	cfg := model.InstanceConfig{Name: instance, XlogSegSize: *xlogSegSize}
	forest, err := wal.Reconstruct(ctx, ops, fsops.Local, walDir, cfg, backups, wal.FileHistoryParser{}, logger)
	if err != nil {
		return nil, nil, err
	}
	return forest, backups, nil
}
