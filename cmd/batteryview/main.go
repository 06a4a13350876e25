package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/batteryview/batteryview/pkg/advisor"
	"github.com/batteryview/batteryview/pkg/extract"
	"github.com/batteryview/batteryview/pkg/gemini"
	"github.com/batteryview/batteryview/pkg/log"
	"github.com/batteryview/batteryview/pkg/orchestrator"
	"github.com/batteryview/batteryview/pkg/queue"
	"github.com/batteryview/batteryview/pkg/store"
	"github.com/batteryview/batteryview/pkg/types"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	g := gemini.Configured()
	ex := extract.Configured(g)
	ad := advisor.Configured(g)

	st := store.New()
	q := queue.Configured(ex, st)
	orch := orchestrator.Configured(ad, st)

	filesFlag := lflag.String("files", "", "Comma-delimited list of screenshot files to process")
	dateContext := lflag.String("date-context", "", "Date (YYYY-MM-DD) the screenshots were taken, defaults to today")
	selectBattery := lflag.String("battery", "", "Battery to select after processing, defaults to the first uploaded")
	backupDir := lflag.String("backup-dir", "", "Directory for backups written before clearing a battery")
	clearBattery := lflag.String("clear-battery", "", "Clear this battery's data after processing (backed up first)")
	insights := lflag.Bool("insights", false, "Generate forward-looking insights after processing")
	recommend := lflag.Bool("recommend", false, "Print a power usage recommendation after processing")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctxDate := time.Now()
	if *dateContext != "" {
		d, err := time.ParseInLocation("2006-01-02", *dateContext, time.Local)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid date-context", "error", err)
			os.Exit(1)
		}
		ctxDate = d
	}

	notify := func(n types.Notice) {
		l := log.Ctx(ctx)
		if n.Severity == types.SeverityError {
			l.ErrorContext(ctx, n.Title, slog.String("description", n.Description))
		} else {
			l.InfoContext(ctx, n.Title, slog.String("description", n.Description))
		}
	}
	q.SetNotifier(notify)
	orch.SetNotifier(notify)
	orch.Watch()

	files, err := readFiles(*filesFlag)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read files", "error", err)
		os.Exit(1)
	}

	if len(files) > 0 {
		if err := q.Enqueue(ctx, files, ctxDate); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "upload batch failed", "error", err)
			os.Exit(1)
		}
	}

	if *selectBattery != "" {
		st.Dispatch(ctx, store.SetCurrentBattery{ID: *selectBattery})
	}

	if *insights {
		if err := orch.GenerateInsights(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "insight generation failed", "error", err)
		}
	}
	if *recommend {
		rec, err := orch.RecommendPower(ctx)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "recommendation failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, rec)
		}
	}

	// run any debounced analysis now so the final state carries the
	// summary and alerts for the batch just uploaded
	if len(files) > 0 {
		orch.Flush(ctx)
	}
	orch.Close()

	if *clearBattery != "" {
		if err := st.ClearBattery(ctx, *clearBattery, *backupDir); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to clear battery", "error", err)
			os.Exit(1)
		}
	}

	out, err := json.MarshalIndent(st.State(), "", "  ")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to encode state", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// readFiles loads each path in the comma-delimited list. Blank entries are
// skipped; any unreadable path fails the whole batch up front.
func readFiles(spec string) ([]queue.File, error) {
	var files []queue.File
	for _, path := range strings.Split(spec, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		files = append(files, queue.File{Name: filepath.Base(path), Data: data})
	}
	return files, nil
}
