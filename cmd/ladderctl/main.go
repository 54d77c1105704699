// Command ladderctl edits the ladder, the trend log and the disabled flag of
// a stopped or running bot. The bot reads these at startup, so changes take
// effect on its next start.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"levelBot/internal/adapters/logger"
	"levelBot/internal/adapters/sqlite"
	"levelBot/internal/domain"
)

const usage = `usage: ladderctl [flags] <command> [args]

commands:
  levels                list the ladder
  add-level <price>     add a price level
  trends                list the trend log
  trend <UP|DOWN>       append a normal trend
  enable                clear the disabled flag
  disable               stop the engine from trading
  logs [n]              show the n most recent log entries (default 20)

flags:
`

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOr("DB_PATH", "./data/levelbot.db"), "database file")
	symbol := flag.String("symbol", envOr("SYMBOL", "BTCUSDT"), "symbol the bot trades")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: *dbPath,
		Symbol: strings.ToUpper(*symbol),
		Logger: logger.NewZeroLogger(logger.Options{Level: logger.LevelWarn}),
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database: %v", err)
	}
	defer repo.Close()

	if err := run(context.Background(), repo, flag.Args()); err != nil {
		repo.Close()
		log.Fatalf("ladderctl: %v", err)
	}
}

func run(ctx context.Context, repo *sqlite.Repository, args []string) error {
	out := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer out.Flush()

	switch cmd := args[0]; cmd {
	case "levels":
		levels, err := repo.ListLevels(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "ID\tPRICE")
		for _, l := range levels {
			fmt.Fprintf(out, "%d\t%v\n", l.ID, l.Value)
		}

	case "add-level":
		if len(args) != 2 {
			return fmt.Errorf("add-level needs a price")
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil || value <= 0 {
			return fmt.Errorf("invalid price %q", args[1])
		}
		id, err := repo.CreateLevel(ctx, value)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "level %v has id %d\n", value, id)

	case "trends":
		trends, err := repo.ListTrends(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "ID\tDIRECTION\tKIND\tCREATED")
		for _, t := range trends {
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", t.ID, t.Direction, t.Kind, t.CreatedAt.Format(time.RFC3339))
		}

	case "trend":
		if len(args) != 2 {
			return fmt.Errorf("trend needs UP or DOWN")
		}
		dir := domain.TrendDirection(strings.ToUpper(args[1]))
		if dir != domain.TrendUp && dir != domain.TrendDown {
			return fmt.Errorf("invalid trend direction %q", args[1])
		}
		t := domain.Trend{Direction: dir, Kind: domain.TrendNormal, CreatedAt: time.Now().UTC()}
		id, err := repo.CreateTrend(ctx, &t)
		if err != nil {
			return err
		}
		if err := repo.CreateLog(ctx, fmt.Sprintf("Trend set to %s by operator", dir), domain.LogState); err != nil {
			return err
		}
		fmt.Fprintf(out, "trend %s appended with id %d\n", dir, id)

	case "enable", "disable":
		disabled := cmd == "disable"
		if err := repo.SetDisabled(ctx, disabled); err != nil {
			return err
		}
		if err := repo.CreateLog(ctx, fmt.Sprintf("Engine %sd by operator", cmd), domain.LogState); err != nil {
			return err
		}
		fmt.Fprintf(out, "engine %sd\n", cmd)

	case "logs":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", args[1])
			}
			limit = n
		}
		entries, err := repo.RecentLogs(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "TIME\tKIND\tMESSAGE")
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, e.Message)
		}

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
