// Command arbscan runs a single fetch and compute cycle against the
// configured venues and prints the resulting opportunity set. It is meant
// for smoke-checking venue connectivity and quote sanity from a terminal
// without starting the polling daemon or its dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"arbflow/config"
	"arbflow/internal/arbitrage"
	"arbflow/internal/engine"
	"arbflow/internal/model"
	"arbflow/internal/venue"
	"arbflow/logger"
)

type scanResult struct {
	Opportunities []model.Opportunity  `json:"opportunities"`
	Best          *model.Opportunity   `json:"best,omitempty"`
	BestPerCase   arbitrage.BestByCase `json:"best_per_case"`
	Fx            *model.FxRate        `json:"fx,omitempty"`
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithComponent("arbscan").WithError(err).Warn("failed to load .env file")
	}

	configPath := flag.String("config", "config.yml", "Path to configuration file")
	sortKey := flag.String("sort", string(model.SortByProfitPercent), "Sort column: coin, case, buy_price, sell_price, profit, profit_percent, data_age")
	sortDir := flag.String("dir", string(model.SortDescending), "Sort direction: asc or desc")
	onlyPositive := flag.Bool("positive", false, "Show only positive opportunities")
	asJSON := flag.Bool("json", false, "Print the result as JSON instead of a table")
	flag.Parse()

	key, ok := parseSortKey(*sortKey)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown sort column %q\n", *sortKey)
		os.Exit(2)
	}
	dir := model.SortDirection(*sortDir)
	if dir != model.SortAscending && dir != model.SortDescending {
		fmt.Fprintf(os.Stderr, "unknown sort direction %q\n", *sortDir)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithComponent("arbscan").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	// The table is the product here, so keep log output at warning level
	// and in text form regardless of the daemon's configured sink.
	if err := log.Configure("warn", "text", "stdout", cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	sources, fxSource := venue.Build(cfg)
	eng, err := engine.New(cfg.Engine, sources, fxSource)
	if err != nil {
		log.WithComponent("arbscan").WithError(err).Error("failed to initialize engine")
		os.Exit(1)
	}

	type tick struct {
		opps []model.Opportunity
		fx   model.FxRate
	}
	firstTick := make(chan tick, 1)
	eng.OnTick(func(opps []model.Opportunity, fx model.FxRate) {
		select {
		case firstTick <- tick{opps: opps, fx: fx}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(ctx); err != nil {
		log.WithComponent("arbscan").WithError(err).Error("failed to start engine")
		os.Exit(1)
	}

	// The first cycle begins immediately and every fetch is bounded by the
	// adapter timeout, so the tick lands well inside this window.
	wait := time.Duration(cfg.Engine.AdapterTimeoutMs)*time.Millisecond + 5*time.Second
	var got tick
	select {
	case got = <-firstTick:
	case <-time.After(wait):
		eng.Stop()
		log.WithComponent("arbscan").Error("no cycle completed before the deadline")
		os.Exit(1)
	}
	eng.Stop()

	filter := model.DefaultFilter()
	filter.OnlyPositive = *onlyPositive
	ranked := arbitrage.Rank(got.opps, filter, key, dir)

	result := scanResult{
		Opportunities: ranked,
		Best:          arbitrage.Best(got.opps),
		BestPerCase:   arbitrage.BestPerCase(got.opps),
	}
	if got.fx.Valid() {
		fx := got.fx
		result.Fx = &fx
	}

	if *asJSON {
		printJSON(result)
		return
	}
	printTable(result, cfg.Fx.Currency)
}

func parseSortKey(s string) (model.SortKey, bool) {
	switch model.SortKey(s) {
	case model.SortByCoin, model.SortByCase, model.SortByBuyPrice,
		model.SortBySellPrice, model.SortByProfit,
		model.SortByProfitPercent, model.SortByDataAge:
		return model.SortKey(s), true
	}
	return "", false
}

func printJSON(result scanResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
}

func printTable(result scanResult, currency string) {
	if result.Fx != nil {
		fmt.Printf("FX %s per USD mid %.4f fetched %s\n\n",
			currency, result.Fx.Mid, result.Fx.FetchedAt.Format(time.RFC3339))
	} else {
		fmt.Print("FX rate unavailable, cross-currency cases omitted\n\n")
	}

	if len(result.Opportunities) == 0 {
		fmt.Println("no opportunities")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COIN\tCASE\tBUY\tSELL\tPROFIT\tPCT\tAGE\t")
	for _, o := range result.Opportunities {
		marker := ""
		if o.IsPositive {
			marker = " +"
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f @ %s\t%.4f @ %s\t%.4f %s%s\t%.3f%%\t%ds\t\n",
			o.Coin, o.Case, o.BuyPrice, o.BuyVenue, o.SellPrice, o.SellVenue,
			o.Profit, o.ProfitUnit, marker, o.ProfitPercent, o.DataAge)
	}
	w.Flush()

	if result.Best != nil {
		b := result.Best
		fmt.Printf("\nbest: %s %s buy %s sell %s profit %.4f %s (%.3f%%)\n",
			b.Coin, b.Case, b.BuyVenue, b.SellVenue, b.Profit, b.ProfitUnit, b.ProfitPercent)
	}
}
