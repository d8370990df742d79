// cmd/tools/context-preview/main.go
//
// context-preview builds the deal context for one deal and prints the
// generated prompts. It reads either a YAML fixture or the configured store.
//
//	go run ./cmd/tools/context-preview -fixture configs/fixtures/demo.yaml -tenant acme -deal d1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"deal-coach/internal/common/config"
	"deal-coach/internal/common/logger"
	"deal-coach/internal/dealcontext"
	"deal-coach/internal/insights"
	"deal-coach/internal/models"
	"deal-coach/internal/prompt"
	"deal-coach/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fixturePath = flag.String("fixture", "", "YAML fixture of tenant documents (overrides -config)")
		configPath  = flag.String("config", "", "Config file for a live store (default: configs/config.yaml)")
		tenantID    = flag.String("tenant", "", "Tenant ID (required)")
		dealID      = flag.String("deal", "", "Deal ID (required)")
		userID      = flag.String("user", "preview", "Requesting user ID")
		message     = flag.String("message", "", "Optional user message to enhance")
		budget      = flag.Int("budget", 0, "Token budget for system prompt insights (0 = unlimited)")
		dumpJSON    = flag.Bool("json", false, "Print the aggregated context as JSON")
		timeout     = flag.Duration("timeout", 30*time.Second, "Overall timeout")
		verbose     = flag.Bool("v", false, "Log branch outcomes")
		refresh     = flag.Bool("refresh", false, "Drop cached learning data and deal tone settings before reading")
	)
	flag.Parse()

	if *tenantID == "" || *dealID == "" {
		fmt.Fprintln(os.Stderr, "Error: -tenant and -deal are required")
		flag.Usage()
		return 1
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	log := logger.NewStructured(level, "console")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	docs, err := openStore(ctx, *fixturePath, *configPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer docs.Close()

	if *refresh {
		err := errors.Join(
			docs.Invalidate(ctx, *tenantID, "ai_learning", "global"),
			docs.Invalidate(ctx, *tenantID, "tone_settings", *dealID),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cache refresh failed: %v\n", err)
		}
	}

	agg := dealcontext.NewAggregator(docs.Store, log, nil, dealcontext.Options{MaxConcurrentFetches: 8})
	dc := agg.GetEnhancedDealContext(ctx, *dealID, *tenantID, *userID)

	if *dumpJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(dc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	printPrompts(dc, *message, *budget)
	if dc.Deal == nil {
		return 2
	}
	return 0
}

func openStore(ctx context.Context, fixturePath, configPath string, log logger.Logger) (*store.Opened, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case fixturePath != "":
		cfg = &config.Config{Store: config.StoreConfig{Backend: config.BackendMemory, FixturePath: fixturePath}}
	case configPath != "":
		cfg, err = config.LoadFromFile(configPath)
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg, log)
}

func printPrompts(dc *models.EnhancedDealContext, message string, budget int) {
	ins := insights.GenerateContextInsights(dc)

	var opts []prompt.Option
	if budget > 0 {
		opts = append(opts, prompt.WithTokenBudget(budget))
	}

	section("CONTEXT SUMMARY", prompt.GenerateContextSummary(dc))
	section("SYSTEM PROMPT", prompt.GenerateEnhancedSystemPrompt(dc, ins, opts...))
	section("TONE", prompt.GenerateToneAwareInstructions(dc))
	section("RECOMMENDATIONS", prompt.GeneratePersonalizedRecommendations(dc))
	if message != "" {
		section("USER PROMPT", prompt.EnhanceUserPrompt(message, dc))
	}

	fmt.Printf("run %s: %d insights, %d branches", dc.Report.RunID, ins.Count(), len(dc.Report.Branches))
	if failed := dc.Report.Failed(); len(failed) > 0 {
		fmt.Printf(", failed: %v", failed)
	}
	fmt.Println()
}

func section(title, body string) {
	fmt.Printf("=== %s ===\n%s\n\n", title, body)
}
