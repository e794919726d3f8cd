package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DecisionRow struct {
	Instrument string
	Action     string
	Confidence float64
	Quality    float64
	Threshold  float64
	DecidedAt  time.Time
}

type OutcomeRow struct {
	Class        string
	Win          bool
	ProfitFactor float64
	ClosedAt     time.Time
}

type ConfidenceBucket struct {
	MinConf float64
	MaxConf float64
	Total   int
	Opens   int
	Skips   int
	AvgQual float64
	sumQual float64
}

func main() {
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "postgres")
	dbName := getEnv("DB_NAME", "decision_engine")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPass, dbHost, dbPort, dbName)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("================================================================================")
	fmt.Println("DECISION JOURNAL ANALYSIS")
	fmt.Println("================================================================================")

	query := `
		SELECT instrument, action, confidence, quality_score, threshold, decided_at
		FROM decisions
		ORDER BY decided_at DESC
	`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	var decisions []DecisionRow
	for rows.Next() {
		var d DecisionRow
		if err := rows.Scan(&d.Instrument, &d.Action, &d.Confidence, &d.Quality, &d.Threshold, &d.DecidedAt); err != nil {
			fmt.Printf("Scan error: %v\n", err)
			continue
		}
		decisions = append(decisions, d)
	}

	if len(decisions) == 0 {
		fmt.Println("\nNo journaled decisions found in database.")
		fmt.Println("Make sure the engine runs with journal_decisions enabled.")
		return
	}

	fmt.Printf("\nAnalyzing %d journaled decisions...\n\n", len(decisions))

	// Entry funnel: how many evaluations cleared each stage
	var opens, skips, lifecycle int
	for _, d := range decisions {
		switch d.Action {
		case "OPEN":
			opens++
		case "SKIP":
			skips++
		default:
			lifecycle++
		}
	}
	fmt.Printf("Entry funnel: %d evaluated, %d opened (%.1f%%), %d skipped, %d lifecycle actions\n\n",
		len(decisions), opens, pct(opens, opens+skips), skips, lifecycle)

	// Bucket entry decisions by signal confidence
	buckets := []ConfidenceBucket{
		{MinConf: 0, MaxConf: 40},
		{MinConf: 40, MaxConf: 50},
		{MinConf: 50, MaxConf: 60},
		{MinConf: 60, MaxConf: 70},
		{MinConf: 70, MaxConf: 80},
		{MinConf: 80, MaxConf: 101},
	}

	for _, d := range decisions {
		if d.Action != "OPEN" && d.Action != "SKIP" {
			continue
		}
		for i := range buckets {
			if d.Confidence >= buckets[i].MinConf && d.Confidence < buckets[i].MaxConf {
				buckets[i].Total++
				buckets[i].sumQual += d.Quality
				if d.Action == "OPEN" {
					buckets[i].Opens++
				} else {
					buckets[i].Skips++
				}
				break
			}
		}
	}
	for i := range buckets {
		if buckets[i].Total > 0 {
			buckets[i].AvgQual = buckets[i].sumQual / float64(buckets[i].Total)
		}
	}

	fmt.Println("┌───────────────┬────────┬────────┬────────┬───────────┬───────────┐")
	fmt.Println("│ Confidence    │ Total  │ Opens  │ Skips  │ Open Rate │ Avg Qual  │")
	fmt.Println("├───────────────┼────────┼────────┼────────┼───────────┼───────────┤")
	for _, b := range buckets {
		fmt.Printf("│ %3.0f%% - %3.0f%%   │ %6d │ %6d │ %6d │ %8.1f%% │ %+9.3f │\n",
			b.MinConf, b.MaxConf, b.Total, b.Opens, b.Skips,
			pct(b.Opens, b.Total), b.AvgQual)
	}
	fmt.Println("└───────────────┴────────┴────────┴────────┴───────────┴───────────┘")

	analyzeOutcomes(ctx, pool)
}

// analyzeOutcomes summarizes the recorded trade outcomes per instrument class
func analyzeOutcomes(ctx context.Context, pool *pgxpool.Pool) {
	query := `
		SELECT instrument_class, win, profit_factor, closed_at
		FROM trade_outcomes
		ORDER BY closed_at DESC
	`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		fmt.Printf("\nOutcome query failed: %v\n", err)
		return
	}
	defer rows.Close()

	type classStats struct {
		total int
		wins  int
		sumPF float64
	}
	stats := make(map[string]*classStats)

	for rows.Next() {
		var o OutcomeRow
		if err := rows.Scan(&o.Class, &o.Win, &o.ProfitFactor, &o.ClosedAt); err != nil {
			fmt.Printf("Scan error: %v\n", err)
			continue
		}
		s, ok := stats[o.Class]
		if !ok {
			s = &classStats{}
			stats[o.Class] = s
		}
		s.total++
		s.sumPF += o.ProfitFactor
		if o.Win {
			s.wins++
		}
	}

	if len(stats) == 0 {
		fmt.Println("\nNo trade outcomes recorded yet.")
		return
	}

	fmt.Println("\n================================================================================")
	fmt.Println("OUTCOMES BY INSTRUMENT CLASS")
	fmt.Println("================================================================================")
	for class, s := range stats {
		fmt.Printf("\n%s: %d outcomes, win rate %.1f%%, avg profit factor %.2f\n",
			class, s.total, pct(s.wins, s.total), s.sumPF/float64(s.total))
	}
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
