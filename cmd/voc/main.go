// Package main provides the voc CLI for one-shot complaint analysis and
// corpus maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/geonhos/poc-voc-auto-processing/internal/database"
	"github.com/geonhos/poc-voc-auto-processing/internal/llm"
	"github.com/geonhos/poc-voc-auto-processing/internal/logstore"
	"github.com/geonhos/poc-voc-auto-processing/internal/rag"
	"github.com/geonhos/poc-voc-auto-processing/internal/registry"
	"github.com/geonhos/poc-voc-auto-processing/internal/solver"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	jsonOutput  bool
	maxRetries  int
	scenarioDir string
	registryLoc string
)

var rootCmd = &cobra.Command{
	Use:   "voc",
	Short: "VOC complaint triage",
	Long: `Analyzes customer complaints against logs, system metadata, and
previously resolved cases, and proposes a classified remediation with a
calibrated confidence score.`,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|text>",
	Short: "Analyze one complaint without touching the ticket store",
	Long: `Runs the analysis pipeline for a single complaint.

The argument is a path to a text file, or the complaint text itself when no
such file exists. Similar-case retrieval uses the corpus in DATABASE_URL
when set; without it the analysis runs on logs and heuristics alone.

Examples:
  voc analyze ./complaint.txt
  voc analyze "Payment keeps failing with a timeout at checkout"
  voc analyze ./complaint.txt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load resolved cases from a JSON file into the knowledge corpus",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voc %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	analyzeCmd.Flags().IntVar(&maxRetries, "max-retries", solver.DefaultMaxRetries, "Retries after the initial attempt")
	analyzeCmd.Flags().StringVar(&scenarioDir, "scenarios", "scenarios", "Log scenario directory")
	analyzeCmd.Flags().StringVar(&registryLoc, "registry", "", "System registry YAML file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if rootCmd.Execute() != nil {
		os.Exit(1)
	}
}

// noopSearcher serves analyses without a corpus connection.
type noopSearcher struct{}

func (noopSearcher) SearchSimilar(context.Context, string, int, float64) ([]rag.SimilarCase, error) {
	return nil, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rawVOC := args[0]
	if data, err := os.ReadFile(rawVOC); err == nil {
		rawVOC = string(data)
	}
	rawVOC = strings.TrimSpace(rawVOC)
	if rawVOC == "" {
		return fmt.Errorf("complaint text is empty")
	}

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	client, err := llm.NewGoogleClient(apiKey)
	if err != nil {
		return err
	}

	logs, err := logstore.LoadDir(scenarioDir)
	if err != nil {
		return fmt.Errorf("failed to load log scenarios: %w", err)
	}

	systems := registry.Default()
	if registryLoc != "" {
		systems, err = registry.LoadFile(registryLoc)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()

	var searcher solver.SimilarSearcher = noopSearcher{}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		db, err := database.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		searcher = rag.NewRetriever(client, db)
	} else {
		fmt.Fprintln(os.Stderr, "DATABASE_URL not set, skipping similar-case retrieval")
	}

	s := solver.New(client, logs, searcher, systems)

	interactive := isatty.IsTerminal(os.Stderr.Fd())
	var spin *spinner.Spinner
	if interactive {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = " Analyzing complaint..."
		spin.Start()
	} else {
		fmt.Fprintln(os.Stderr, "Analyzing complaint...")
	}

	out := s.Solve(ctx, solver.Input{
		TicketRef:  fmt.Sprintf("VOC-CLI-%s", time.Now().Format("20060102-150405")),
		RawVOC:     rawVOC,
		ReceivedAt: time.Now(),
	}, maxRetries)

	if spin != nil {
		spin.Stop()
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	printResult(out)
	return nil
}

func printResult(out *solver.Output) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	header := strings.ToUpper(out.ProblemTypePrimary)
	if out.ProblemTypeSecondary != "" {
		header += " > " + out.ProblemTypeSecondary
	}
	if out.AffectedSystem != "" {
		header += " in " + out.AffectedSystem
	}
	_, _ = bold.Println(header)
	fmt.Println()

	printConfidenceBar(out.Confidence.Overall)
	_, _ = dim.Printf("  routing: %s\n", out.State)
	fmt.Println()

	_, _ = bold.Println("ROOT CAUSE")
	fmt.Println(out.RootCauseAnalysis)
	fmt.Println()

	_, _ = bold.Println("EVIDENCE")
	fmt.Println(out.EvidenceSummary)
	if out.LogSummary != "" {
		_, _ = dim.Printf("  logs: %s\n", out.LogSummary)
	}
	if len(out.SimilarCasesUsed) > 0 {
		_, _ = dim.Printf("  similar cases: %s\n", strings.Join(out.SimilarCasesUsed, ", "))
	}
	fmt.Println()

	_, _ = bold.Println("PROPOSED ACTION")
	fmt.Printf("%s (%s)\n", out.ActionProposal.Title, out.ActionProposal.ActionType)
	fmt.Println(out.ActionProposal.Description)
	if out.ActionProposal.TargetSystem != "" {
		_, _ = dim.Printf("  target: %s", out.ActionProposal.TargetSystem)
		if out.ActionProposal.ContactInfo != "" {
			_, _ = dim.Printf(" (%s)", out.ActionProposal.ContactInfo)
		}
		fmt.Println()
	}
	if out.ActionProposal.CodeLocation != "" {
		_, _ = dim.Printf("  location: %s\n", out.ActionProposal.CodeLocation)
	}
}

func printConfidenceBar(overall float64) {
	const barWidth = 24
	percent := int(overall * 100)
	filled := percent * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}

	var barColor *color.Color
	switch {
	case overall >= solver.ConfidenceThreshold:
		barColor = color.New(color.FgGreen)
	case overall >= 0.4:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgRed)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Printf("  Confidence: %d%% ", percent)
	_, _ = barColor.Println(bar)
}

type seedEntry struct {
	TicketRef      string  `json:"ticket_ref"`
	Content        string  `json:"content"`
	Summary        string  `json:"summary"`
	PrimaryType    string  `json:"primary_type"`
	SecondaryType  string  `json:"secondary_type"`
	AffectedSystem string  `json:"affected_system"`
	Resolution     string  `json:"resolution"`
	Confidence     float64 `json:"confidence"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var entries []seedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("invalid seed file: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}

	client, err := llm.NewGoogleClient(apiKey)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := database.Migrate(dbURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	db, err := database.New(ctx, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	retriever := rag.NewRetriever(client, db)

	seeded := 0
	for _, e := range entries {
		stored, err := retriever.StoreResolvedCase(ctx, rag.ResolvedCase{
			TicketRef:      e.TicketRef,
			Content:        e.Content,
			Summary:        e.Summary,
			PrimaryType:    e.PrimaryType,
			SecondaryType:  e.SecondaryType,
			AffectedSystem: e.AffectedSystem,
			Resolution:     e.Resolution,
			Overall:        e.Confidence,
			ResolvedAt:     time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", e.TicketRef, err)
		}
		if stored {
			seeded++
		} else {
			fmt.Fprintf(os.Stderr, "skipping %s: confidence %.2f below threshold\n", e.TicketRef, e.Confidence)
		}
	}

	fmt.Printf("Seeded %d of %d cases\n", seeded, len(entries))
	return nil
}
