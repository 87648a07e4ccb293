package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faultlinehq/faultline/internal/config"
	"github.com/faultlinehq/faultline/internal/database"
	"github.com/faultlinehq/faultline/internal/pipeline"
	"github.com/faultlinehq/faultline/internal/server"
	"github.com/faultlinehq/faultline/internal/synth"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "faultline",
	Short:   "Self-learning fault-diagnosis knowledge base",
	Long:    "Faultline diagnoses equipment faults by combining prior solutions, uploaded documentation, web search, and a generative-text service, and learns from every answer.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

func openDB() (*database.DB, error) {
	return database.Open(filepath.Join(cfg.GetDataDir(), "faultline.db"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("faultline", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/faultline/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider and search behavior.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge-base and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Knowledge base:")
		fmt.Printf("  Fault records: %d\n", stats.TotalFaults)
		fmt.Printf("  AI-synthesized: %d\n", stats.SynthesizedFaults)
		fmt.Printf("  Web-discovered: %d\n", stats.DiscoveredFaults)
		fmt.Println("\nSearch sources:")
		fmt.Printf("  Configured: %d\n", stats.TotalSources)
		fmt.Printf("  Active: %d\n", stats.ActiveSources)
		fmt.Println("\nUsage:")
		fmt.Printf("  Queries recorded: %d\n", stats.TotalQueries)
		fmt.Printf("  Documents: %d\n", stats.TotalDocuments)
		fmt.Printf("  Accounts: %d\n", stats.TotalAccounts)
		return nil
	},
}

// --- diagnose command ---

var (
	diagAccount      int64
	diagDevice       string
	diagManufacturer string
	diagModel        string
	diagDescription  string
	diagSymptoms     string
	diagCodes        string
	diagDocs         []int64
	diagSave         bool
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose a device fault",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		resp, err := pipe.Diagnose(context.Background(), &synth.Request{
			AccountID:        diagAccount,
			DeviceType:       diagDevice,
			Manufacturer:     diagManufacturer,
			Model:            diagModel,
			FaultDescription: diagDescription,
			Symptoms:         diagSymptoms,
			ErrorCodes:       diagCodes,
			DocumentIDs:      diagDocs,
			Save:             diagSave,
		})
		if err != nil {
			return err
		}

		d := resp.Diagnosis
		fmt.Println("Diagnosis:")
		fmt.Printf("  Root cause: %s\n", d.RootCause)
		fmt.Printf("  Solution: %s\n", d.Solution)
		if len(d.PartsRequired) > 0 {
			fmt.Printf("  Parts required: %s\n", strings.Join(d.PartsRequired, ", "))
		}
		fmt.Printf("  Estimated repair time: %s\n", d.EstimatedRepairTime)
		fmt.Printf("  Difficulty: %s\n", d.Difficulty)
		if len(d.References) > 0 {
			fmt.Printf("  References: %s\n", strings.Join(d.References, ", "))
		}

		if len(resp.RelatedFaults) > 0 {
			fmt.Println("\nRelated prior faults:")
			for _, rf := range resp.RelatedFaults {
				fmt.Printf("  [%d] %s (similarity %.2f)\n", rf.ID, rf.Description, rf.SimilarityScore)
			}
		}
		if len(resp.OmittedDocumentIDs) > 0 {
			fmt.Printf("\nNote: documents not included (budget or ownership): %v\n", resp.OmittedDocumentIDs)
		}
		if resp.FaultID != nil {
			fmt.Printf("\nSaved to knowledge base as fault [%d]\n", *resp.FaultID)
		}
		return nil
	},
}

func init() {
	diagnoseCmd.Flags().Int64Var(&diagAccount, "account", 0, "Account ID making the request")
	diagnoseCmd.Flags().StringVar(&diagDevice, "device", "", "Device type (e.g. Ventilator)")
	diagnoseCmd.Flags().StringVar(&diagManufacturer, "manufacturer", "", "Device manufacturer")
	diagnoseCmd.Flags().StringVar(&diagModel, "model", "", "Device model")
	diagnoseCmd.Flags().StringVar(&diagDescription, "description", "", "Fault description")
	diagnoseCmd.Flags().StringVar(&diagSymptoms, "symptoms", "", "Observed symptoms")
	diagnoseCmd.Flags().StringVar(&diagCodes, "codes", "", "Error codes shown by the device")
	diagnoseCmd.Flags().Int64SliceVar(&diagDocs, "doc", nil, "Document ID to include as context (repeatable)")
	diagnoseCmd.Flags().BoolVar(&diagSave, "save", true, "Save the diagnosis to the knowledge base")
}

// --- search command ---

var (
	searchAccount      int64
	searchSave         bool
	searchDevice       string
	searchManufacturer string
	searchModel        string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search configured external sources for repair knowledge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		resp, err := pipe.Search(context.Background(), searchAccount, args[0], searchSave,
			searchDevice, searchManufacturer, searchModel)
		if err != nil {
			return err
		}

		fmt.Printf("Attempted %d sources (%d failed)\n\n", len(resp.SourcesAttempted), len(resp.SourcesFailed))
		for i, r := range resp.Results {
			fmt.Printf("[%d] %s (%.2f) — %s\n", i+1, r.Title, r.RelevanceScore, r.URL)
			if len(r.Info.Procedures) > 0 {
				fmt.Printf("    Procedures found: %d\n", len(r.Info.Procedures))
			}
		}
		if len(resp.SavedFaultIDs) > 0 {
			fmt.Printf("\nPromoted %d discoveries to the knowledge base: %v\n", len(resp.SavedFaultIDs), resp.SavedFaultIDs)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int64Var(&searchAccount, "account", 0, "Account ID making the request")
	searchCmd.Flags().BoolVar(&searchSave, "save", false, "Promote discovered procedures into the knowledge base")
	searchCmd.Flags().StringVar(&searchDevice, "device", "", "Device type for promoted records")
	searchCmd.Flags().StringVar(&searchManufacturer, "manufacturer", "", "Manufacturer for promoted records")
	searchCmd.Flags().StringVar(&searchModel, "model", "", "Model for promoted records")
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage external search sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured search sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := db.GetAllSources()
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources configured. Add one with: faultline sources add")
			return nil
		}

		for _, s := range sources {
			icon := " "
			if s.IsActive {
				icon = "*"
			}
			last := "never"
			if s.LastScraped != nil {
				last = *s.LastScraped
			}
			fmt.Printf("  [%d] %s %s (%s)\n        %s\n        last scraped: %s\n",
				s.ID, icon, s.Name, s.SourceType, s.URL, last)
		}
		return nil
	},
}

var (
	sourceName     string
	sourceType     string
	sourceNoRobots bool
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a search source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		name := sourceName
		if name == "" {
			name = args[0]
		}

		id, err := db.InsertSource(name, args[0], sourceType, !sourceNoRobots)
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Println("Source already configured.")
			return nil
		}
		fmt.Printf("Added source [%d]: %s\n", id, name)
		return nil
	},
}

func makeToggleCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id: %s", args[0])
			}
			if err := db.SetSourceActive(id, active); err != nil {
				return err
			}
			fmt.Printf("Source [%d] updated.\n", id)
			return nil
		},
	}
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceName, "name", "", "Display name for the source")
	sourcesAddCmd.Flags().StringVar(&sourceType, "type", "website", "Source type: website, forum, manual, or feed")
	sourcesAddCmd.Flags().BoolVar(&sourceNoRobots, "no-robots", false, "Skip robots.txt checks for this source")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(makeToggleCmd("enable", "Enable a source for automated search", true))
	sourcesCmd.AddCommand(makeToggleCmd("disable", "Disable a source", false))
}

// --- documents command ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage uploaded document text",
}

var docOwner int64

var documentsAddCmd = &cobra.Command{
	Use:   "add [name] [file]",
	Short: "Import already-extracted document text from a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		text, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading document text: %w", err)
		}

		id, err := db.InsertDocument(docOwner, args[0], string(text))
		if err != nil {
			return err
		}
		fmt.Printf("Imported document [%d]: %s (%d chars)\n", id, args[0], len(text))
		return nil
	},
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents for an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		docs, err := db.ListDocuments(docOwner)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("  [%d] %s (%d chars)\n", d.ID, d.Name, len(d.ExtractedText))
		}
		return nil
	},
}

func init() {
	documentsCmd.PersistentFlags().Int64Var(&docOwner, "owner", 0, "Owning account ID")
	documentsCmd.AddCommand(documentsAddCmd)
	documentsCmd.AddCommand(documentsListCmd)
}

// --- accounts command ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage accounts and query balances",
}

var (
	accountRole    string
	accountBalance int
)

var accountsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertAccount(args[0], accountRole, accountBalance)
		if err != nil {
			return err
		}
		fmt.Printf("Created account [%d]: %s (%s, balance %d)\n", id, args[0], accountRole, accountBalance)
		return nil
	},
}

var accountsTopupCmd = &cobra.Command{
	Use:   "topup [id] [amount]",
	Short: "Credit queries to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id: %s", args[0])
		}
		amount, err := strconv.Atoi(args[1])
		if err != nil || amount <= 0 {
			return fmt.Errorf("invalid amount: %s", args[1])
		}

		if err := db.AddBalance(id, amount); err != nil {
			return err
		}
		fmt.Printf("Credited %d queries to account [%d].\n", amount, id)
		return nil
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		accounts, err := db.ListAccounts()
		if err != nil {
			return err
		}
		for _, a := range accounts {
			balance := strconv.Itoa(a.Balance)
			if a.Role == "admin" {
				balance = "unlimited"
			}
			fmt.Printf("  [%d] %s (%s, balance %s)\n", a.ID, a.Name, a.Role, balance)
		}
		return nil
	},
}

func init() {
	accountsAddCmd.Flags().StringVar(&accountRole, "role", "user", "Account role: user or admin")
	accountsAddCmd.Flags().IntVar(&accountBalance, "balance", 0, "Initial query balance")

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsTopupCmd)
	accountsCmd.AddCommand(accountsListCmd)
}

// --- history command ---

var (
	historyAccount int64
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent queries for an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.GetQueryHistory(historyAccount, historyLimit)
		if err != nil {
			return err
		}
		for _, h := range entries {
			kind := "diagnose"
			if h.SearchPerformed {
				kind = "search"
			}
			when := ""
			if h.CreatedAt != nil {
				when = *h.CreatedAt
			}
			fmt.Printf("  [%d] %s %s (cost %d) %q -> faults %v\n", h.ID, when, kind, h.Cost, h.QueryText, h.FaultIDs)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int64Var(&historyAccount, "account", 0, "Account ID")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum entries to show")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		pipe := pipeline.New(cfg, db)
		fmt.Printf("Starting API server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, pipe, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
