package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/finance-admin/internal/app"
	"github.com/dvloznov/finance-admin/internal/client"
	"github.com/dvloznov/finance-admin/internal/config"
	"github.com/dvloznov/finance-admin/internal/domain"
	"github.com/dvloznov/finance-admin/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	switch os.Args[1] {
	case "import":
		runImport(log, cfg)
	case "upload":
		runUpload(log, cfg)
	case "inspect":
		runInspect(log, cfg)
	case "delete-user":
		runDeleteUser(log, cfg)
	case "stats":
		runStats(log, cfg)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Admin CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import       Import a ZIP archive directly into the configured store")
	fmt.Println("  upload       Upload a ZIP archive through the API")
	fmt.Println("  inspect      Show a user and their transactions")
	fmt.Println("  delete-user  Delete a user (asks for confirmation)")
	fmt.Println("  stats        Show dashboard totals")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func newClient(log zerolog.Logger, baseURL string) *client.Client {
	c, err := client.New(baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid API base URL")
	}
	return c
}

// exitOnAPIError prints the server's message for API errors, which are the
// operator's to fix, and logs anything else.
func exitOnAPIError(log zerolog.Logger, err error, msg string) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "%s: %s (HTTP %d)\n", msg, apiErr.Message, apiErr.StatusCode)
		if len(apiErr.Issues) > 0 {
			fmt.Fprintf(os.Stderr, "issues: %s\n", apiErr.Issues)
		}
		os.Exit(1)
	}
	log.Fatal().Err(err).Msg(msg)
}

func runImport(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the ZIP archive")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL URL (or set DATABASE_URL env)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli import -file PATH")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("Error: --database-url or DATABASE_URL is required; an in-memory import would be discarded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := app.OpenStore(ctx, cfg, app.Hostname("cli"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer repo.Close()

	avatars, err := app.OpenAvatarStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open avatar store")
	}
	defer avatars.Close()

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to stat archive")
	}

	importer := app.NewImporter(cfg, repo, avatars, nil)
	result, err := importer.Import(ctx, f, info.Size(), filepath.Base(*filePath))
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	printResult(result)
}

func runUpload(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the ZIP archive")
	baseURL := fs.String("api", cfg.APIBaseURL, "API base URL (or set API_BASE_URL env)")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH")
	}

	f, err := os.Open(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open archive")
	}
	defer f.Close()

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("file", *filePath).
		Str("api", *baseURL).
		Msg("Uploading archive")

	result, err := newClient(log, *baseURL).UploadArchive(ctx, *filePath, f)
	if err != nil {
		exitOnAPIError(log, err, "Upload failed")
	}

	printResult(result)
}

func runInspect(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	userID := fs.String("user", "", "User ID to inspect")
	baseURL := fs.String("api", cfg.APIBaseURL, "API base URL (or set API_BASE_URL env)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	c := newClient(log, *baseURL)

	var (
		user *domain.User
		txs  []*domain.Transaction
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		user, err = c.GetUser(ctx, *userID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, err = c.ListUserTransactions(ctx, *userID)
		return err
	})
	if err := g.Wait(); err != nil {
		exitOnAPIError(log, err, "Inspect failed")
	}

	fmt.Printf("User: %s %s (%s)\n", user.FirstName, user.LastName, user.UserID)
	if user.Birthday != nil {
		fmt.Printf("  Birthday: %s\n", user.Birthday)
	}
	if user.Country != "" {
		fmt.Printf("  Country:  %s\n", user.Country)
	}
	if user.Phone != "" {
		fmt.Printf("  Phone:    %s\n", user.Phone)
	}
	if user.Avatar != "" {
		fmt.Printf("  Avatar:   %s\n", user.Avatar)
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp.Before(txs[j].Timestamp) })

	fmt.Printf("\nTransactions (%d):\n", len(txs))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tTIMESTAMP\tAMOUNT\tCURRENCY\tMESSAGE")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.Reference, tx.Timestamp.Format(time.RFC3339), tx.Amount, tx.Currency, tx.Message)
	}
	w.Flush()
}

func runDeleteUser(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("delete-user", flag.ExitOnError)
	userID := fs.String("user", "", "User ID to delete")
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	cascade := fs.String("cascade", "", "Override the server delete policy: true or false")
	baseURL := fs.String("api", cfg.APIBaseURL, "API base URL (or set API_BASE_URL env)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	var cascadeOpt *bool
	switch *cascade {
	case "":
	case "true", "false":
		v := *cascade == "true"
		cascadeOpt = &v
	default:
		log.Fatal().Str("cascade", *cascade).Msg("Error: --cascade must be true or false")
	}

	confirm := client.PromptConfirmer(os.Stdin, os.Stdout)
	if *yes {
		confirm = client.AlwaysConfirm
	}

	err := newClient(log, *baseURL).DeleteUser(context.Background(), confirm, *userID, cascadeOpt)
	if errors.Is(err, client.ErrNotConfirmed) {
		fmt.Println("Aborted.")
		return
	}
	if err != nil {
		exitOnAPIError(log, err, "Delete failed")
	}

	fmt.Printf("Deleted user %s.\n", *userID)
}

func runStats(log zerolog.Logger, cfg *config.Config) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	baseURL := fs.String("api", cfg.APIBaseURL, "API base URL (or set API_BASE_URL env)")
	fs.Parse(os.Args[2:])

	s, err := newClient(log, *baseURL).Stats(context.Background())
	if err != nil {
		exitOnAPIError(log, err, "Stats failed")
	}

	fmt.Printf("Users:        %d\n", s.TotalUsers)
	fmt.Printf("Transactions: %d\n", s.TotalTransactions)
	fmt.Printf("Total amount: %s\n", s.TotalAmount)

	currencies := make([]string, 0, len(s.TotalsByCurrency))
	for cur := range s.TotalsByCurrency {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)
	for _, cur := range currencies {
		fmt.Printf("  %-8s %s\n", cur, s.TotalsByCurrency[cur])
	}
}

func printResult(r *domain.UploadResult) {
	fmt.Println(r.Message)
	fmt.Printf("  Import ID:    %s\n", r.ImportID)
	fmt.Printf("  User:         %s (created: %t)\n", r.UserID, r.UserCreated)
	fmt.Printf("  Transactions: %d processed, %d new\n", r.TransactionsProcessed, r.TransactionsCreated)
	if len(r.DuplicateReferences) > 0 {
		fmt.Printf("  Duplicates:   %v\n", r.DuplicateReferences)
	}
	if r.AvatarProcessed {
		fmt.Printf("  Avatar:       %s\n", r.Avatar)
	}
}
