// Command harvester drives the product specification convergence engine
// over one category's queue, or a single product, from the command line.
// Its command structure follows the teacher pack's cobra CLIs (e.g.
// skillpm's cmd/skillpm/main.go): one root command, persistent flags for
// config/json output, subcommands per operation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/specconverge"
	"github.com/brunobiangulo/specconverge/collab"
	"github.com/brunobiangulo/specconverge/llm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Converge product specifications from harvested sources into normalized records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (JSON, YAML or TOML)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")

	cmd.AddCommand(newRunCmd(&configPath, &jsonOutput))
	cmd.AddCommand(newQueueCmd(&configPath, &jsonOutput))

	return cmd
}

func newRunCmd(configPath *string, jsonOutput *bool) *cobra.Command {
	var category string
	var productID string
	var artifactsDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the convergence loop for one product",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := harvester.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			seedPath := fmt.Sprintf("%s/%s/products/%s.json", cfg.LocalInputRoot, category, productID)
			data, err := os.ReadFile(seedPath)
			if err != nil {
				return fmt.Errorf("reading product seed %s: %w", seedPath, err)
			}
			var product harvester.Product
			if err := json.Unmarshal(data, &product); err != nil {
				return fmt.Errorf("parsing product seed: %w", err)
			}

			router, err := newLLMRouter()
			if err != nil {
				return fmt.Errorf("building llm router: %w", err)
			}

			h := &cliHarvester{
				fetcher: collab.NewHTTPFetcher("specconverge-harvester/1.0"),
				pdf:     &collab.PDFExtractorAdapter{},
				sheets:  &collab.SpreadsheetReaderAdapter{},
				llm:     router,
			}

			engine, err := harvester.New(cfg, artifactsDir, h)
			if err != nil {
				return fmt.Errorf("creating engine: %w", err)
			}
			defer engine.Close()

			ctx, cancel := signalContext()
			defer cancel()

			result, err := engine.RunProduct(ctx, product)
			if err != nil {
				return fmt.Errorf("running product: %w", err)
			}

			if *jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			fmt.Printf("run_id=%s validated=%v rounds=%d stop_reason=%s\n",
				result.Summary.RunID, result.Summary.Validated, result.Summary.Rounds, result.Summary.StopReason)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category name")
	cmd.Flags().StringVar(&productID, "product-id", "", "product id")
	cmd.Flags().StringVar(&artifactsDir, "artifacts", "", "path to compiled category artifacts directory")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("product-id")
	cmd.MarkFlagRequired("artifacts")
	return cmd
}

func newQueueCmd(configPath *string, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Inspect and manage a category's product queue"}
	cmd.AddCommand(newQueueListCmd(configPath, jsonOutput))
	return cmd
}

func newQueueListCmd(configPath *string, jsonOutput *bool) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending queue entries for a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := harvester.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			queuePath := fmt.Sprintf("%s/_queue/%s/state.json", cfg.LocalOutputRoot, category)
			store, err := harvester.NewQueueStore(queuePath, category)
			if err != nil {
				return fmt.Errorf("opening queue: %w", err)
			}
			pending := store.Pending()
			if *jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(pending)
			}
			for _, p := range pending {
				fmt.Printf("%s\tpriority=%d\tretries=%d\n", p.ProductID, p.Priority, p.RetryCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category name")
	cmd.MarkFlagRequired("category")
	return cmd
}

func newLLMRouter() (*collab.Router, error) {
	provider := os.Getenv("HARVESTER_LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}
	return collab.NewRouter(collab.RouterConfig{
		Provider: llm.Config{
			Provider: provider,
			BaseURL:  os.Getenv("HARVESTER_LLM_BASE_URL"),
			APIKey:   os.Getenv("HARVESTER_LLM_API_KEY"),
			Model:    os.Getenv("HARVESTER_LLM_MODEL"),
		},
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}
