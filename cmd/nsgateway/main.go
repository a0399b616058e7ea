package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openelt/nsgateway/pkg/config"
	"github.com/openelt/nsgateway/pkg/format"
	"github.com/openelt/nsgateway/pkg/gateway"
	"github.com/openelt/nsgateway/pkg/logger"
	"github.com/openelt/nsgateway/pkg/query"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "nsgateway",
		Short: "nsgateway - NetSuite query gateway",
		Long: `nsgateway executes NetSuite REST and SuiteQL queries through a signing,
retrying, caching gateway and prints the shaped response. Credentials come
from NETSUITE_* environment variables or a config file.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nsgateway v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var (
		configFile string
		formatName string
		locale     string
		limit      int
		offset     int
		dateStart  string
		dateEnd    string
		ownerID    int
		filter     string
		fields     string
		savedID    string
		rawQuery   string
		expand     bool
		noCache    bool
		logLevel   string
		timeout    time.Duration
	)

	queryCmd := &cobra.Command{
		Use:   "query [entity]",
		Short: "Execute one gateway request and print the shaped response",
		Long: `Execute one request against the configured NetSuite account. The entity
argument names a record type (customer, salesorder, ...); report entities
fan out to multiple upstream queries and return joined flat records.

Example:
  nsgateway query salesorder --date-start 2026-01-01 --format flat --limit 50
  nsgateway query --raw "SELECT id, tranid FROM Transaction WHERE rownum <= 10"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := ""
			if len(args) == 1 {
				entity = args[0]
			}
			if entity == "" && rawQuery == "" {
				return fmt.Errorf("an entity argument or --raw is required")
			}

			spec := query.Spec{
				Entity:        entity,
				OwnerID:       ownerID,
				Limit:         limit,
				Offset:        offset,
				Raw:           rawQuery,
				SavedSearchID: savedID,
				Filter:        filter,
				Fields:        fields,
				Expand:        expand,
				NoCache:       noCache,
			}
			var err error
			if spec.DateStart, err = parseDate(dateStart); err != nil {
				return err
			}
			if spec.DateEnd, err = parseDate(dateEnd); err != nil {
				return err
			}

			fspec, err := format.Parse(formatName, locale)
			if err != nil {
				return err
			}

			svc, err := buildService(configFile, logLevel)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			payload, err := svc.Fetch(ctx, spec, fspec)
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}

	queryCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (credentials default to NETSUITE_* env vars)")
	queryCmd.Flags().StringVarP(&formatName, "format", "f", "full", "Response shape (full, database, airbyte, flat, custom-locale)")
	queryCmd.Flags().StringVar(&locale, "locale", "", "Field-name dictionary for custom-locale format")
	queryCmd.Flags().IntVar(&limit, "limit", 0, "Page size (0 = configured default; values above the maximum are clamped)")
	queryCmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	queryCmd.Flags().StringVar(&dateStart, "date-start", "", "Inclusive transaction date lower bound (YYYY-MM-DD)")
	queryCmd.Flags().StringVar(&dateEnd, "date-end", "", "Inclusive transaction date upper bound (YYYY-MM-DD)")
	queryCmd.Flags().IntVar(&ownerID, "owner", 0, "Scope results to one owning user id (0 = unscoped)")
	queryCmd.Flags().StringVar(&filter, "filter", "", "Upstream-side listing filter expression")
	queryCmd.Flags().StringVar(&fields, "fields", "", "Comma-separated field restriction for listings")
	queryCmd.Flags().StringVar(&savedID, "saved-search", "", "Execute a stored saved search instead of a generated query")
	queryCmd.Flags().StringVar(&rawQuery, "raw", "", "SuiteQL text passed through verbatim")
	queryCmd.Flags().BoolVar(&expand, "expand", false, "Re-fetch each listed record for full detail")
	queryCmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache for this request")
	queryCmd.Flags().StringVar(&logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	queryCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall request timeout")
	root.AddCommand(queryCmd)

	var (
		repConfigFile string
		repFormat     string
		repLocale     string
		repLimit      int
		repOffset     int
		repDateStart  string
		repDateEnd    string
		repOwnerID    int
		repNoCache    bool
		repLogLevel   string
		repTimeout    time.Duration
	)

	reportCmd := &cobra.Command{
		Use:   "report [entity]",
		Short: "Execute a multi-entity report and print the joined records",
		Long: `Execute a report endpoint: headers, lines, and fulfillments are fetched
concurrently and joined into flat records. Defaults to the salesorder
report with the Vietnamese field dictionary.

Example:
  nsgateway report salesorder --date-start 2026-01-01 --date-end 2026-03-31 --owner 77`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := "salesorder"
			if len(args) == 1 {
				entity = args[0]
			}

			spec := query.Spec{
				Entity:  entity,
				OwnerID: repOwnerID,
				Limit:   repLimit,
				Offset:  repOffset,
				NoCache: repNoCache,
			}
			var err error
			if spec.DateStart, err = parseDate(repDateStart); err != nil {
				return err
			}
			if spec.DateEnd, err = parseDate(repDateEnd); err != nil {
				return err
			}

			fspec, err := format.Parse(repFormat, repLocale)
			if err != nil {
				return err
			}

			svc, err := buildService(repConfigFile, repLogLevel)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), repTimeout)
			defer cancel()

			payload, err := svc.Fetch(ctx, spec, fspec)
			if err != nil {
				return err
			}
			return printJSON(payload)
		},
	}

	reportCmd.Flags().StringVarP(&repConfigFile, "config", "c", "", "Path to YAML config file (credentials default to NETSUITE_* env vars)")
	reportCmd.Flags().StringVarP(&repFormat, "format", "f", "custom-locale", "Response shape (full, database, airbyte, flat, custom-locale)")
	reportCmd.Flags().StringVar(&repLocale, "locale", "", "Field-name dictionary for custom-locale format")
	reportCmd.Flags().IntVar(&repLimit, "limit", 0, "Header page size (0 = configured default)")
	reportCmd.Flags().IntVar(&repOffset, "offset", 0, "Header pagination offset")
	reportCmd.Flags().StringVar(&repDateStart, "date-start", "", "Inclusive transaction date lower bound (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&repDateEnd, "date-end", "", "Inclusive transaction date upper bound (YYYY-MM-DD)")
	reportCmd.Flags().IntVar(&repOwnerID, "owner", 0, "Scope results to one owning user id (0 = unscoped)")
	reportCmd.Flags().BoolVar(&repNoCache, "no-cache", false, "Bypass the response cache for this request")
	reportCmd.Flags().StringVar(&repLogLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	reportCmd.Flags().DurationVar(&repTimeout, "timeout", 5*time.Minute, "Overall request timeout")
	root.AddCommand(reportCmd)

	var invEntity string
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(configFile, logLevel)
			if err != nil {
				return err
			}
			removed, before, err := svc.InvalidateCache(invEntity)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"removed":       removed,
				"size_before":   before.Size,
				"hits_before":   before.Hits,
				"misses_before": before.Misses,
			})
		},
	}
	invalidateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	invalidateCmd.Flags().StringVar(&invEntity, "entity", "", "Entity to purge (empty = all entries)")
	invalidateCmd.Flags().StringVar(&logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	root.AddCommand(invalidateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildService wires a gateway service from the config file plus
// NETSUITE_* environment variables.
func buildService(configFile, logLevel string) (*gateway.Service, error) {
	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "json"}); err != nil {
		return nil, err
	}

	cfg := config.NewConfig()
	if configFile != "" {
		if err := config.Load(configFile, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Credential.ConsumerKey == "" {
		cfg.Credential = config.FromEnv().Credential
	}

	log := logger.Get().With(zap.String("component", "nsgateway-cli"))
	return gateway.NewService(cfg, log)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func printJSON(v interface{}) error {
	out, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
