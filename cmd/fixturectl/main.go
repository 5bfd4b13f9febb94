// fixturectl manages HTTP replay fixture databases recorded by the
// gatherer's replay harness.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeweave/marketdata/internal/replay"
	"github.com/tradeweave/marketdata/internal/version"
)

var fixturePath string

var rootCmd = &cobra.Command{
	Use:     "fixturectl",
	Short:   "Inspect and maintain HTTP replay fixture databases",
	Version: version.String(),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded request/response pairs",
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fixture database statistics",
	RunE:  runStats,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete recordings older than the given age",
	RunE:  runPrune,
}

var pruneAge time.Duration

func init() {
	rootCmd.PersistentFlags().StringVarP(&fixturePath, "fixtures", "f", "fixtures.db", "path to fixture database")
	pruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "prune recordings older than this age")

	rootCmd.AddCommand(listCmd, statsCmd, pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore() (*replay.Store, error) {
	if _, err := os.Stat(fixturePath); err != nil {
		return nil, fmt.Errorf("fixture database %s: %w", fixturePath, err)
	}
	return replay.OpenStore(fixturePath)
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	recs, err := store.List()
	if err != nil {
		return err
	}

	for _, rec := range recs {
		fmt.Printf("%6d  %-6s %3d  %s  %s\n",
			rec.ID, rec.Method, rec.StatusCode,
			rec.RecordedAt.Format(time.RFC3339), rec.URL)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	recs, err := store.List()
	if err != nil {
		return err
	}

	byMethod := make(map[string]int)
	var oldest, newest time.Time
	var bodyBytes int
	for i, rec := range recs {
		byMethod[rec.Method]++
		bodyBytes += len(rec.RespBody)
		if i == 0 || rec.RecordedAt.Before(oldest) {
			oldest = rec.RecordedAt
		}
		if rec.RecordedAt.After(newest) {
			newest = rec.RecordedAt
		}
	}

	fmt.Printf("recordings: %d\n", len(recs))
	for method, n := range byMethod {
		fmt.Printf("  %-6s %d\n", method, n)
	}
	fmt.Printf("response bytes: %d\n", bodyBytes)
	if len(recs) > 0 {
		fmt.Printf("oldest: %s\n", oldest.Format(time.RFC3339))
		fmt.Printf("newest: %s\n", newest.Format(time.RFC3339))
	}
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-pruneAge)
	n, err := store.PruneBefore(cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("pruned %d recordings older than %s\n", n, cutoff.Format(time.RFC3339))
	return nil
}
