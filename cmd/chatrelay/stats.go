package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/chatrelay/pkg/client"
)

func newStatsCmd() *cobra.Command {
	var (
		addr   string
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and token usage statistics of a running relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			stats, err := client.New(addr, 10*time.Second).Stats(ctx, recent)
			if err != nil {
				return err
			}

			c := stats.Cache
			fmt.Printf("Cache: %d/%d entries, %d hits, %d misses, %d evictions\n",
				c.Entries, c.Capacity, c.Hits, c.Misses, c.Evictions)
			fmt.Printf("Tokens in the last hour: %d\n\n", stats.TokensLastHour)

			if len(stats.Usage) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tREQUESTS\tCACHE HITS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, s := range stats.Usage {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
					s.Model, s.RequestCount, s.CacheHits, s.TotalPrompt, s.TotalCompletion, s.TotalTokens)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(stats.Recent) == 0 {
				return nil
			}
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tREQUEST ID\tMODEL\tCACHE\tTURNS\tTOTAL")
			for _, r := range stats.Recent {
				source := "miss"
				if r.CacheHit {
					source = "hit"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					r.CreatedAt.Format("2006-01-02T15:04:05"), r.RequestID, r.Model, source, r.Turns, r.TotalTokens)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "http://localhost:3000", "relay base URL")
	cmd.Flags().IntVar(&recent, "recent", 0, "also list the N most recent requests")
	return cmd
}
