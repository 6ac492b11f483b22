package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"fleet-tracker/internal/config"
)

// Base coordinate for the random walk (IIT Kharagpur campus, the
// original deployment site).
const (
	simBaseLat = 22.317094
	simBaseLng = 87.314139
)

func simulateCmd() *cobra.Command {
	var (
		vehicles int
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic GPS reports to the inbound channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotenv()
			cfg := config.Load()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()

			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis connect failed (is it running?): %w", err)
			}

			// Each vehicle walks from a slightly offset start point.
			lats := make([]float64, vehicles)
			lngs := make([]float64, vehicles)
			for i := range lats {
				lats[i] = simBaseLat + rand.Float64()*0.01
				lngs[i] = simBaseLng + rand.Float64()*0.01
			}

			fmt.Printf("publishing to %s every %v (%d vehicles)\n", cfg.IngestTopic, interval, vehicles)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			sent := 0
			for {
				select {
				case <-ticker.C:
					i := sent % vehicles
					// ~±5m steps, enough to flip between moving and idling
					lats[i] += (rand.Float64() - 0.5) * 0.0001
					lngs[i] += (rand.Float64() - 0.5) * 0.0001

					payload, _ := json.Marshal(map[string]interface{}{
						"vehicleId": fmt.Sprintf("vehicle%d", i+1),
						"latitude":  lats[i],
						"longitude": lngs[i],
						"timestamp": time.Now().UnixMilli(),
					})

					if err := client.Publish(ctx, cfg.IngestTopic, payload).Err(); err != nil {
						fmt.Printf("publish failed: %v\n", err)
					}

					sent++
					if count > 0 && sent >= count {
						fmt.Printf("done: %d reports published\n", sent)
						return nil
					}

				case <-ctx.Done():
					fmt.Printf("stopped: %d reports published\n", sent)
					return nil
				}
			}
		},
	}

	cmd.Flags().IntVarP(&vehicles, "vehicles", "n", 3, "Number of simulated vehicles")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 2*time.Second, "Delay between reports")
	cmd.Flags().IntVarP(&count, "count", "c", 0, "Stop after this many reports (0 = run until interrupted)")
	return cmd
}
