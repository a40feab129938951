// Command maemiobench drives a configurable number of worker goroutines
// against a shared Engine and reports commit throughput, abort rate, and
// each worker's contention-manager backoff mean,
// formatted for a terminal with dustin/go-humanize.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/maemio/maemio"
	"github.com/maemio/maemio/internal/record"
)

var (
	flagWorkers  = flag.Int("workers", 8, "number of concurrent worker goroutines")
	flagKeys     = flag.Int("keys", 64, "number of records contended over")
	flagDuration = flag.Duration("duration", 5*time.Second, "how long to run the benchmark")
	flagRetryCap = flag.Int("retry-cap", 16, "Config.RetryCap for the benchmark engine")
)

func main() {
	flag.Parse()

	cfg := maemio.DefaultConfig()
	cfg.ThreadCount = *flagWorkers
	cfg.RetryCap = *flagRetryCap

	eng, err := maemio.NewEngine(cfg)
	if err != nil {
		fmt.Println("maemiobench:", err)
		return
	}
	eng.StartMaintenance()
	defer eng.Shutdown(context.Background())

	ids := seedRecords(eng, *flagKeys)

	ctx, cancel := context.WithTimeout(context.Background(), *flagDuration)
	defer cancel()

	var exhausted atomic.Uint64
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < *flagWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + 1))
			for ctx.Err() == nil {
				id := ids[rng.Intn(len(ids))]
				err := eng.Execute(ctx, workerID, func(tx *maemio.Tx) error {
					payload, err := tx.Read(id)
					if err != nil {
						return err
					}
					return tx.Write(id, bump(payload))
				})
				if err == maemio.ErrRetryExhausted {
					exhausted.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	stats := eng.Stats()
	report(stats, elapsed, exhausted.Load())
}

func seedRecords(eng *maemio.Engine, n int) []record.ID {
	ids := make([]record.ID, n)
	for i := range ids {
		_ = eng.Execute(context.Background(), 0, func(tx *maemio.Tx) error {
			id, err := tx.Create([]byte{0})
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	return ids
}

func bump(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{1}
	}
	return []byte{payload[0] + 1}
}

func report(stats maemio.EngineStats, elapsed time.Duration, exhausted uint64) {
	rate := float64(stats.Committed) / elapsed.Seconds()

	fmt.Printf("duration:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("committed:       %s\n", humanize.Comma(int64(stats.Committed)))
	fmt.Printf("aborted:         %s\n", humanize.Comma(int64(stats.Aborted)))
	fmt.Printf("retry exhausted: %s\n", humanize.Comma(int64(exhausted)))
	fmt.Printf("throughput:      %s tx/s\n", humanize.Comma(int64(rate)))
	for i, mean := range stats.BackoffMeanMicros {
		fmt.Printf("worker %2d backoff mean: %s\n", i, humanize.SIWithDigits(mean*1e-6, 2, "s"))
	}
}
