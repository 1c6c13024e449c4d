package jobs

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

var longTestCycles = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "mattracker_long_test_cycles",
	Help: "Unsigned cycles on test past the warning threshold, by level.",
}, []string{"level"})

type longTestSummary struct {
	Warning  int
	Critical int
}

func StartLongTestJob(ctx context.Context, cfg config.Config, svc *operations.Service) {
	if !cfg.LongTestJobEnabled {
		return
	}
	interval := cfg.LongTestJobInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.LongTestJobTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				summary, err := scanLongTest(tickCtx, svc)
				cancel()
				if err != nil {
					log.Printf("long test job error: %v", err)
					continue
				}
				if summary.Warning+summary.Critical > 0 {
					log.Printf("long test job found %d warning and %d critical cycles", summary.Warning, summary.Critical)
				}
			}
		}
	}()
}

func scanLongTest(ctx context.Context, svc *operations.Service) (longTestSummary, error) {
	entries, err := svc.ListLongTest(ctx, "")
	if err != nil {
		return longTestSummary{}, err
	}
	var summary longTestSummary
	for _, entry := range entries {
		switch entry.Level {
		case operations.LongTestWarning:
			summary.Warning++
		case operations.LongTestCritical:
			summary.Critical++
		}
	}
	longTestCycles.WithLabelValues(string(operations.LongTestWarning)).Set(float64(summary.Warning))
	longTestCycles.WithLabelValues(string(operations.LongTestCritical)).Set(float64(summary.Critical))
	return summary, nil
}
