package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// batchFunc migrates one batch of IDs.
type batchFunc func(ctx context.Context, ids []string) (*models.MigrationResult, error)

func (m *Migrator) batchSize() int {
	if m.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return m.BatchSize
}

// chunk splits ids into consecutive slices of at most size elements.
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// inBatches runs fn over ids in batches, strictly one after the other, with
// pause between batches and none after the last. An error from one batch is
// logged and recorded on the result and the next batch still runs. Only
// cancellation stops the loop early.
func (m *Migrator) inBatches(ctx context.Context, kind string, ids []string, pause time.Duration, fn batchFunc) (*models.MigrationResult, error) {
	total := models.NewMigrationResult()
	batches := chunk(ids, m.batchSize())
	sleep := m.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n := i + 1
		log := m.Log.WithFields(logrus.Fields{"kind": kind, "batch": n})
		log.Infof("Processing batch %d of %d with %d %s", n, len(batches), len(batch), kind)

		res, err := fn(ctx, batch)
		if err != nil {
			log.WithError(err).Errorf("Error occurred in batch %d", n)
			total.AddError(fmt.Errorf("%s batch %d: %w", kind, n, err))
		}
		total.Merge(res)

		if n < len(batches) {
			log.Infof("Sleeping for %s before processing the next batch", pause)
			if err := sleep(ctx, pause); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
