package persona

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obsidiansec/personaforge/api/schemas"
)

// BulkResult summarizes a GenerateAll run.
type BulkResult struct {
	Generated int      `json:"generated"`
	Premium   int      `json:"premium"`
	Failed    []string `json:"failed,omitempty"`
}

// GenerateAll resolves a persona for every group in the store using a bounded
// worker pool and warms the library cache. Individual failures are logged and
// collected rather than aborting the run; only context cancellation stops it
// early.
func (l *Library) GenerateAll(ctx context.Context, concurrency int) (BulkResult, error) {
	if concurrency < 1 {
		concurrency = 4
	}
	groups := l.store.Groups()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var generated, premium int64
	var mu sync.Mutex
	var failed []string

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := l.Resolve(group.ID)
			if err != nil {
				l.log.Warn("Persona generation failed",
					zap.String("entity_id", group.ID),
					zap.String("name", group.Name),
					zap.Error(err),
				)
				mu.Lock()
				failed = append(failed, group.ID)
				mu.Unlock()
				return nil
			}
			atomic.AddInt64(&generated, 1)
			if p.Provenance == schemas.ProvenancePremium {
				atomic.AddInt64(&premium, 1)
			}
			return nil
		})
	}

	err := g.Wait()
	res := BulkResult{
		Generated: int(generated),
		Premium:   int(premium),
		Failed:    failed,
	}
	l.log.Info("Bulk generation finished",
		zap.Int("groups", len(groups)),
		zap.Int("generated", res.Generated),
		zap.Int("premium", res.Premium),
		zap.Int("failed", len(res.Failed)),
	)
	return res, err
}
