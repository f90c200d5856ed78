package records

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/carekeeper/internal/logging"
)

// background runs best-effort cloud work after a local write.
type background struct {
	logger logging.Logger
	wg     sync.WaitGroup
}

func (b *background) spawn(ctx context.Context, failMsg string, args []any, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := fn(ctx); err != nil {
			b.logger.Warn(ctx, failMsg, append(args, "error", err)...)
		}
	}()
}

// Flush blocks until every mirror started so far has finished.
func (b *background) Flush() {
	b.wg.Wait()
}
