package pipeline

import (
	"context"
	"sync"

	"github.com/mobiis/cargodispatch/core/model"
)

// Run consumes load requests from the channel until it is closed or the
// context is canceled. cfg.Workers goroutines process loads concurrently;
// each load still flows through Dispatch sequentially.
func (p *DispatchPipeline) Run(ctx context.Context, loads <-chan model.LoadRequest) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case req, ok := <-loads:
					if !ok {
						return
					}
					if _, err := p.Dispatch(ctx, req); err != nil {
						p.logger.Errorf("load %s dropped: %v", req.ID, err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
}
