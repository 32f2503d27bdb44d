package embedding

import (
	"context"
	"fmt"
	"sync"

	"textbook-rag/internal/models"

	"golang.org/x/time/rate"
)

// BatchOptions controls EmbedBatch
type BatchOptions struct {
	// BatchSize is the number of texts sent per request
	BatchSize int
	// MaxConcurrent limits in-flight requests
	MaxConcurrent int
	// Limiter throttles requests; nil means unlimited
	Limiter *rate.Limiter
	// Progress is called after each batch with the number of texts embedded so far
	Progress func(processed, total int)
}

// EmbedBatch embeds texts in parallel batches and returns the vectors in
// input order. The first failure cancels the remaining batches.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, opts BatchOptions) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, opts.MaxConcurrent)

	// Protects results, processed and firstErr
	var mu sync.Mutex
	results := make([]models.Embedding, len(texts))
	processed := 0
	total := len(texts)
	var firstErr error

	for start := 0; start < total; start += opts.BatchSize {
		end := min(start+opts.BatchSize, total)

		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer func() {
				wg.Done()
				<-semaphore
			}()

			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(ctx); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
			}

			embeddings, err := e.Embed(ctx, texts[start:end])
			if err == nil {
				err = checkCount(len(embeddings), end-start)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to embed texts %d-%d: %w", start, end-1, err)
				}
				cancel()
				return
			}

			copy(results[start:end], embeddings)
			processed += end - start
			if opts.Progress != nil {
				opts.Progress(processed, total)
			}
		}(start, end)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
