package embedder

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Embedder computes a face embedding from image bytes.
type Embedder interface {
	ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// Pool bounds the number of concurrent embedding computations so a slow model
// server never saturates the request path. Callers block in Acquire until a
// slot frees up or their context is canceled.
type Pool struct {
	embedder     Embedder
	sem          *semaphore.Weighted
	maxImageEdge int
}

// NewPool wraps an embedder with a concurrency bound of workers.
func NewPool(e Embedder, workers int64, maxImageEdge int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		embedder:     e,
		sem:          semaphore.NewWeighted(workers),
		maxImageEdge: maxImageEdge,
	}
}

// ComputeEmbedding downsizes oversized images and runs the embedding call in a
// bounded slot. ErrNoFace passes through untouched.
func (p *Pool) ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error) {
	if p.maxImageEdge > 0 {
		resized, err := ResizeImage(imageData, p.maxImageEdge)
		if err != nil {
			return nil, fmt.Errorf("resize probe image: %w", err)
		}
		imageData = resized
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire embedding slot: %w", err)
	}
	defer p.sem.Release(1)

	return p.embedder.ComputeEmbedding(ctx, imageData)
}
