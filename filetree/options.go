package filetree

import (
	"runtime"

	"github.com/bobg/dagdelta"
	"github.com/bobg/dagdelta/chunker"
)

// Option configures the construction of a Tree.
type Option func(*config)

type config struct {
	chunk       chunker.Func
	sizes       chunker.Options
	fetcher     dagdelta.Fetcher
	dropBytes   bool
	concurrency int
}

func newConfig(opts []Option) *config {
	c := &config{
		chunk:       chunker.Hashsplit,
		sizes:       chunker.DefaultOptions(),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithChunker sets the function that finds chunk boundaries.
// The default is chunker.Hashsplit.
func WithChunker(f chunker.Func) Option {
	return func(c *config) {
		c.chunk = f
	}
}

// WithSizes sets the chunk-size parameters passed to the chunker.
func WithSizes(o chunker.Options) Option {
	return func(c *config) {
		c.sizes = o
	}
}

// WithFetcher supplies a Fetcher for blocks the tree does not hold.
func WithFetcher(f dagdelta.Fetcher) Option {
	return func(c *config) {
		c.fetcher = f
	}
}

// WithDropBytes causes chunks to be evicted once they are hashed.
// The resulting tree can be diffed but not read until it is rehydrated.
func WithDropBytes() Option {
	return func(c *config) {
		c.dropBytes = true
	}
}

// WithConcurrency limits the number of chunks hashed at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}
