package media

import (
	"context"
	"slices"
	"sync"

	"wsi/story"
)

// MemoryLibrary keeps media collection for the lifetime of the process.
type MemoryLibrary struct {
	mu    sync.Mutex
	items []story.MediaItem
}

func NewMemoryLibrary(items ...story.MediaItem) *MemoryLibrary {
	return &MemoryLibrary{items: slices.Clone(items)}
}

func (l *MemoryLibrary) Current(_ context.Context) ([]story.MediaItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items), nil
}

func (l *MemoryLibrary) Update(ctx context.Context, fn func(prev []story.MediaItem) []story.MediaItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = fn(slices.Clone(l.items))
	return nil
}
