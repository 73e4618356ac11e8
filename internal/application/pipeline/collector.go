package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
)

// Collector persists run outputs to the artifact store. It never fails the
// run: every problem becomes the disposition of the artifact concerned.
type Collector struct {
	Store  domain.ArtifactStore
	Prefix string
}

func NewCollector(store domain.ArtifactStore, prefix string) *Collector {
	return &Collector{Store: store, Prefix: prefix}
}

func (c *Collector) Collect(ctx context.Context, runID string, specs []domain.ArtifactSpec) domain.CollectedArtifacts {
	out := domain.CollectedArtifacts{Items: make([]domain.CollectedArtifact, 0, len(specs))}
	for _, sp := range specs {
		item := c.collectOne(ctx, runID, sp)
		log.Printf("artifact run=%s name=%s status=%s location=%s note=%q",
			runID, item.Name, item.Status, item.Location, item.Note)
		out.Items = append(out.Items, item)
	}
	return out
}

func (c *Collector) collectOne(ctx context.Context, runID string, sp domain.ArtifactSpec) domain.CollectedArtifact {
	item := domain.CollectedArtifact{Name: sp.Name, Path: sp.Path}

	fi, err := os.Stat(sp.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		item.Status = domain.ArtifactAbsent
		return item
	case err != nil:
		item.Status = domain.ArtifactFailed
		item.Note = err.Error()
		return item
	case fi.IsDir():
		item.Status = domain.ArtifactAbsent
		item.Note = "path is a directory"
		return item
	}

	if c.Store == nil {
		item.Status = domain.ArtifactFailed
		item.Note = "no artifact store configured"
		return item
	}
	loc, err := c.Store.Put(ctx, sp.Path, path.Join(c.Prefix, runID, sp.Name))
	if err != nil {
		item.Status = domain.ArtifactFailed
		item.Note = err.Error()
		return item
	}
	item.Status = domain.ArtifactCollected
	item.Location = loc
	item.Size = fi.Size()
	return item
}
