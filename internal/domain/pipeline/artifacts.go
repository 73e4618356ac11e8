package pipeline

import "context"

// ArtifactSpec names one expected output file.
type ArtifactSpec struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ArtifactStatus is the disposition of one collected artifact.
type ArtifactStatus string

const (
	ArtifactCollected ArtifactStatus = "collected"
	ArtifactAbsent    ArtifactStatus = "absent"
	ArtifactFailed    ArtifactStatus = "failed"
)

type CollectedArtifact struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Status   ArtifactStatus `json:"status"`
	Location string         `json:"location,omitempty"`
	Size     int64          `json:"size,omitempty"`
	Note     string         `json:"note,omitempty"`
}

type CollectedArtifacts struct {
	Items []CollectedArtifact `json:"items"`
}

// Count returns the number of items with status st.
func (c CollectedArtifacts) Count(st ArtifactStatus) int {
	n := 0
	for _, it := range c.Items {
		if it.Status == st {
			n++
		}
	}
	return n
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Put(ctx context.Context, localPath, key string) (string, error)
}
