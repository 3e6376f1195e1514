// Package projection turns a ratings dataset into per-group MDS embeddings
// and publishes them as a JSON artifact in the data directory.
package projection

import (
	"time"

	"github.com/speechviz/voicemap/internal/ratings"
)

// ArtifactName is the projections file written into the data directory.
const ArtifactName = "projections.json"

// Point is one stimulus in an embedded configuration.
type Point struct {
	Label    string    `json:"label"`
	Speaker  string    `json:"speaker"`
	Language string    `json:"language"`
	Audio    string    `json:"audio,omitempty"`
	Coords   []float64 `json:"coords"`
}

// GroupProjection is the embedding for one listener group.
type GroupProjection struct {
	Group      ratings.Group `json:"group"`
	Title      string        `json:"title"`
	Listeners  int           `json:"listeners"`
	Points     []Point       `json:"points"`
	Stress     float64       `json:"stress"`
	Stress1    float64       `json:"stress1"`
	Iterations int           `json:"iterations"`
}

// AxisRange is a closed coordinate interval for one plot axis.
type AxisRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Document is the full projections artifact. Axis ranges are shared across
// all groups so the three tabs render on identical scales.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Dimensions  int               `json:"dimensions"`
	DatasetSHA  string            `json:"dataset_sha256"`
	Axes        []AxisRange       `json:"axes"`
	Groups      []GroupProjection `json:"groups"`
}

// Group returns the projection for the named group, or nil.
func (d *Document) Group(g ratings.Group) *GroupProjection {
	for i := range d.Groups {
		if d.Groups[i].Group == g {
			return &d.Groups[i]
		}
	}
	return nil
}

// Point returns the first point with the given label across groups, or nil.
func (d *Document) Point(label string) *Point {
	for i := range d.Groups {
		for j := range d.Groups[i].Points {
			if d.Groups[i].Points[j].Label == label {
				return &d.Groups[i].Points[j]
			}
		}
	}
	return nil
}

// Status represents the current state of the refresh job.
type Status struct {
	LastRun time.Time          `json:"last_run"`
	Points  int                `json:"points"`
	Stress  map[string]float64 `json:"stress,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// groupTitle maps a listener group to its tab caption.
func groupTitle(g ratings.Group) string {
	switch g {
	case ratings.GroupCantonese:
		return "Cantonese-English participants"
	case ratings.GroupEnglish:
		return "English participants"
	default:
		return "All participants"
	}
}
