package projection

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	vlog "github.com/speechviz/voicemap/internal/log"
	"github.com/speechviz/voicemap/internal/mds"
	"github.com/speechviz/voicemap/internal/ratings"
	"github.com/speechviz/voicemap/internal/store"
)

// Config holds configuration for refresh operations.
type Config struct {
	DataDir     string
	RatingsPath string
	Dimensions  int
	MaxIter     int
	Eps         float64
}

// Recorder persists finished runs; *store.Store satisfies it.
type Recorder interface {
	RecordRun(ctx context.Context, run store.Run) (string, error)
}

// Refresh performs the complete refresh cycle: load ratings, embed every
// listener group, write the projections artifact, and record the run.
// rec may be nil when no history should be kept.
func Refresh(ctx context.Context, cfg Config, rec Recorder) (*Document, *Status, error) {
	logger := vlog.WithComponentFromContext(ctx, "projection")
	logger.Info().Str("event", "refresh.start").Str("ratings", cfg.RatingsPath).Msg("starting refresh")

	start := time.Now()

	if cfg.RatingsPath == "" {
		return nil, nil, fmt.Errorf("ratings path is empty")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 2
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = 300
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-6
	}

	ds, err := ratings.Load(cfg.RatingsPath)
	if err != nil {
		return nil, nil, err
	}

	sha, err := fileSHA256(cfg.RatingsPath)
	if err != nil {
		return nil, nil, err
	}

	doc := &Document{
		GeneratedAt: start.UTC(),
		Dimensions:  cfg.Dimensions,
		DatasetSHA:  sha,
		Groups:      make([]GroupProjection, len(ratings.Groups())),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range ratings.Groups() {
		g.Go(func() error {
			gp, err := embedGroup(gctx, ds, group, cfg)
			if err != nil {
				return fmt.Errorf("group %s: %w", group, err)
			}
			doc.Groups[i] = *gp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	doc.Axes = sharedAxes(doc)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	artifactPath := filepath.Join(cfg.DataDir, ArtifactName)
	if err := writeDocument(ctx, artifactPath, doc); err != nil {
		return nil, nil, err
	}
	logger.Info().
		Str("event", "artifact.write").
		Str("path", artifactPath).
		Int("points", pointCount(doc)).
		Msg("projections written")

	if rec != nil {
		run := store.Run{
			StartedAt:   start,
			FinishedAt:  time.Now(),
			DatasetPath: cfg.RatingsPath,
			DatasetSHA:  sha,
			Points:      pointCount(doc),
			Dimensions:  cfg.Dimensions,
		}
		for _, gp := range doc.Groups {
			run.Groups = append(run.Groups, store.GroupStats{
				Group:      string(gp.Group),
				Listeners:  gp.Listeners,
				Stress:     gp.Stress,
				Stress1:    gp.Stress1,
				Iterations: gp.Iterations,
			})
		}
		if _, err := rec.RecordRun(ctx, run); err != nil {
			// History is advisory; the artifact is already durable.
			logger.Warn().Err(err).Str("event", "run.record_failed").Msg("failed to record run")
		}
	}

	status := &Status{
		LastRun: time.Now(),
		Points:  pointCount(doc),
		Stress:  make(map[string]float64, len(doc.Groups)),
	}
	for _, gp := range doc.Groups {
		status.Stress[string(gp.Group)] = gp.Stress1
	}

	recordRefreshMetrics(time.Since(start), status.Points, doc)

	logger.Info().
		Str("event", "refresh.success").
		Int("points", status.Points).
		Dur("duration", time.Since(start)).
		Msg("refresh completed")
	return doc, status, nil
}

func embedGroup(ctx context.Context, ds *ratings.Dataset, group ratings.Group, cfg Config) (*GroupProjection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diss, err := ds.Dissimilarities(group)
	if err != nil {
		return nil, err
	}

	res, err := mds.Scale(diss.Matrix, mds.Options{
		Dimensions: cfg.Dimensions,
		MaxIter:    cfg.MaxIter,
		Eps:        cfg.Eps,
	})
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(diss.Labels))
	for i, label := range diss.Labels {
		points[i] = Point{
			Label:    label,
			Speaker:  ratings.Speaker(label),
			Language: ratings.Language(label),
			Audio:    ds.AudioFile(label),
			Coords:   res.Coords[i],
		}
	}

	return &GroupProjection{
		Group:      group,
		Title:      groupTitle(group),
		Listeners:  len(ds.SubjectColumns(group)),
		Points:     points,
		Stress:     res.Stress,
		Stress1:    res.Stress1,
		Iterations: res.Iterations,
	}, nil
}

// sharedAxes computes per-dimension ranges over every group's points with a
// half-unit margin, so all tabs plot on the same scale.
func sharedAxes(doc *Document) []AxisRange {
	axes := make([]AxisRange, doc.Dimensions)
	for k := range axes {
		axes[k] = AxisRange{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for _, gp := range doc.Groups {
		for _, p := range gp.Points {
			for k, v := range p.Coords {
				if v < axes[k].Min {
					axes[k].Min = v
				}
				if v > axes[k].Max {
					axes[k].Max = v
				}
			}
		}
	}
	for k := range axes {
		if math.IsInf(axes[k].Min, 1) {
			axes[k] = AxisRange{}
			continue
		}
		axes[k].Min -= 0.5
		axes[k].Max += 0.5
	}
	return axes
}

func pointCount(doc *Document) int {
	seen := make(map[string]struct{})
	for _, gp := range doc.Groups {
		for _, p := range gp.Points {
			seen[p.Label] = struct{}{}
		}
	}
	return len(seen)
}

// Labels returns the sorted union of labels in the document.
func (d *Document) Labels() []string {
	seen := make(map[string]struct{})
	for _, gp := range d.Groups {
		for _, p := range gp.Points {
			seen[p.Label] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied dataset path
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
