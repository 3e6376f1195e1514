package projection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechviz/voicemap/internal/ratings"
	"github.com/speechviz/voicemap/internal/store"
)

const testCSV = `stim1,stim2,subjC01,subjC02,subjE01,subjE02
VF19A_can_001.wav,VF21B_can_002.wav,3,5,2,4
VF19A_can_001.wav,VF19A_eng_003.wav,2,2,3,1
VF19A_can_001.wav,VF21B_eng_004.wav,6,4,5,7
VF21B_can_002.wav,VF19A_eng_003.wav,5,3,6,2
VF21B_can_002.wav,VF21B_eng_004.wav,2,4,1,3
VF19A_eng_003.wav,VF21B_eng_004.wav,4,6,3,5
`

func writeTestDataset(t *testing.T) (dataDir, ratingsPath string) {
	t.Helper()
	dataDir = t.TempDir()
	ratingsPath = filepath.Join(dataDir, "ratings.csv")
	require.NoError(t, os.WriteFile(ratingsPath, []byte(testCSV), 0o600))
	return dataDir, ratingsPath
}

type fakeRecorder struct {
	runs []store.Run
}

func (f *fakeRecorder) RecordRun(_ context.Context, run store.Run) (string, error) {
	f.runs = append(f.runs, run)
	return "fake-id", nil
}

func TestRefresh(t *testing.T) {
	dataDir, ratingsPath := writeTestDataset(t)

	rec := &fakeRecorder{}
	doc, status, err := Refresh(context.Background(), Config{
		DataDir:     dataDir,
		RatingsPath: ratingsPath,
	}, rec)
	require.NoError(t, err)

	require.Len(t, doc.Groups, 3)
	assert.Equal(t, ratings.GroupAll, doc.Groups[0].Group)
	assert.Equal(t, "All participants", doc.Groups[0].Title)
	assert.Equal(t, "Cantonese-English participants", doc.Groups[1].Title)
	assert.Equal(t, "English participants", doc.Groups[2].Title)

	assert.Equal(t, 4, doc.Groups[0].Listeners)
	assert.Equal(t, 2, doc.Groups[1].Listeners)
	assert.Equal(t, 2, doc.Groups[2].Listeners)

	for _, gp := range doc.Groups {
		require.Len(t, gp.Points, 4, "group %s", gp.Group)
		for _, p := range gp.Points {
			assert.Len(t, p.Coords, 2)
			assert.NotEmpty(t, p.Speaker)
			assert.NotEmpty(t, p.Language)
			assert.NotEmpty(t, p.Audio)
		}
	}

	assert.Equal(t, 4, status.Points)
	assert.False(t, status.LastRun.IsZero())
	assert.NotEmpty(t, doc.DatasetSHA)

	// One run recorded, carrying all three group summaries.
	require.Len(t, rec.runs, 1)
	assert.Len(t, rec.runs[0].Groups, 3)
	assert.Equal(t, 4, rec.runs[0].Points)
}

func TestRefreshWritesArtifact(t *testing.T) {
	dataDir, ratingsPath := writeTestDataset(t)

	doc, _, err := Refresh(context.Background(), Config{
		DataDir:     dataDir,
		RatingsPath: ratingsPath,
	}, nil)
	require.NoError(t, err)

	loaded, err := ReadDocument(filepath.Join(dataDir, ArtifactName))
	require.NoError(t, err)
	assert.Equal(t, doc.DatasetSHA, loaded.DatasetSHA)
	assert.Equal(t, doc.Dimensions, loaded.Dimensions)
	require.Len(t, loaded.Groups, 3)
}

func TestRefreshSharedAxes(t *testing.T) {
	dataDir, ratingsPath := writeTestDataset(t)

	doc, _, err := Refresh(context.Background(), Config{
		DataDir:     dataDir,
		RatingsPath: ratingsPath,
	}, nil)
	require.NoError(t, err)

	require.Len(t, doc.Axes, 2)
	for k, ax := range doc.Axes {
		assert.Less(t, ax.Min, ax.Max, "axis %d", k)
		// Every coordinate of every group must sit strictly inside the
		// half-unit margin.
		for _, gp := range doc.Groups {
			for _, p := range gp.Points {
				assert.GreaterOrEqual(t, p.Coords[k], ax.Min+0.5-1e-9)
				assert.LessOrEqual(t, p.Coords[k], ax.Max-0.5+1e-9)
			}
		}
	}
}

func TestRefreshMissingRatings(t *testing.T) {
	dataDir := t.TempDir()

	_, _, err := Refresh(context.Background(), Config{
		DataDir:     dataDir,
		RatingsPath: filepath.Join(dataDir, "nope.csv"),
	}, nil)
	assert.Error(t, err)
}

func TestRefreshEmptyRatingsPath(t *testing.T) {
	_, _, err := Refresh(context.Background(), Config{DataDir: t.TempDir()}, nil)
	assert.Error(t, err)
}

func TestDocumentLookups(t *testing.T) {
	dataDir, ratingsPath := writeTestDataset(t)

	doc, _, err := Refresh(context.Background(), Config{
		DataDir:     dataDir,
		RatingsPath: ratingsPath,
	}, nil)
	require.NoError(t, err)

	gp := doc.Group(ratings.GroupEnglish)
	require.NotNil(t, gp)
	assert.Equal(t, ratings.GroupEnglish, gp.Group)
	assert.Nil(t, doc.Group(ratings.Group("mandarin")))

	p := doc.Point("VF19A_can")
	require.NotNil(t, p)
	assert.Equal(t, "VF19A", p.Speaker)
	assert.Equal(t, "can", p.Language)
	assert.Nil(t, doc.Point("missing"))

	assert.Equal(t, []string{"VF19A_can", "VF19A_eng", "VF21B_can", "VF21B_eng"}, doc.Labels())
}

func TestRefreshDeterministic(t *testing.T) {
	dataDir, ratingsPath := writeTestDataset(t)

	cfg := Config{DataDir: dataDir, RatingsPath: ratingsPath}
	a, _, err := Refresh(context.Background(), cfg, nil)
	require.NoError(t, err)
	b, _, err := Refresh(context.Background(), cfg, nil)
	require.NoError(t, err)

	for i := range a.Groups {
		require.Equal(t, a.Groups[i].Stress, b.Groups[i].Stress)
		for j := range a.Groups[i].Points {
			assert.Equal(t, a.Groups[i].Points[j].Coords, b.Groups[i].Points[j].Coords)
		}
	}
}
