// Package ratings models pairwise voice-similarity rating datasets.
//
// A dataset is a CSV with one row per stimulus pair. The first two columns
// name the paired stimuli; every remaining column holds one listener's
// dissimilarity rating for the pair. Listener columns are prefixed "subjC"
// for Cantonese-English bilingual listeners and "subjE" for English-only
// listeners.
package ratings

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Listener group selectors.
type Group string

const (
	GroupAll       Group = "all"
	GroupCantonese Group = "cantonese"
	GroupEnglish   Group = "english"
)

// Groups lists every listener group in presentation order.
func Groups() []Group {
	return []Group{GroupAll, GroupCantonese, GroupEnglish}
}

// ParseGroup converts a route or CLI value into a Group.
func ParseGroup(s string) (Group, error) {
	switch Group(strings.ToLower(strings.TrimSpace(s))) {
	case GroupAll:
		return GroupAll, nil
	case GroupCantonese:
		return GroupCantonese, nil
	case GroupEnglish:
		return GroupEnglish, nil
	}
	return "", fmt.Errorf("unknown listener group %q", s)
}

// Trial is one rated stimulus pair.
type Trial struct {
	Stim1   string
	Stim2   string
	Ratings map[string]float64
}

// Dataset is a parsed ratings file.
type Dataset struct {
	Subjects []string // listener columns in file order
	Trials   []Trial
}

// ParseError reports a malformed cell or header with its position.
type ParseError struct {
	Line   int    // 1-based line in the CSV, 0 when unknown
	Column string // offending column name, empty for structural errors
	Msg    string
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("line %d, column %s: %s", e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	default:
		return e.Msg
	}
}

// Load reads and parses the ratings CSV at path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied dataset path
	if err != nil {
		return nil, fmt.Errorf("open ratings file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ds, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ds, nil
}

// Parse reads a ratings CSV from r.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &ParseError{Msg: "empty file"}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if len(header) < 3 {
		return nil, &ParseError{Line: 1, Msg: "need stim1, stim2 and at least one subject column"}
	}
	if strings.TrimSpace(header[0]) != "stim1" || strings.TrimSpace(header[1]) != "stim2" {
		return nil, &ParseError{Line: 1, Msg: fmt.Sprintf("first columns must be stim1, stim2; got %q, %q", header[0], header[1])}
	}

	subjects := make([]string, 0, len(header)-2)
	for i, col := range header[2:] {
		col = strings.TrimSpace(col)
		if !strings.HasPrefix(col, "subj") {
			return nil, &ParseError{Line: 1, Column: col, Msg: fmt.Sprintf("column %d is not a subject column", i+3)}
		}
		subjects = append(subjects, col)
	}

	ds := &Dataset{Subjects: subjects}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) != len(header) {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("expected %d fields, got %d", len(header), len(rec))}
		}

		t := Trial{
			Stim1:   strings.TrimSpace(rec[0]),
			Stim2:   strings.TrimSpace(rec[1]),
			Ratings: make(map[string]float64, len(subjects)),
		}
		if t.Stim1 == "" || t.Stim2 == "" {
			return nil, &ParseError{Line: line, Msg: "empty stimulus name"}
		}
		for i, subj := range subjects {
			cell := strings.TrimSpace(rec[i+2])
			if cell == "" {
				return nil, &ParseError{Line: line, Column: subj, Msg: "missing rating"}
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &ParseError{Line: line, Column: subj, Msg: fmt.Sprintf("invalid rating %q", cell)}
			}
			t.Ratings[subj] = v
		}
		ds.Trials = append(ds.Trials, t)
	}

	if len(ds.Trials) == 0 {
		return nil, &ParseError{Msg: "no trial rows"}
	}
	return ds, nil
}

// Label derives the "<speaker>_<lang>" point label from a stimulus filename.
// Filenames with fewer than two underscore-separated fields are used as-is.
func Label(stimulus string) string {
	parts := strings.Split(stimulus, "_")
	if len(parts) > 1 {
		return parts[0] + "_" + parts[1]
	}
	return stimulus
}

// Speaker returns the speaker component of a point label.
func Speaker(label string) string {
	if i := strings.Index(label, "_"); i >= 0 {
		return label[:i]
	}
	return label
}

// Language returns the language component of a point label, or "" when the
// label carries none.
func Language(label string) string {
	if i := strings.Index(label, "_"); i >= 0 {
		return label[i+1:]
	}
	return ""
}

// SubjectColumns returns the listener columns belonging to group, in file order.
func (d *Dataset) SubjectColumns(group Group) []string {
	var prefix string
	switch group {
	case GroupCantonese:
		prefix = "subjC"
	case GroupEnglish:
		prefix = "subjE"
	default:
		prefix = "subj"
	}
	cols := make([]string, 0, len(d.Subjects))
	for _, s := range d.Subjects {
		if strings.HasPrefix(s, prefix) {
			cols = append(cols, s)
		}
	}
	return cols
}

// Labels returns the sorted set of point labels across all trials.
func (d *Dataset) Labels() []string {
	set := make(map[string]struct{}, len(d.Trials)*2)
	for _, t := range d.Trials {
		set[Label(t.Stim1)] = struct{}{}
		set[Label(t.Stim2)] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// AudioFile returns a representative stimulus filename for the label: the
// first trial (in file order) that mentions it. Empty when unknown.
func (d *Dataset) AudioFile(label string) string {
	for _, t := range d.Trials {
		if Label(t.Stim1) == label {
			return t.Stim1
		}
		if Label(t.Stim2) == label {
			return t.Stim2
		}
	}
	return ""
}
