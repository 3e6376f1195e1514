// voicemap-validate checks a ratings CSV offline before it is deployed.
//
// Usage:
//
//	voicemap-validate -f ratings.csv
//	voicemap-validate --file ratings.csv
//
// Exit codes:
//   - 0: Dataset is valid
//   - 1: Dataset is invalid (parse or structural error)
//   - 2: Usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/speechviz/voicemap/internal/ratings"
)

var Version = "dev"

func main() {
	var file string
	var showVersion bool

	flag.StringVar(&file, "file", "", "path to ratings CSV file")
	flag.StringVar(&file, "f", "", "path to ratings CSV file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(Version)
		os.Exit(0)
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  voicemap-validate -f ratings.csv")
		fmt.Fprintln(os.Stderr, "  voicemap-validate --file ratings.csv")
		os.Exit(2)
	}

	ds, err := ratings.Load(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dataset error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		os.Exit(1)
	}

	// Surface obvious group problems before the daemon trips over them.
	for _, group := range ratings.Groups() {
		if len(ds.SubjectColumns(group)) == 0 {
			fmt.Fprintf(os.Stderr, "Dataset error in %s:\n", file)
			fmt.Fprintf(os.Stderr, "  no subject columns for listener group %q\n", group)
			os.Exit(1)
		}
	}

	labels := ds.Labels()
	if len(labels) < 2 {
		fmt.Fprintf(os.Stderr, "Dataset error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  need at least 2 distinct stimulus labels, got %d\n", len(labels))
		os.Exit(1)
	}

	fmt.Printf("✓ %s is valid: %d trials, %d listeners, %d stimulus labels\n",
		file, len(ds.Trials), len(ds.Subjects), len(labels))
}
