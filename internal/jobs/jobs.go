// Package jobs enumerates the yearly download jobs of a run.
package jobs

import (
	"fmt"
	"strconv"
)

// Job is one unit of work: the archive for a single year.
type Job struct {
	Year int
}

// String returns the year as the CDS request expects it.
func (j Job) String() string {
	return strconv.Itoa(j.Year)
}

// Enumerate returns one job per year in [first, last], in ascending order.
// It returns an empty slice when first > last.
func Enumerate(first, last int) []Job {
	if first > last {
		return []Job{}
	}

	jobs := make([]Job, 0, last-first+1)
	for year := first; year <= last; year++ {
		jobs = append(jobs, Job{Year: year})
	}
	return jobs
}

// ArtifactName returns the output object name for a year, e.g. AgERA5_1990.tar.gz.
func ArtifactName(prefix string, year int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", prefix, year, ext)
}
