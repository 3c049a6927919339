package cds

import "fmt"

// Request is the parameter bag of a single retrieval.
type Request struct {
	Variable  string   `json:"variable"`
	Year      string   `json:"year,omitempty"`
	Month     []string `json:"month"`
	Day       []string `json:"day"`
	Version   string   `json:"version,omitempty"`
	Format    string   `json:"format"`
	Statistic string   `json:"statistic,omitempty"`
}

// DefaultTemplate returns the AgERA5 daily maximum 2m temperature request
// covering every month and day of a year. Year is left empty.
func DefaultTemplate() Request {
	return Request{
		Variable:  "2m_temperature",
		Month:     Months(),
		Day:       Days(),
		Version:   "1_1",
		Format:    "tgz",
		Statistic: "24_hour_maximum",
	}
}

// WithYear returns a copy of r for the given year.
func (r Request) WithYear(year string) Request {
	r.Year = year
	r.Month = append([]string(nil), r.Month...)
	r.Day = append([]string(nil), r.Day...)
	return r
}

// Months returns "01" through "12".
func Months() []string {
	return padded(12)
}

// Days returns "01" through "31".
func Days() []string {
	return padded(31)
}

func padded(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%02d", i+1)
	}
	return out
}
