package report

import (
	"encoding/json"
	"io"
)

// JSONReporter renders the machine-readable report: the entire ScanResult
// as one document with the status object at the top level.
type JSONReporter struct {
	Pretty bool
}

// Write renders the result to w.
func (r JSONReporter) Write(w io.Writer, res *ScanResult) error {
	enc := json.NewEncoder(w)
	if r.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
