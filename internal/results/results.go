package results

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nurv/edsl/internal/models"
)

// maxSummaryIndices caps how many failing interviews the summary names
// before collapsing to a count.
const maxSummaryIndices = 5

// Results is the ordered collection of interview outcomes plus the
// exceptions gathered along the way. Rows are appended in completion
// order by the runner's collector.
type Results struct {
	Rows        []*Result           `json:"rows"`
	TaskHistory *models.TaskHistory `json:"task_history,omitempty"`
}

// NewResults creates an empty collection.
func NewResults() *Results {
	return &Results{TaskHistory: &models.TaskHistory{}}
}

// Append adds one completed interview.
func (r *Results) Append(result *Result) {
	r.Rows = append(r.Rows, result)
}

// Len returns the number of completed interviews.
func (r *Results) Len() int {
	return len(r.Rows)
}

// HasExceptions reports whether any interview recorded a failure.
func (r *Results) HasExceptions() bool {
	return r.TaskHistory != nil && r.TaskHistory.HasExceptions()
}

// ToDicts flattens every row.
func (r *Results) ToDicts() []map[string]any {
	dicts := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		dicts = append(dicts, row.ToDict())
	}
	return dicts
}

// Select projects the flattened rows onto the named columns. Missing
// columns are omitted from a row rather than padded.
func (r *Results) Select(columns ...string) []map[string]any {
	selected := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		dict := row.ToDict()
		projection := make(map[string]any, len(columns))
		for _, column := range columns {
			if value, ok := dict[column]; ok {
				projection[column] = value
			}
		}
		selected = append(selected, projection)
	}
	return selected
}

// WriteJSON writes the flattened rows as one indented JSON array.
func (r *Results) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r.ToDicts()); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// WriteJSONL writes one flattened row per line.
func (r *Results) WriteJSONL(w io.Writer) error {
	buffered := bufio.NewWriter(w)
	encoder := json.NewEncoder(buffered)
	for i, row := range r.Rows {
		if err := encoder.Encode(row.ToDict()); err != nil {
			return fmt.Errorf("failed to encode result %d: %w", i, err)
		}
	}
	return buffered.Flush()
}

// SaveJSON writes the results to a file, JSONL when the path ends in
// .jsonl, an indented array otherwise.
func (r *Results) SaveJSON(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file %s: %w", path, err)
	}
	defer file.Close()

	if strings.HasSuffix(path, ".jsonl") {
		return r.WriteJSONL(file)
	}
	return r.WriteJSON(file)
}

// Summary describes the run outcome in one line: clean, or which
// interviews failed. More than five failing indices collapse to a count.
func (r *Results) Summary() string {
	if !r.HasExceptions() {
		return fmt.Sprintf("%d interviews completed", len(r.Rows))
	}
	indices := r.TaskHistory.Indices()
	if len(indices) > maxSummaryIndices {
		return fmt.Sprintf("%d interviews completed, %d with exceptions", len(r.Rows), len(indices))
	}
	parts := make([]string, len(indices))
	for i, index := range indices {
		parts[i] = fmt.Sprintf("%d", index)
	}
	return fmt.Sprintf("%d interviews completed, exceptions in interviews [%s]", len(r.Rows), strings.Join(parts, ", "))
}
