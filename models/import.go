package models

// ImportResult is the structured output of parsing a tabular upload: the
// normalized header keys in column order and one data mapping per row.
type ImportResult struct {
	Headers []string          `json:"headers"`
	Rows    []ParticipantData `json:"rows"`
	Total   int               `json:"total"`
}

// Preview returns up to n leading rows for the configure step
func (r *ImportResult) Preview(n int) []ParticipantData {
	if len(r.Rows) <= n {
		return r.Rows
	}
	return r.Rows[:n]
}
