package services

import (
	"strings"

	"github.com/sorteohub/sorteo-backend/models"
)

// DisplayService builds the human-readable label shown for a participant
// during the draw. Rendering is deterministic: the same row and template
// always produce the same string.
type DisplayService struct{}

// NewDisplayService creates a new display service instance
func NewDisplayService() *DisplayService {
	return &DisplayService{}
}

// Render produces the display value for one row. A Format template takes
// precedence over a field list when both are set.
func (s *DisplayService) Render(row models.ParticipantData, template models.DisplayTemplate) string {
	if template.Format != "" {
		return s.renderFormat(row, template.Format)
	}
	return s.renderFields(row, template.Fields)
}

// renderFields joins the non-empty values of the listed keys, in list
// order, with single spaces. Absent and empty keys are skipped.
func (s *DisplayService) renderFields(row models.ParticipantData, fields []string) string {
	values := make([]string, 0, len(fields))
	for _, field := range fields {
		if v := row.Get(field); v != "" {
			values = append(values, v)
		}
	}
	return strings.Join(values, " ")
}

// renderFormat scans the template for {key} tokens and substitutes each
// from the row. Keys missing from the row render as empty string rather
// than leaving the literal placeholder behind. Unterminated braces are
// emitted verbatim.
func (s *DisplayService) renderFormat(row models.ParticipantData, format string) string {
	var out strings.Builder
	out.Grow(len(format))

	for {
		open := strings.IndexByte(format, '{')
		if open < 0 {
			out.WriteString(format)
			break
		}

		end := strings.IndexByte(format[open:], '}')
		if end < 0 {
			out.WriteString(format)
			break
		}

		out.WriteString(format[:open])
		key := format[open+1 : open+end]
		out.WriteString(row.Get(key))
		format = format[open+end+1:]
	}

	return out.String()
}

// BuildFieldFormat turns an ordered field list into the equivalent
// placeholder template, e.g. ["nombre", "apellido"] -> "{nombre} {apellido}"
func BuildFieldFormat(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	return "{" + strings.Join(fields, "} {") + "}"
}
