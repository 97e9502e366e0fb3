package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/sorteohub/sorteo-backend/models"
)

func TestRenderFieldList(t *testing.T) {
	s := NewDisplayService()
	row := models.ParticipantData{
		"nombre":   "Juan",
		"apellido": "Pérez",
		"email":    "",
	}

	cases := []struct {
		fields   []string
		expected string
	}{
		{[]string{"nombre", "apellido"}, "Juan Pérez"},
		{[]string{"apellido", "nombre"}, "Pérez Juan"},
		// empty and absent values are skipped, no doubled spaces
		{[]string{"nombre", "email", "apellido"}, "Juan Pérez"},
		{[]string{"nombre", "cedula", "apellido"}, "Juan Pérez"},
		{[]string{"cedula"}, ""},
		{nil, ""},
	}

	for _, c := range cases {
		got := s.Render(row, models.DisplayTemplate{Fields: c.fields})
		assert.Equal(t, c.expected, got, "fields %v", c.fields)
	}
}

func TestRenderFormat(t *testing.T) {
	s := NewDisplayService()
	row := models.ParticipantData{
		"nombre":   "Juan",
		"apellido": "Pérez",
	}

	cases := []struct {
		format   string
		expected string
	}{
		{"{nombre} {apellido}", "Juan Pérez"},
		{"{apellido}, {nombre}", "Pérez, Juan"},
		{"Ganador: {nombre}", "Ganador: Juan"},
		// unresolved placeholders render as empty, not as literal text
		{"{nombre} {cedula}", "Juan "},
		{"{}", ""},
		{"sin placeholders", "sin placeholders"},
		// unterminated brace is emitted verbatim
		{"{nombre} {apellido", "Juan {apellido"},
	}

	for _, c := range cases {
		got := s.Render(row, models.DisplayTemplate{Format: c.format})
		assert.Equal(t, c.expected, got, "format %q", c.format)
	}
}

func TestRenderFormatTakesPrecedenceOverFields(t *testing.T) {
	s := NewDisplayService()
	row := models.ParticipantData{"nombre": "Ana", "cedula": "99"}

	got := s.Render(row, models.DisplayTemplate{
		Fields: []string{"cedula"},
		Format: "{nombre}",
	})
	assert.Equal(t, "Ana", got)
}

func TestRenderDeterminism(t *testing.T) {
	s := NewDisplayService()
	properties := gopter.NewProperties(nil)

	properties.Property("rendering the same row and template twice is identical", prop.ForAll(
		func(nombre, apellido, format string) bool {
			row := models.ParticipantData{"nombre": nombre, "apellido": apellido}
			template := models.DisplayTemplate{Format: format}
			return s.Render(row, template) == s.Render(row, template)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestBuildFieldFormat(t *testing.T) {
	assert.Equal(t, "{nombre} {apellido}", BuildFieldFormat([]string{"nombre", "apellido"}))
	assert.Equal(t, "{cedula}", BuildFieldFormat([]string{"cedula"}))
	assert.Equal(t, "", BuildFieldFormat(nil))
}
