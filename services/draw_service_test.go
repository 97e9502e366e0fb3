package services

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorteohub/sorteo-backend/database"
	"github.com/sorteohub/sorteo-backend/models"
	"github.com/sorteohub/sorteo-backend/shared"
)

var (
	drawTestOnce sync.Once
	drawTestErr  error
)

// setupDrawServiceTest connects to the test database, applying the schema
// once. Tests are skipped when no test database is available.
func setupDrawServiceTest(t *testing.T) *DrawService {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping draw service tests - TEST_DATABASE_URL not set")
	}

	drawTestOnce.Do(func() {
		if err := database.Connect(dbURL); err != nil {
			drawTestErr = err
			return
		}
		drawTestErr = database.Migrate("../database/schema.sql")
	})
	if drawTestErr != nil {
		t.Skipf("Skipping draw service tests - database not available: %v", drawTestErr)
	}

	return NewDrawService(database.DB)
}

func testImportResult(rows ...models.ParticipantData) *models.ImportResult {
	return &models.ImportResult{
		Headers: []string{"nombre_completo", "cedula"},
		Rows:    rows,
		Total:   len(rows),
	}
}

func createTestDraw(t *testing.T, s *DrawService, rows ...models.ParticipantData) *models.Draw {
	draw, err := s.CreateDraw(context.Background(), testImportResult(rows...), DrawConfig{
		Name:     "Test Draw " + time.Now().Format(time.RFC3339Nano),
		Template: models.DisplayTemplate{Fields: []string{"nombre_completo"}},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		database.DB.Exec("DELETE FROM draws WHERE id = $1", draw.ID)
	})
	return draw
}

func threeRows() []models.ParticipantData {
	return []models.ParticipantData{
		{"nombre_completo": "Juan Pérez", "cedula": "1234567"},
		{"nombre_completo": "María López", "cedula": "2345678"},
		{"nombre_completo": "Luis García", "cedula": "3456789"},
	}
}

func TestCreateDrawBuildsParticipantPool(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)
	assert.Equal(t, models.DrawStatusActive, draw.Status)
	assert.Equal(t, models.StringList{"nombre_completo", "cedula"}, draw.AvailableFields)

	participants, err := s.AvailableParticipants(ctx, draw.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)

	for _, p := range participants {
		assert.Equal(t, p.Data["nombre_completo"], p.DisplayValue)
	}
}

func TestDrawWinnerUntilExhaustion(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		winner, err := s.DrawWinner(ctx, draw.ID)
		require.NoError(t, err)
		require.NotNil(t, winner, "draw %d should produce a winner", i+1)

		assert.False(t, seen[winner.ID.String()], "participant won twice")
		seen[winner.ID.String()] = true

		// Conservation: available + winners == participants
		available, err := s.AvailableParticipants(ctx, draw.ID)
		require.NoError(t, err)
		winners, err := s.ListWinners(ctx, draw.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, len(available)+len(winners))
	}

	// Exhaustion is terminal and does not mutate state
	for i := 0; i < 2; i++ {
		winner, err := s.DrawWinner(ctx, draw.ID)
		require.NoError(t, err)
		assert.Nil(t, winner)
	}

	winners, err := s.ListWinners(ctx, draw.ID)
	require.NoError(t, err)
	assert.Len(t, winners, 3)
}

func TestResetRestoresFullPool(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	for i := 0; i < 2; i++ {
		_, err := s.DrawWinner(ctx, draw.ID)
		require.NoError(t, err)
	}

	require.NoError(t, s.Reset(ctx, draw.ID))

	available, err := s.AvailableParticipants(ctx, draw.ID)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	winners, err := s.ListWinners(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, winners)

	// Reset is idempotent
	require.NoError(t, s.Reset(ctx, draw.ID))
}

func TestFinishedDrawRejectsDrawing(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	require.NoError(t, s.Finish(ctx, draw.ID))
	// Finish is idempotent
	require.NoError(t, s.Finish(ctx, draw.ID))

	winner, err := s.DrawWinner(ctx, draw.ID)
	assert.ErrorIs(t, err, shared.ErrDrawNotActive)
	assert.Nil(t, winner)

	winners, err := s.ListWinners(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, winners, "a finished draw must not record winners")
}

func TestReplaceParticipantsRequiresConfirmationOnFieldMismatch(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	newImport := &models.ImportResult{
		Headers: []string{"nombre_completo", "telefono"},
		Rows:    []models.ParticipantData{{"nombre_completo": "Nuevo", "telefono": "555"}},
		Total:   1,
	}

	_, err := s.ReplaceParticipants(ctx, draw.ID, newImport, false, false)
	var mismatch *shared.FieldMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, []string{"cedula"}, mismatch.MissingFields)
	assert.Equal(t, []string{"telefono"}, mismatch.AddedFields)

	// Nothing was mutated
	available, err := s.AvailableParticipants(ctx, draw.ID)
	require.NoError(t, err)
	assert.Len(t, available, 3)

	current, err := s.GetDrawByID(ctx, draw.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"nombre_completo", "cedula"}, current.AvailableFields)

	// Confirmed, the same replacement goes through
	updated, err := s.ReplaceParticipants(ctx, draw.ID, newImport, false, true)
	require.NoError(t, err)
	assert.Equal(t, models.StringList{"nombre_completo", "telefono"}, updated.AvailableFields)
	assert.Equal(t, 1, updated.ParticipantCount)
}

func TestReplaceParticipantsKeepsWinnersByCedula(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	winner, err := s.DrawWinner(ctx, draw.ID)
	require.NoError(t, err)
	require.NotNil(t, winner)
	winnerCedula := winner.Data["cedula"]

	// Same schema, same cedulas, refreshed names
	newRows := []models.ParticipantData{
		{"nombre_completo": "Juan P. Actualizado", "cedula": "1234567"},
		{"nombre_completo": "María L. Actualizada", "cedula": "2345678"},
		{"nombre_completo": "Luis G. Actualizado", "cedula": "3456789"},
	}

	updated, err := s.ReplaceParticipants(ctx, draw.ID, testImportResult(newRows...), true, false)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ParticipantCount)

	winners, err := s.ListWinners(ctx, draw.ID)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	require.NotNil(t, winners[0].Participant)
	assert.Equal(t, winnerCedula, winners[0].Participant.Data["cedula"])
	assert.NotEqual(t, winner.ID, winners[0].ParticipantID, "winner must point at the new participant row")
}

func TestReplaceParticipantsWithoutKeepWinnersClearsLedger(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	_, err := s.DrawWinner(ctx, draw.ID)
	require.NoError(t, err)

	_, err = s.ReplaceParticipants(ctx, draw.ID, testImportResult(threeRows()...), false, false)
	require.NoError(t, err)

	winners, err := s.ListWinners(ctx, draw.ID)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestUpdateDisplayFieldsRecomputesValues(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	_, err := s.UpdateDraw(ctx, draw.ID, DrawUpdate{DisplayFields: []string{"cedula"}})
	require.NoError(t, err)

	participants, err := s.AvailableParticipants(ctx, draw.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)
	for _, p := range participants {
		assert.Equal(t, p.Data["cedula"], p.DisplayValue)
	}
}

func TestSoftDeleteHidesDrawFromListing(t *testing.T) {
	s := setupDrawServiceTest(t)
	ctx := context.Background()

	draw := createTestDraw(t, s, threeRows()...)

	require.NoError(t, s.SoftDelete(ctx, draw.ID))

	listed, err := s.GetDraws(ctx, 100, 0)
	require.NoError(t, err)
	for _, d := range listed {
		assert.NotEqual(t, draw.ID, d.ID, "soft-deleted draw must not be listed")
	}

	// Direct access by id still resolves
	fetched, err := s.GetDrawByID(ctx, draw.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.NotNil(t, fetched.DeletedAt)
}

// The helpers below are pure and run without a database.

func TestDiffFields(t *testing.T) {
	missing, added := DiffFields(
		[]string{"nombre", "cedula", "email"},
		[]string{"nombre", "telefono"},
	)
	assert.Equal(t, []string{"cedula", "email"}, missing)
	assert.Equal(t, []string{"telefono"}, added)

	missing, added = DiffFields([]string{"a", "b"}, []string{"a", "b"})
	assert.Empty(t, missing)
	assert.Empty(t, added)
}

func TestMatchReconciledWinner(t *testing.T) {
	candidates := []models.Participant{
		{Data: models.ParticipantData{"cedula": "111", "nombre": "Ana"}},
		{Data: models.ParticipantData{"cedula": "222", "nombre": "Juan"}},
		{Data: models.ParticipantData{"cedula": "333", "email": "luis@example.com"}},
	}

	// cedula match
	match := MatchReconciledWinner(models.ParticipantData{"cedula": "222"}, candidates)
	require.NotNil(t, match)
	assert.Equal(t, "222", match.Data["cedula"])

	// falls through to nombre when cedula differs
	match = MatchReconciledWinner(models.ParticipantData{"cedula": "999", "nombre": "Juan"}, candidates)
	require.NotNil(t, match)
	assert.Equal(t, "Juan", match.Data["nombre"])

	// email as the last resort
	match = MatchReconciledWinner(models.ParticipantData{"email": "luis@example.com"}, candidates)
	require.NotNil(t, match)
	assert.Equal(t, "333", match.Data["cedula"])

	// the first candidate agreeing on any key wins, even when a later
	// candidate would agree on a higher-priority key — accepted behavior
	// of the heuristic
	match = MatchReconciledWinner(models.ParticipantData{"cedula": "333", "nombre": "Ana"}, candidates)
	require.NotNil(t, match)
	assert.Equal(t, "Ana", match.Data["nombre"])

	// keys must be present on both sides to count
	assert.Nil(t, MatchReconciledWinner(models.ParticipantData{"telefono": "555"}, candidates))
	assert.Nil(t, MatchReconciledWinner(models.ParticipantData{}, candidates))
}
