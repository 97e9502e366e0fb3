package services

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sorteohub/sorteo-backend/models"
	"github.com/sorteohub/sorteo-backend/shared"
)

// ReconciliationKeys are the field keys used to re-identify a prior winner
// after a full participant replacement, evaluated in priority order per
// candidate. This is a best-effort heuristic: two different people sharing
// a value can false-match, and a winner whose values all changed is lost.
var ReconciliationKeys = []string{"cedula", "nombre", "email"}

// DrawConfig carries the configure-step input for creating a draw
type DrawConfig struct {
	Name            string
	BackgroundImage *string
	Template        models.DisplayTemplate
}

// DrawUpdate carries the editable draw attributes. Nil pointers leave the
// attribute unchanged; a non-nil DisplayFields triggers a batch recompute
// of every participant's stored display value.
type DrawUpdate struct {
	Name             *string
	Status           *string
	DisplayFields    []string
	RemoveBackground bool
}

// DrawService owns the participant pool and winner ledger of each draw:
// creation from imported rows, uniform random winner selection without
// repetition, the reset/finish lifecycle, and full pool replacement with
// optional winner carry-over.
type DrawService struct {
	DB             *sql.DB
	Display        *DisplayService
	serviceMetrics *shared.ServiceMetrics
}

// NewDrawService creates a new draw service instance
func NewDrawService(db *sql.DB) *DrawService {
	return &DrawService{
		DB:             db,
		Display:        NewDisplayService(),
		serviceMetrics: shared.NewServiceMetrics("Draw_Service"),
	}
}

// CreateDraw creates a draw and one participant per imported row, with the
// display value precomputed from the configured template. The participant
// count always equals the row count.
func (s *DrawService) CreateDraw(ctx context.Context, result *models.ImportResult, config DrawConfig) (*models.Draw, error) {
	start := time.Now()

	draw := &models.Draw{
		Name:            config.Name,
		BackgroundImage: config.BackgroundImage,
		AvailableFields: models.StringList(result.Headers),
		DisplayTemplate: config.Template,
		Status:          models.DrawStatusActive,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO draws (name, background_image, available_fields, display_template, status)
              VALUES ($1, $2, $3, $4, $5)
              RETURNING id, created_at, updated_at`

	err = tx.QueryRowContext(ctx, query,
		draw.Name, draw.BackgroundImage, draw.AvailableFields, draw.DisplayTemplate, draw.Status,
	).Scan(&draw.ID, &draw.CreatedAt, &draw.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create draw: %w", err)
	}

	if err := s.insertParticipants(ctx, tx, draw, result.Rows); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit draw creation: %w", err)
	}

	draw.ParticipantCount = len(result.Rows)
	s.serviceMetrics.RecordRequest(true, time.Since(start))

	logrus.WithFields(logrus.Fields{
		"draw_id":      draw.ID,
		"draw_name":    draw.Name,
		"participants": len(result.Rows),
	}).Info("Draw created successfully")

	return draw, nil
}

// execer covers both *sql.DB and *sql.Tx for participant inserts
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *DrawService) insertParticipants(ctx context.Context, db execer, draw *models.Draw, rows []models.ParticipantData) error {
	query := `INSERT INTO participants (draw_id, data, display_value) VALUES ($1, $2, $3)`

	for _, row := range rows {
		displayValue := s.Display.Render(row, draw.DisplayTemplate)
		if _, err := db.ExecContext(ctx, query, draw.ID, row, displayValue); err != nil {
			return fmt.Errorf("failed to create participant: %w", err)
		}
	}
	return nil
}

// GetDraws returns non-deleted draws newest-first with participant and
// winner counts
func (s *DrawService) GetDraws(ctx context.Context, limit, offset int) ([]models.Draw, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT d.id, d.name, d.background_image, d.available_fields, d.display_template,
              d.status, d.created_at, d.updated_at, d.deleted_at,
              (SELECT COUNT(*) FROM participants p WHERE p.draw_id = d.id),
              (SELECT COUNT(*) FROM winners w WHERE w.draw_id = d.id)
              FROM draws d
              WHERE d.deleted_at IS NULL
              ORDER BY d.created_at DESC
              LIMIT $1 OFFSET $2`

	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query draws: %w", err)
	}
	defer rows.Close()

	var draws []models.Draw
	for rows.Next() {
		var draw models.Draw
		err := rows.Scan(
			&draw.ID, &draw.Name, &draw.BackgroundImage, &draw.AvailableFields, &draw.DisplayTemplate,
			&draw.Status, &draw.CreatedAt, &draw.UpdatedAt, &draw.DeletedAt,
			&draw.ParticipantCount, &draw.WinnerCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draw: %w", err)
		}
		draws = append(draws, draw)
	}

	return draws, rows.Err()
}

// GetDrawByID returns a draw by id, including soft-deleted ones so prior
// identities stay referenceable. Returns nil when no row exists.
func (s *DrawService) GetDrawByID(ctx context.Context, id uuid.UUID) (*models.Draw, error) {
	query := `SELECT d.id, d.name, d.background_image, d.available_fields, d.display_template,
              d.status, d.created_at, d.updated_at, d.deleted_at,
              (SELECT COUNT(*) FROM participants p WHERE p.draw_id = d.id),
              (SELECT COUNT(*) FROM winners w WHERE w.draw_id = d.id)
              FROM draws d WHERE d.id = $1`

	var draw models.Draw
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&draw.ID, &draw.Name, &draw.BackgroundImage, &draw.AvailableFields, &draw.DisplayTemplate,
		&draw.Status, &draw.CreatedAt, &draw.UpdatedAt, &draw.DeletedAt,
		&draw.ParticipantCount, &draw.WinnerCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan draw: %w", err)
	}

	return &draw, nil
}

// AvailableParticipants returns the participants of a draw that have no
// winner record. Always computed as a set difference against the winner
// ledger, never from a cached flag.
func (s *DrawService) AvailableParticipants(ctx context.Context, drawID uuid.UUID) ([]models.Participant, error) {
	query := `SELECT id, draw_id, data, display_value, created_at, updated_at
              FROM participants
              WHERE draw_id = $1
              AND id NOT IN (SELECT participant_id FROM winners WHERE draw_id = $1)
              ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query available participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.DrawID, &p.Data, &p.DisplayValue, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// DrawWinner selects one participant uniformly at random from the available
// pool and records the win. Returns (nil, nil) when the pool is exhausted,
// and also when a concurrent call won the race for the same participant:
// the unique (draw_id, participant_id) constraint rejects the second insert
// and this call simply reports no winner drawn.
func (s *DrawService) DrawWinner(ctx context.Context, drawID uuid.UUID) (*models.Participant, error) {
	start := time.Now()

	draw, err := s.GetDrawByID(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, shared.ErrDrawNotFound
	}
	if !draw.IsActive() {
		return nil, shared.ErrDrawNotActive
	}

	available, err := s.AvailableParticipants(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		// Pool exhausted: a normal terminal condition, not an error
		return nil, nil
	}

	winner := available[rand.Intn(len(available))]

	query := `INSERT INTO winners (draw_id, participant_id, won_at) VALUES ($1, $2, $3)`
	_, err = s.DB.ExecContext(ctx, query, drawID, winner.ID, time.Now())
	if err != nil {
		if shared.IsUniqueViolation(err) {
			logrus.WithFields(logrus.Fields{
				"draw_id":        drawID,
				"participant_id": winner.ID,
			}).Warn("Concurrent draw collision, no winner drawn this call")
			s.serviceMetrics.IncrementCustomCounter("draw_collisions")
			return nil, nil
		}
		s.serviceMetrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("failed to record winner: %w", err)
	}

	s.serviceMetrics.RecordRequest(true, time.Since(start))
	s.serviceMetrics.IncrementCustomCounter("winners_drawn")

	logrus.WithFields(logrus.Fields{
		"draw_id":        drawID,
		"participant_id": winner.ID,
		"display_value":  winner.DisplayValue,
	}).Info("Winner drawn")

	return &winner, nil
}

// ListWinners returns a draw's winners in win order with their joined
// participant data
func (s *DrawService) ListWinners(ctx context.Context, drawID uuid.UUID) ([]models.Winner, error) {
	query := `SELECT w.id, w.draw_id, w.participant_id, w.won_at, w.created_at,
              p.id, p.draw_id, p.data, p.display_value, p.created_at, p.updated_at
              FROM winners w
              JOIN participants p ON p.id = w.participant_id
              WHERE w.draw_id = $1
              ORDER BY w.won_at, w.created_at`

	rows, err := s.DB.QueryContext(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	var winners []models.Winner
	for rows.Next() {
		var w models.Winner
		var p models.Participant
		err := rows.Scan(
			&w.ID, &w.DrawID, &w.ParticipantID, &w.WonAt, &w.CreatedAt,
			&p.ID, &p.DrawID, &p.Data, &p.DisplayValue, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		w.Participant = &p
		winners = append(winners, w)
	}

	return winners, rows.Err()
}

// Reset deletes every winner record of the draw, returning all participants
// to the available pool. Idempotent; the draw status is unchanged.
func (s *DrawService) Reset(ctx context.Context, drawID uuid.UUID) error {
	draw, err := s.GetDrawByID(ctx, drawID)
	if err != nil {
		return err
	}
	if draw == nil {
		return shared.ErrDrawNotFound
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM winners WHERE draw_id = $1`, drawID); err != nil {
		return fmt.Errorf("failed to reset draw: %w", err)
	}

	logrus.WithField("draw_id", drawID).Info("Draw reset, winners cleared")
	return nil
}

// Finish marks the draw as finished. Idempotent; further DrawWinner calls
// fail with ErrDrawNotActive.
func (s *DrawService) Finish(ctx context.Context, drawID uuid.UUID) error {
	result, err := s.DB.ExecContext(ctx,
		`UPDATE draws SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		models.DrawStatusFinished, drawID)
	if err != nil {
		return fmt.Errorf("failed to finish draw: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish draw: %w", err)
	}
	if affected == 0 {
		return shared.ErrDrawNotFound
	}

	logrus.WithField("draw_id", drawID).Info("Draw finished")
	return nil
}

// SoftDelete tombstones the draw so listings exclude it. Direct access by
// id keeps working.
func (s *DrawService) SoftDelete(ctx context.Context, drawID uuid.UUID) error {
	result, err := s.DB.ExecContext(ctx,
		`UPDATE draws SET deleted_at = CURRENT_TIMESTAMP WHERE id = $1 AND deleted_at IS NULL`,
		drawID)
	if err != nil {
		return fmt.Errorf("failed to delete draw: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete draw: %w", err)
	}
	if affected == 0 {
		return shared.ErrDrawNotFound
	}

	logrus.WithField("draw_id", drawID).Info("Draw soft-deleted")
	return nil
}

// UpdateDraw edits name, status and the display-field list. Changing the
// field list rebuilds the template and recomputes the stored display value
// of every current participant in one batch.
func (s *DrawService) UpdateDraw(ctx context.Context, drawID uuid.UUID, update DrawUpdate) (*models.Draw, error) {
	draw, err := s.GetDrawByID(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, shared.ErrDrawNotFound
	}

	if update.Name != nil {
		draw.Name = *update.Name
	}
	if update.Status != nil {
		draw.Status = *update.Status
	}
	if update.RemoveBackground {
		draw.BackgroundImage = nil
	}
	if update.DisplayFields != nil {
		draw.DisplayTemplate = models.DisplayTemplate{Fields: update.DisplayFields}
	}

	query := `UPDATE draws SET name = $1, status = $2, background_image = $3,
              display_template = $4, updated_at = CURRENT_TIMESTAMP
              WHERE id = $5`
	_, err = s.DB.ExecContext(ctx, query,
		draw.Name, draw.Status, draw.BackgroundImage, draw.DisplayTemplate, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to update draw: %w", err)
	}

	if update.DisplayFields != nil {
		if err := s.RecomputeDisplayValues(ctx, draw); err != nil {
			return nil, err
		}
	}

	logrus.WithField("draw_id", drawID).Info("Draw updated")
	return draw, nil
}

// SetBackground stores the opaque background image reference on the draw
func (s *DrawService) SetBackground(ctx context.Context, drawID uuid.UUID, ref *string) error {
	result, err := s.DB.ExecContext(ctx,
		`UPDATE draws SET background_image = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		ref, drawID)
	if err != nil {
		return fmt.Errorf("failed to update background: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update background: %w", err)
	}
	if affected == 0 {
		return shared.ErrDrawNotFound
	}
	return nil
}

// RecomputeDisplayValues re-renders and stores the display value of every
// participant of the draw from its current template. Display values are
// never recomputed lazily on read.
func (s *DrawService) RecomputeDisplayValues(ctx context.Context, draw *models.Draw) error {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, data FROM participants WHERE draw_id = $1`, draw.ID)
	if err != nil {
		return fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id    uuid.UUID
		value string
	}
	var updates []pending

	for rows.Next() {
		var id uuid.UUID
		var data models.ParticipantData
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		updates = append(updates, pending{id: id, value: s.Display.Render(data, draw.DisplayTemplate)})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		_, err := s.DB.ExecContext(ctx,
			`UPDATE participants SET display_value = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
			u.value, u.id)
		if err != nil {
			return fmt.Errorf("failed to update display value: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"draw_id":      draw.ID,
		"participants": len(updates),
	}).Info("Recomputed participant display values")

	return nil
}

// ReplaceParticipants replaces the entire participant pool from a fresh
// import. When the new headers differ from the draw's available fields and
// the caller has not confirmed, a FieldMismatchError is returned and
// nothing is mutated. With keepWinners, prior winners are re-identified
// among the new participants by the reconciliation heuristic and given
// fresh winner records.
//
// The confirmation gate is all-or-nothing, but the replacement steps after
// it are deliberately not transactional: a crash mid-replacement leaves a
// state that re-running the replacement repairs.
func (s *DrawService) ReplaceParticipants(ctx context.Context, drawID uuid.UUID, result *models.ImportResult, keepWinners, confirmed bool) (*models.Draw, error) {
	draw, err := s.GetDrawByID(ctx, drawID)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		return nil, shared.ErrDrawNotFound
	}

	missing, added := DiffFields(draw.AvailableFields, result.Headers)
	if (len(missing) > 0 || len(added) > 0) && !confirmed {
		return nil, &shared.FieldMismatchError{MissingFields: missing, AddedFields: added}
	}

	// Snapshot the raw data of current winners before the old pool goes away
	var winnerSnapshots []models.ParticipantData
	if keepWinners {
		winners, err := s.ListWinners(ctx, drawID)
		if err != nil {
			return nil, err
		}
		for _, w := range winners {
			if w.Participant != nil {
				winnerSnapshots = append(winnerSnapshots, w.Participant.Data)
			}
		}
	}

	// Old winner rows go away with their participants via the FK cascade
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM participants WHERE draw_id = $1`, drawID); err != nil {
		return nil, fmt.Errorf("failed to delete old participants: %w", err)
	}

	draw.AvailableFields = models.StringList(result.Headers)
	_, err = s.DB.ExecContext(ctx,
		`UPDATE draws SET available_fields = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`,
		draw.AvailableFields, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to update available fields: %w", err)
	}

	// New pool keeps rendering with the draw's existing template
	if err := s.insertParticipants(ctx, s.DB, draw, result.Rows); err != nil {
		return nil, err
	}

	// Clear any winner rows that survived, then rebuild the ledger for
	// carried-over winners with fresh timestamps
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM winners WHERE draw_id = $1`, drawID); err != nil {
		return nil, fmt.Errorf("failed to clear winners: %w", err)
	}

	carried := 0
	if keepWinners && len(winnerSnapshots) > 0 {
		participants, err := s.listParticipants(ctx, drawID)
		if err != nil {
			return nil, err
		}

		for _, snapshot := range winnerSnapshots {
			match := MatchReconciledWinner(snapshot, participants)
			if match == nil {
				continue
			}
			_, err := s.DB.ExecContext(ctx,
				`INSERT INTO winners (draw_id, participant_id, won_at) VALUES ($1, $2, $3)`,
				drawID, match.ID, time.Now())
			if err != nil {
				// Two old winners can resolve to the same new participant;
				// the unique constraint keeps the ledger consistent
				if shared.IsUniqueViolation(err) {
					continue
				}
				return nil, fmt.Errorf("failed to carry over winner: %w", err)
			}
			carried++
		}
	}

	logrus.WithFields(logrus.Fields{
		"draw_id":         drawID,
		"participants":    len(result.Rows),
		"winners_carried": carried,
		"keep_winners":    keepWinners,
	}).Info("Participants replaced")

	return s.GetDrawByID(ctx, drawID)
}

func (s *DrawService) listParticipants(ctx context.Context, drawID uuid.UUID) ([]models.Participant, error) {
	query := `SELECT id, draw_id, data, display_value, created_at, updated_at
              FROM participants WHERE draw_id = $1 ORDER BY created_at, id`

	rows, err := s.DB.QueryContext(ctx, query, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.DrawID, &p.Data, &p.DisplayValue, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// DiffFields compares the old and new field sets and returns which old
// fields are missing from the new set and which new fields were added
func DiffFields(oldFields, newFields []string) (missing, added []string) {
	oldSet := make(map[string]bool, len(oldFields))
	for _, f := range oldFields {
		oldSet[f] = true
	}
	newSet := make(map[string]bool, len(newFields))
	for _, f := range newFields {
		newSet[f] = true
	}

	for _, f := range oldFields {
		if !newSet[f] {
			missing = append(missing, f)
		}
	}
	for _, f := range newFields {
		if !oldSet[f] {
			added = append(added, f)
		}
	}
	return missing, added
}

// MatchReconciledWinner scans candidates in order and returns the first one
// whose data agrees with the old winner's snapshot on at least one
// reconciliation key. Both sides must actually carry the key; values are
// compared verbatim.
func MatchReconciledWinner(snapshot models.ParticipantData, candidates []models.Participant) *models.Participant {
	for i := range candidates {
		for _, key := range ReconciliationKeys {
			oldValue, hasOld := snapshot[key]
			newValue, hasNew := candidates[i].Data[key]
			if hasOld && hasNew && oldValue == newValue {
				return &candidates[i]
			}
		}
	}
	return nil
}

// GetServiceMetrics exposes the draw metrics tracker
func (s *DrawService) GetServiceMetrics() *shared.ServiceMetrics {
	return s.serviceMetrics
}
