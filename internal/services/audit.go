package services

import (
	"context"
	"errors"
	"time"

	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrValidation is returned for a missing selection or field. No
	// network call has been made when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownSelection is returned when a selection is not in the
	// currently derived list
	ErrUnknownSelection = errors.New("selection is not available")
)

// AuditWriter stores journal entries. repository.AuditRepository
// implements it.
type AuditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// journal records an outcome. A nil writer disables journaling and write
// errors are only logged.
func journal(ctx context.Context, w AuditWriter, action, resourceType, resourceID string, start time.Time, err error) {
	if w == nil {
		return
	}
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       models.AuditSuccess,
		Duration:     time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = models.AuditFailure
		entry.ErrorMessage = err.Error()
	}
	if werr := w.Create(context.WithoutCancel(ctx), entry); werr != nil {
		log.Warn().Err(werr).Str("action", action).Msg("Failed to write audit entry")
	}
}
