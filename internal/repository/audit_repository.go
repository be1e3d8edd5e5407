package repository

import (
	"context"
	"fmt"

	"github.com/otcheredev/rehab-portal/internal/database"
	"github.com/otcheredev/rehab-portal/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if database.DB == nil {
		return database.ErrNotConnected
	}
	if err := database.DB.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// GetByUserID retrieves a caregiver's audit logs, newest first
func (r *AuditRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]models.AuditLog, error) {
	if database.DB == nil {
		return nil, database.ErrNotConnected
	}

	var logs []models.AuditLog
	query := database.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}

	return logs, nil
}

// GetByResource retrieves audit logs for a specific resource
func (r *AuditRepository) GetByResource(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error) {
	if database.DB == nil {
		return nil, database.ErrNotConnected
	}

	var logs []models.AuditLog
	if err := database.DB.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at DESC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get audit logs: %w", err)
	}
	return logs, nil
}
