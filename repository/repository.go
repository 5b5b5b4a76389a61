// Package repository executes query plans and lifecycle writes against the
// message collection.
package repository

import (
	"context"
	"time"

	"msgstore/models"
	"msgstore/planner"
)

// Repository is implemented by the MongoDB store and by the sharded
// in-memory store used in tests and local development.
type Repository interface {
	// Insert stores a validated, normalized record. A record whose _id (or,
	// on an unsharded deployment, msgId) already exists fails with
	// models.ErrDuplicateMessage.
	Insert(ctx context.Context, rec *models.MessageRecord) error

	// Find returns records matching plan in (msgCreateTime desc, msgId desc)
	// order, positioned after plan.After. It returns at most plan.Limit+1
	// records; the extra one only tells the caller another page exists.
	Find(ctx context.Context, plan planner.Plan) ([]models.MessageRecord, error)

	// AdvanceStatus moves msgStatus forward to next. Setting the current
	// status again is a no-op; moving backwards fails with
	// models.ErrStatusRegression.
	AdvanceStatus(ctx context.Context, chatID, msgID string, next models.MsgStatus, at time.Time) (*models.MessageRecord, error)

	// Withdraw marks a record withdrawn. Withdrawing twice is a no-op.
	Withdraw(ctx context.Context, chatID, msgID string, at time.Time) (*models.MessageRecord, error)
}
