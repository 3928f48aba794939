package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Purchaser identifies who a session belongs to: a signed-in user or a guest email.
type Purchaser struct {
	UserID     *uuid.UUID
	GuestEmail string
}

// Repository persists checkout sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindOpenByHash(ctx context.Context, purchaser Purchaser, cartHash string, createdAfter time.Time) (*models.CheckoutSession, error)
	SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	Expire(ctx context.Context, id uuid.UUID) error
	ExpireOpenBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout session repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindOpenByHash returns the newest open session for the purchaser and cart,
// or nil when there is none.
func (r *repository) FindOpenByHash(ctx context.Context, purchaser Purchaser, cartHash string, createdAfter time.Time) (*models.CheckoutSession, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.CheckoutSessionOpen).
		Where("cart_hash = ?", cartHash).
		Where("created_at > ?", createdAfter)
	if purchaser.UserID != nil {
		query = query.Where("user_id = ?", *purchaser.UserID)
	} else {
		query = query.Where("user_id IS NULL AND guest_email = ?", purchaser.GuestEmail)
	}

	var session models.CheckoutSession
	err := query.Order("created_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repository) SetPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"payment_intent_id": intentID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) Expire(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, enums.CheckoutSessionOpen).
		Updates(map[string]any{"status": enums.CheckoutSessionExpired, "updated_at": time.Now().UTC()}).Error
}

// ExpireOpenBefore marks up to limit open sessions created before cutoff as expired.
func (r *repository) ExpireOpenBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	ids := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Select("id").
		Where("status = ? AND created_at < ?", enums.CheckoutSessionOpen, cutoff).
		Order("created_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id IN (?)", ids).
		Where("status = ?", enums.CheckoutSessionOpen).
		Updates(map[string]any{"status": enums.CheckoutSessionExpired, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
