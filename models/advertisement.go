package models

import (
	"context"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/utils"
)

// Advertisement is a boosted property promotion. Rotation picks the
// least-recently-shown active ad; TimesShown doubles as the optimistic
// version column for the rotation commit (see workflow.NextAdToShow).
// Impressions/Clicks are approximate: they accumulate in Redis and are
// flushed here in the background.
type Advertisement struct {
	ID             int        `gorm:"primary_key" json:"id"`
	AgentId        int        `gorm:"index;not null" json:"agent_id"`
	PropertyTitle  string     `gorm:"size:150;not null" json:"property_title"`
	ImageURL       string     `gorm:"size:255" json:"image_url"`
	TargetURL      string     `gorm:"size:255" json:"target_url"`
	IsActive       *bool      `gorm:"not null;default:true;index" json:"is_active"`
	BoostExpiresAt *time.Time `gorm:"index" json:"boost_expires_at"`
	LastShownAt    *time.Time `gorm:"index" json:"last_shown_at"`
	TimesShown     int        `gorm:"not null;default:0" json:"times_shown"`
	Impressions    int64      `gorm:"not null;default:0" json:"impressions"`
	Clicks         int64      `gorm:"not null;default:0" json:"clicks"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAdvertisement struct {
	AgentId       int    `json:"agent_id" binding:"required"`
	PropertyTitle string `json:"property_title" binding:"required"`
	ImageURL      string `json:"image_url"`
	TargetURL     string `json:"target_url"`
	BoostDays     int    `json:"boost_days" binding:"required,min=1"`
}

// AdEvent is the per-display/per-click audit row (kept alongside the
// approximate counters for revenue reporting).
type AdEvent struct {
	ID              int         `gorm:"primary_key" json:"id"`
	AdvertisementId int         `gorm:"index;not null" json:"advertisement_id"`
	EventType       AdEventType `gorm:"size:15;not null" json:"event_type"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func CreateAdvertisement(ctx context.Context, input *NewAdvertisement) (*Advertisement, error) {

	if err := utils.ValidateResourceId[Agent](ctx, input.AgentId); err != nil {
		return nil, err
	}

	expires := time.Now().UTC().Add(time.Duration(input.BoostDays) * 24 * time.Hour)
	ad := Advertisement{
		AgentId:        input.AgentId,
		PropertyTitle:  input.PropertyTitle,
		ImageURL:       input.ImageURL,
		TargetURL:      input.TargetURL,
		BoostExpiresAt: &expires,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&ad).Error; err != nil {
		return nil, err
	}
	return &ad, nil
}

// FetchActiveAds returns the rotation pool in least-recently-shown order
// (NULL first, id tie-break), excluding expired boosts.
func FetchActiveAds(ctx context.Context, now time.Time) ([]*Advertisement, error) {

	db := config.GetDB()
	var ads []*Advertisement
	err := db.WithContext(ctx).
		Where("is_active = 1 AND (boost_expires_at IS NULL OR boost_expires_at > ?)", now).
		Order("last_shown_at ASC, id ASC").
		Find(&ads).Error
	if err != nil {
		return nil, err
	}
	return ads, nil
}

// DeactivateExpiredBoosts flips off ads whose boost window has lapsed.
// Run by cmd/cleanup-expired-boosts.
func DeactivateExpiredBoosts(ctx context.Context, now time.Time) (int64, error) {

	db := config.GetDB()
	res := db.WithContext(ctx).Model(&Advertisement{}).
		Where("is_active = 1 AND boost_expires_at IS NOT NULL AND boost_expires_at <= ?", now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
