package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	dirtyAdsSetKey    = "adcounter:dirty"
	rotationAttempts  = 3
	adImpressionsKeyF = "adcounter:impressions:%d"
	adClicksKeyF      = "adcounter:clicks:%d"
)

// NextAd picks the least-recently-shown ad from an already-filtered
// active pool: nil last_shown_at first, then oldest, id tie-break.
// Shares the fairness rule with NextAgent; kept separate because the
// exclusion parameter has no meaning for rotation.
func NextAd(pool []*models.Advertisement) *models.Advertisement {
	var best *models.Advertisement
	for _, ad := range pool {
		if ad == nil {
			continue
		}
		if best == nil || lessRecentlyShown(ad, best) {
			best = ad
		}
	}
	return best
}

func lessRecentlyShown(a, b *models.Advertisement) bool {
	switch {
	case a.LastShownAt == nil && b.LastShownAt == nil:
		return a.ID < b.ID
	case a.LastShownAt == nil:
		return true
	case b.LastShownAt == nil:
		return false
	}
	if a.LastShownAt.Equal(*b.LastShownAt) {
		return a.ID < b.ID
	}
	return a.LastShownAt.Before(*b.LastShownAt)
}

// NextAdToShow selects and commits the next ad in rotation. The commit is
// an optimistic CAS on times_shown: two concurrent viewers can both pick
// the same never-shown ad, but only one bumps it; the loser re-reads and
// takes the next candidate. Without this, a burst of viewers starves the
// rest of the pool by repeatedly showing the same head.
//
// Returns (nil, nil) when no active ad exists.
func NextAdToShow(ctx context.Context) (*models.Advertisement, error) {

	db := config.GetDB()
	for attempt := 0; attempt < rotationAttempts; attempt++ {
		now := time.Now().UTC()

		ads, err := models.FetchActiveAds(ctx, now)
		if err != nil {
			return nil, storeErr(err)
		}
		pick := NextAd(ads)
		if pick == nil {
			return nil, nil
		}

		res := db.WithContext(ctx).Model(&models.Advertisement{}).
			Where("id = ? AND times_shown = ?", pick.ID, pick.TimesShown).
			Updates(map[string]interface{}{
				"last_shown_at": now,
				"times_shown":   pick.TimesShown + 1,
			})
		if res.Error != nil {
			return nil, storeErr(res.Error)
		}
		if res.RowsAffected == 1 {
			pick.LastShownAt = &now
			pick.TimesShown++
			TrackAdEvent(ctx, pick.ID, models.AdEventTypeImpression)
			return pick, nil
		}
		// Lost the CAS; another viewer committed first. Re-read and retry.
	}
	return nil, fmt.Errorf("rotation contended %d times: %w", rotationAttempts, utils.ErrorStoreUnavailable)
}

// TrackAdEvent records an impression or click. Counters are approximate:
// a Redis INCR now, flushed to MySQL by the CounterFlusher.
// The audit row is best-effort too; neither may fail the page view.
func TrackAdEvent(ctx context.Context, adId int, eventType models.AdEventType) {
	logger := config.GetLogger()

	key := fmt.Sprintf(adImpressionsKeyF, adId)
	if eventType == models.AdEventTypeClick {
		key = fmt.Sprintf(adClicksKeyF, adId)
	}
	if _, err := config.IncrRedisCounter(ctx, key); err != nil {
		config.LogError(logger, "rotation.go", "TrackAdEvent", "IncrRedisCounter", adId, err)
	}
	if err := config.AddRedisSet(dirtyAdsSetKey, strconv.Itoa(adId)); err != nil {
		config.LogError(logger, "rotation.go", "TrackAdEvent", "AddRedisSet", adId, err)
	}

	db := config.GetDB()
	event := models.AdEvent{AdvertisementId: adId, EventType: eventType}
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		config.LogError(logger, "rotation.go", "TrackAdEvent", "create ad event", adId, err)
	}
}

// CounterFlusher periodically folds the Redis ad counters into MySQL.
// Loss between flushes is tolerated (approximate counts); the flush
// itself drains each counter atomically via GETDEL so nothing is
// counted twice.
type CounterFlusher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	PollInterval time.Duration
}

func NewCounterFlusher(db *gorm.DB, logger *logrus.Logger) *CounterFlusher {
	return &CounterFlusher{
		DB:           db,
		Logger:       logger,
		PollInterval: 30 * time.Second,
	}
}

func (f *CounterFlusher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.PollInterval):
		}
		f.flushOnce(ctx)
	}
}

func (f *CounterFlusher) flushOnce(ctx context.Context) {
	members, err := config.GetRedisSetMembers(dirtyAdsSetKey)
	if err != nil {
		config.LogError(f.Logger, "rotation.go", "flushOnce", "GetRedisSetMembers", nil, err)
		return
	}

	for _, member := range members {
		adId, err := strconv.Atoi(member)
		if err != nil {
			_ = config.RemoveRedisSetMember(dirtyAdsSetKey, member)
			continue
		}

		impressions, err := config.GetAndDelRedisCounter(ctx, fmt.Sprintf(adImpressionsKeyF, adId))
		if err != nil {
			config.LogError(f.Logger, "rotation.go", "flushOnce", "drain impressions", adId, err)
			continue
		}
		clicks, err := config.GetAndDelRedisCounter(ctx, fmt.Sprintf(adClicksKeyF, adId))
		if err != nil {
			config.LogError(f.Logger, "rotation.go", "flushOnce", "drain clicks", adId, err)
			continue
		}

		if impressions > 0 || clicks > 0 {
			err = f.DB.WithContext(ctx).Model(&models.Advertisement{}).
				Where("id = ?", adId).
				Updates(map[string]interface{}{
					"impressions": gorm.Expr("impressions + ?", impressions),
					"clicks":      gorm.Expr("clicks + ?", clicks),
				}).Error
			if err != nil {
				config.LogError(f.Logger, "rotation.go", "flushOnce", "fold counters", adId, err)
				continue
			}
		}
		_ = config.RemoveRedisSetMember(dirtyAdsSetKey, member)
	}
}
