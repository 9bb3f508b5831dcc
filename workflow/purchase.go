package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const leadPurchaseHandler = "LeadPurchaseDebit"

// PurchaseLead sells a verified lead to exactly one buyer. The decision
// is a single conditional update on is_sold: the read-check-write the
// original marketplace did as three separate calls let two buyers both
// observe is_sold=false and both pay. Losing the race costs nothing and
// returns ErrorAlreadySold.
//
// The wallet debit and receipt ride in the same transaction, guarded by a
// durable idempotency key: a retry of an already-successful purchase
// returns the original receipt instead of charging twice.
func PurchaseLead(ctx context.Context, leadId int, buyerAgentId int) (*models.LeadReceipt, error) {

	buyer, err := utils.FetchModel[models.Agent](ctx, buyerAgentId)
	if err != nil {
		return nil, err
	}
	if !buyer.Eligible() {
		return nil, fmt.Errorf("agent %d is not verified and paid: %w", buyerAgentId, utils.ErrorPreconditionFailed)
	}

	db := config.GetDB()
	var receipt *models.LeadReceipt
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		var lead models.ServiceRequest
		if err := tx.First(&lead, leadId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if lead.IsPremium == nil || !*lead.IsPremium {
			return fmt.Errorf("request %d is not a purchasable lead: %w", leadId, utils.ErrorPreconditionFailed)
		}

		skip, err := BeginIdempotency(tx, leadPurchaseHandler, fmt.Sprint(leadId))
		if err != nil {
			return storeErr(err)
		}
		if skip {
			// A successful purchase already committed. Idempotent retry:
			// hand back the receipt if this buyer owns it, AlreadySold if not.
			var existing models.LeadReceipt
			if err := tx.Where("service_request_id = ?", leadId).First(&existing).Error; err != nil {
				return storeErr(err)
			}
			if existing.BuyerAgentId != buyerAgentId {
				return utils.ErrorAlreadySold
			}
			receipt = &existing
			return nil
		}

		now := time.Now().UTC()

		// The exclusivity commit. sold=false -> true happens at most once;
		// there is no path back.
		res := tx.Model(&models.ServiceRequest{}).
			Where("id = ? AND is_sold = 0", leadId).
			Updates(map[string]interface{}{
				"is_sold":           true,
				"sold_to_agent_id":  buyerAgentId,
				"sold_at":           now,
				"assigned_agent_id": buyerAgentId,
				"assigned_at":       now,
				"status":            models.ServiceRequestStatusAssigned,
			})
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			// No side effects for the loser, including the idempotency row.
			return utils.ErrorAlreadySold
		}

		// Debit the buyer's wallet; insufficient funds rolls everything back.
		res = tx.Model(&models.Agent{}).
			Where("id = ? AND wallet_balance >= ?", buyerAgentId, lead.LeadPrice).
			Update("wallet_balance", gorm.Expr("wallet_balance - ?", lead.LeadPrice))
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("agent %d has insufficient balance: %w", buyerAgentId, utils.ErrorPreconditionFailed)
		}

		receipt = &models.LeadReceipt{
			ReceiptNumber:    uuid.NewString(),
			ServiceRequestId: leadId,
			BuyerAgentId:     buyerAgentId,
			Amount:           lead.LeadPrice,
		}
		if err := tx.Create(receipt).Error; err != nil {
			return storeErr(err)
		}

		if err := MarkIdempotencySucceeded(tx, leadPurchaseHandler, fmt.Sprint(leadId)); err != nil {
			return storeErr(err)
		}

		notif := &models.Notification{
			UserId:        buyer.UserId,
			AgentId:       buyerAgentId,
			Type:          models.NotificationTypeLeadPurchased,
			Subject:       "New Lead Purchased",
			Body:          fmt.Sprintf("You purchased a verified lead: %s looking for %s in %s", lead.ClientName, lead.PropertyType, lead.Location),
			ReferenceType: "service_request",
			ReferenceId:   leadId,
		}
		return models.EnqueueNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
