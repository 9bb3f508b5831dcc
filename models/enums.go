package models

// ServiceRequestStatus is the lifecycle state of a service request.
// The original admin tooling wrote free-form status strings from many
// call sites; every mutation now goes through CanTransition so an
// invalid hop fails loudly instead of silently corrupting the queue.
type ServiceRequestStatus string

const (
	ServiceRequestStatusOpen      ServiceRequestStatus = "open"
	ServiceRequestStatusAssigned  ServiceRequestStatus = "assigned"
	ServiceRequestStatusCompleted ServiceRequestStatus = "completed"
	ServiceRequestStatusCancelled ServiceRequestStatus = "cancelled"
)

func (s ServiceRequestStatus) IsTerminal() bool {
	return s == ServiceRequestStatusCompleted || s == ServiceRequestStatusCancelled
}

var validTransitions = map[ServiceRequestStatus][]ServiceRequestStatus{
	ServiceRequestStatusOpen:     {ServiceRequestStatusAssigned, ServiceRequestStatusCancelled},
	ServiceRequestStatusAssigned: {ServiceRequestStatusCompleted, ServiceRequestStatusOpen, ServiceRequestStatusCancelled},
}

// CanTransition reports whether from -> to is a legal lifecycle hop.
// assigned -> open is the release path; terminal states have no exits.
func CanTransition(from, to ServiceRequestStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type VerificationStatus string

const (
	VerificationStatusPending  VerificationStatus = "pending"
	VerificationStatusApproved VerificationStatus = "approved"
	VerificationStatusRejected VerificationStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

type RequestUrgency string

const (
	RequestUrgencyLow    RequestUrgency = "low"
	RequestUrgencyNormal RequestUrgency = "normal"
	RequestUrgencyHigh   RequestUrgency = "high"
)

type AdEventType string

const (
	AdEventTypeImpression AdEventType = "impression"
	AdEventTypeClick      AdEventType = "click"
)

type NotificationType string

const (
	NotificationTypeRequestAssigned      NotificationType = "request_assigned"
	NotificationTypeRequestReleased      NotificationType = "request_released"
	NotificationTypeLeadPurchased        NotificationType = "lead_purchased"
	NotificationTypeVerificationDecision NotificationType = "verification_decision"
)

/* outbox */

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusPublished  = "PUBLISHED"
	OutboxPublishStatusDead       = "DEAD"
)

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)
