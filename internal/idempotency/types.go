package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. Keys are
// scoped by company so two tenants never collide on a client-chosen key.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK: company_id#key
	CompanyID      string    `dynamodbav:"company_id"`
	Status         string    `dynamodbav:"status"`
	RequestHash    string    `dynamodbav:"request_hash"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Claim is what a caller learns when presenting a key.
type Claim int

const (
	// ClaimAcquired means the caller owns the key and must run the request.
	ClaimAcquired Claim = iota
	// ClaimReplay means the request already completed; replay the stored response.
	ClaimReplay
	// ClaimInProgress means another request with the key is still running.
	ClaimInProgress
	// ClaimMismatch means the key was used for a different request body.
	ClaimMismatch
)
