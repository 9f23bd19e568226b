/**
 * @description
 * Identity-verification types and the `Checker` port the orchestration engine
 * consults before invoking a connector. Actual provider integrations are out
 * of scope; the static checker stands in for them.
 */

package kyc

import "context"

// Status is the verification state of a customer.
type Status string

const (
	StatusNotStarted     Status = "NOT_STARTED"
	StatusPending        Status = "PENDING"
	StatusVerified       Status = "VERIFIED"
	StatusRejected       Status = "REJECTED"
	StatusMoreInfoNeeded Status = "MORE_INFO_NEEDED"
)

// Checker reports the verification status for a customer. An empty customer
// id is a customer the system has never seen.
type Checker interface {
	CheckStatus(ctx context.Context, customerID string) (Status, error)
}

// StaticChecker always reports the same status. Useful for development and
// tests, and as the default until a real provider is wired in.
type StaticChecker struct {
	Status Status
}

func (c StaticChecker) CheckStatus(ctx context.Context, customerID string) (Status, error) {
	if c.Status == "" {
		return StatusNotStarted, nil
	}
	return c.Status, nil
}
