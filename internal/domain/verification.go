package domain

// VerificationOutcome is the verdict of the confirmation verifier.
type VerificationOutcome string

const (
	OutcomeAccepted                  VerificationOutcome = "ACCEPTED"
	OutcomeAlreadyEntitled           VerificationOutcome = "ALREADY_ENTITLED"
	OutcomeAlreadyConfirmed          VerificationOutcome = "ALREADY_CONFIRMED"
	OutcomeGatewayVerificationFailed VerificationOutcome = "GATEWAY_VERIFICATION_FAILED"
	OutcomeOrderIDMissing            VerificationOutcome = "ORDER_ID_MISSING"
	OutcomeDuplicateOrder            VerificationOutcome = "DUPLICATE_ORDER"
	OutcomeDuplicateIntent           VerificationOutcome = "DUPLICATE_INTENT"
)

// Submission is a confirmation artifact handed to the verifier.
type Submission struct {
	UserID      string
	TicketID    string
	IntentRef   string
	ArtifactRef string
}

// VerificationResult carries the outcome and, when accepted, the payment
// that was recorded.
type VerificationResult struct {
	Outcome VerificationOutcome
	Payment *Payment
	OrderID string
}

// Accepted reports whether the submission was committed.
func (r VerificationResult) Accepted() bool {
	return r.Outcome == OutcomeAccepted
}
