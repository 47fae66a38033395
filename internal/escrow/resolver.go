package escrow

// DisputeOutcome is the fund outcome of a buyer-initiated dispute.
type DisputeOutcome int

const (
	// OutcomeAutoRefund cancels the authorization and returns funds to the
	// buyer. Safe because the seller never attested handoff: the meeting
	// likely never happened.
	OutcomeAutoRefund DisputeOutcome = iota

	// OutcomeAdminReview holds funds pending manual resolution. Once the
	// seller asserts the item changed hands, the dispute is evidentiary and
	// the system must not unilaterally pick refund or capture.
	OutcomeAdminReview
)

// resolveDispute decides the outcome of a dispute from the transaction's
// current state. Pure function of the seller's handoff attestation.
func resolveDispute(tx *Transaction) DisputeOutcome {
	if tx.SellerConfirmedAt == nil {
		return OutcomeAutoRefund
	}
	return OutcomeAdminReview
}
