package escrow

import (
	"context"
	"errors"
)

// TransactionView is a transaction decorated with the requesting user's role,
// so clients can render the correct action set without guessing.
type TransactionView struct {
	*Transaction
	IsBuyer  bool `json:"isBuyer"`
	IsSeller bool `json:"isSeller"`
}

// GetForListing returns the transaction most relevant to the requesting user
// for the listing, or nil if none exists. A missing transaction is a normal
// state for a listing, not an error.
// Transactions where the user is neither buyer nor seller are never exposed.
func (s *Service) GetForListing(ctx context.Context, listingID, userID string) (*TransactionView, error) {
	tx, err := s.store.GetForListing(ctx, listingID, userID)
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &TransactionView{
		Transaction: tx,
		IsBuyer:     tx.BuyerID == userID,
		IsSeller:    tx.SellerID == userID,
	}, nil
}
