/*
Package ledger is the single place where wallet balances change.

Every balance mutation in the application, whether a consultation hold, a
settlement, a refund, a mobile-money deposit or a payout, goes through
ApplyDelta or Resolve. Both run inside one database transaction that:

  - reads the owner's wallet and its version,
  - computes the new balance and rejects it if it would go below zero,
  - writes it with "UPDATE ... WHERE version = ?",
  - inserts the matching Transaction row.

A lost version race rolls the transaction back and retries a bounded number of
times (Config.MaxRetries) before returning ErrConflict. No lock is held across
calls to external systems.

Balance rule:

A wallet balance always equals the sum of Amount over the owner's rows for
which Transaction.AffectsBalance is true. VerifyWallet recomputes that sum.

Usage:

	svc := ledger.NewService(repo, cache, publisher, ledger.Config{MaxRetries: 3}, metrics)

	// Debit a patient into a pending hold
	hold, err := svc.ApplyDelta(ctx, ledger.DeltaRequest{
	    Owner:         models.UserOwner(patientID),
	    Amount:        -5000,
	    Kind:          models.KindHold,
	    RelatedEntity: appointmentID,
	})

	// Resolve a pending row exactly once
	res, err := svc.Resolve(ctx, ledger.ResolveRequest{
	    ID:   hold.ID,
	    Kind: models.KindHold,
	    To:   models.StatusCancelled,
	    FollowUps: func(orig *models.Transaction) ([]ledger.DeltaRequest, error) {
	        return []ledger.DeltaRequest{{Owner: orig.Owner(), Amount: -orig.Amount, Kind: models.KindRefund}}, nil
	    },
	})

Error Handling:

  - ErrInsufficientFunds: the debit would make the balance negative
  - ErrDuplicateReference: the reference is already used by another row
  - ErrConflict: retries exhausted under contention, safe to retry later
  - ErrNotFound / ErrAlreadyResolved: Resolve on a missing or terminal row

Side effects after commit (cache invalidation, event publishing, metrics)
never change the outcome of a call.
*/
package ledger
