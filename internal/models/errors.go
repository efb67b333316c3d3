package models

import "errors"

var (
	ErrCampaignNotFound           = errors.New("campaign not found")
	ErrCampaignNotLotteryEligible = errors.New("campaign is not eligible for a lottery")
	ErrInvalidDrawDate            = errors.New("invalid draw date")
	ErrInvalidLottery             = errors.New("invalid lottery parameters")
	ErrInvalidPurchase            = errors.New("invalid purchase request")

	ErrLotteryNotFound    = errors.New("lottery not found")
	ErrLotterySoldOut     = errors.New("lottery is sold out")
	ErrCurrencyMismatch   = errors.New("currency does not match lottery currency")
	ErrRateLimitExceeded  = errors.New("ticket purchase rate limit exceeded")
	ErrLotteryNotDrawable = errors.New("lottery is not drawable")

	// ErrDuplicateTicketNumber is returned by a store when the number is
	// already taken in the lottery; the caller regenerates.
	ErrDuplicateTicketNumber = errors.New("ticket number already issued")
	ErrTicketNumberExhausted = errors.New("could not generate a unique ticket number")
	// ErrDuplicateTransaction is returned by a store when a ticket was already
	// issued for the same payment transaction.
	ErrDuplicateTransaction = errors.New("ticket already issued for transaction")

	// ErrStatusConflict is returned by a store when a conditional status
	// update did not find the expected current status.
	ErrStatusConflict = errors.New("lottery status changed concurrently")

	// ErrDrawNotPersisted marks a drawing whose winners were selected but
	// could not be stored. It requires manual reconciliation.
	ErrDrawNotPersisted = errors.New("drawing result could not be persisted")
)
