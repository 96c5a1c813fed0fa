package domain

import "errors"

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrUnsupportedCurrency    = errors.New("unsupported currency")
	ErrAmountOutOfRange       = errors.New("amount out of range")
	ErrNotFound               = errors.New("not found")
	ErrWrongKind              = errors.New("wrong transaction kind")
	ErrNotPending             = errors.New("transaction is not pending")
	ErrPriceUnavailable       = errors.New("price unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrPlanInactive          = errors.New("investment plan is not active")
	ErrNotActive             = errors.New("investment is not active")
	ErrSameCurrency          = errors.New("source and target currency are the same")
	ErrMissingWalletAddress  = errors.New("wallet address not registered")
	ErrInvalidWalletAddress  = errors.New("invalid wallet address")
	ErrAccountHasObligations = errors.New("account has open investments or pending transactions")
	ErrAccountExists         = errors.New("account already exists")
	ErrInvalidPlan           = errors.New("invalid investment plan")
	ErrPlanInUse             = errors.New("investment plan has investments")
	ErrInvalidArgument       = errors.New("invalid argument")
)
