package vault

import "errors"

// Error definitions for zero-tolerance error handling. Every rejection names
// the specific invariant or cap that was violated; no generic failures.
var (
	// Reentrancy / lifecycle
	ErrReentrantCall = errors.New("operation re-entered the vault")
	ErrVaultPaused   = errors.New("vault is paused")

	// Authorization
	ErrUnauthorized          = errors.New("caller lacks the required role")
	ErrNotOwnerNorDelegate   = errors.New("caller is neither position owner nor approved delegate")
	ErrInsufficientAllowance = errors.New("delegate allowance is insufficient")

	// Capacity
	ErrAmountInvalid             = errors.New("amount must be positive")
	ErrAddressInvalid            = errors.New("account address is invalid")
	ErrDepositCapExceeded        = errors.New("deposit exceeds vault deposit cap")
	ErrExceedsMaxWithdraw        = errors.New("withdrawal exceeds owner entitlement")
	ErrExceedsMaxRedeem          = errors.New("redemption exceeds owner share balance")
	ErrInflowCapExceeded         = errors.New("destination max-inflow-per-rebalance cap exceeded")
	ErrOutflowCapExceeded        = errors.New("source max-outflow-per-rebalance cap exceeded")
	ErrStrategyCapExceeded       = errors.New("destination strategy deposit cap exceeded")
	ErrTVLPercentCapExceeded     = errors.New("destination max-percent-of-vault-TVL cap exceeded")
	ErrSourceBalanceInsufficient = errors.New("source strategy balance would go negative")

	// Liquidity
	ErrInsufficientLiquidity = errors.New("buffer and forced-liquidation-eligible strategies cannot cover the withdrawal")
	ErrInsufficientShares    = errors.New("share balance is insufficient")

	// Configuration
	ErrBatchTooLarge          = errors.New("instruction count exceeds max rebalance batch size")
	ErrBatchEmpty             = errors.New("rebalance batch is empty")
	ErrInstructionInvalid     = errors.New("rebalance instruction is invalid")
	ErrBufferNotAllowed       = errors.New("buffer strategy cannot appear in an ordinary rebalance")
	ErrBufferPatternInvalid   = errors.New("adjust-buffer instruction must touch the buffer on exactly one side")
	ErrMixedBufferDirection   = errors.New("adjust-buffer batch mixes fill and drain directions")
	ErrBufferMinimumBreached  = errors.New("drain would leave buffer below minimum balance")
	ErrStrategyInactive       = errors.New("destination strategy is not active")
	ErrStrategyNotEmpty       = errors.New("strategy balance must be zero before removal")
	ErrExtraDataRequired      = errors.New("strategy requires extra data for this instruction")
	ErrConfigInvalid          = errors.New("vault configuration is invalid")
	ErrBatchSizeInvalid       = errors.New("max rebalance batch size must be positive")
	ErrMinimumBufferInvalid   = errors.New("minimum buffer balance is invalid")
	ErrTipRecipientInvalid    = errors.New("tip recipient is invalid")

	// External unit
	ErrUnitFailure      = errors.New("strategy unit call failed")
	ErrUnitInconsistent = errors.New("strategy unit returned an inconsistent result")
)
