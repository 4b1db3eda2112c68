package types

import "errors"

// Kind classifies an executor error by category (resource, validation,
// lifecycle, execution, governance). Whether an error unwinds only the frame
// that raised it (the caller observes it as a seal_call/seal_instantiate
// error code) or propagates and traps every frame up to the root is decided
// separately, by Recoverable.
type Kind uint8

const (
	KindResource Kind = iota
	KindValidation
	KindLifecycle
	KindExecution
	KindGovernance
)

// Resource errors.
var (
	ErrOutOfGas                     = errors.New("OutOfGas")
	ErrStorageDepositLimitExhausted = errors.New("StorageDepositLimitExhausted")
	ErrStorageDepositNotEnoughFunds = errors.New("StorageDepositNotEnoughFunds")
	ErrDeletionQueueFull            = errors.New("DeletionQueueFull")
)

// Validation errors.
var (
	ErrCodeRejected            = errors.New("CodeRejected")
	ErrCodeTooLarge            = errors.New("CodeTooLarge")
	ErrDecodingFailed          = errors.New("DecodingFailed")
	ErrRandomSubjectTooLong    = errors.New("RandomSubjectTooLong")
	ErrTooManyTopics           = errors.New("TooManyTopics")
	ErrValueTooLarge           = errors.New("ValueTooLarge")
	ErrOutOfBounds             = errors.New("OutOfBounds")
	ErrDebugMessageInvalidUTF8 = errors.New("DebugMessageInvalidUTF8")
	ErrInvalidCallFlags        = errors.New("InvalidCallFlags")
)

// Lifecycle errors.
var (
	ErrContractNotFound         = errors.New("ContractNotFound")
	ErrCodeNotFound             = errors.New("CodeNotFound")
	ErrDuplicateContract        = errors.New("DuplicateContract")
	ErrCodeInUse                = errors.New("CodeInUse")
	ErrTerminatedWhileReentrant = errors.New("TerminatedWhileReentrant")
	ErrTerminatedInConstructor  = errors.New("TerminatedInConstructor")
)

// Execution errors.
var (
	ErrContractTrapped      = errors.New("ContractTrapped")
	ErrContractReverted     = errors.New("ContractReverted")
	ErrMaxCallDepthReached  = errors.New("MaxCallDepthReached")
	ErrReentranceDenied     = errors.New("ReentranceDenied")
	ErrTransferFailed       = errors.New("TransferFailed")
	ErrInputForwarded       = errors.New("InputForwarded")
	ErrOutputBufferTooSmall = errors.New("OutputBufferTooSmall")
	ErrNoChainExtension     = errors.New("NoChainExtension")
	ErrIndeterministic      = errors.New("Indeterministic")
)

// Governance errors.
var ErrInvalidScheduleVersion = errors.New("InvalidScheduleVersion")

// Classify returns the taxonomy Kind for a known sentinel error, defaulting
// to KindExecution/Fatal-leaning classification for anything unrecognized.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrOutOfGas), errors.Is(err, ErrStorageDepositLimitExhausted),
		errors.Is(err, ErrStorageDepositNotEnoughFunds), errors.Is(err, ErrDeletionQueueFull):
		return KindResource
	case errors.Is(err, ErrCodeRejected), errors.Is(err, ErrCodeTooLarge), errors.Is(err, ErrDecodingFailed),
		errors.Is(err, ErrRandomSubjectTooLong), errors.Is(err, ErrTooManyTopics), errors.Is(err, ErrValueTooLarge),
		errors.Is(err, ErrOutOfBounds), errors.Is(err, ErrDebugMessageInvalidUTF8), errors.Is(err, ErrInvalidCallFlags):
		return KindValidation
	case errors.Is(err, ErrContractNotFound), errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrDuplicateContract),
		errors.Is(err, ErrCodeInUse), errors.Is(err, ErrTerminatedWhileReentrant), errors.Is(err, ErrTerminatedInConstructor):
		return KindLifecycle
	case errors.Is(err, ErrInvalidScheduleVersion):
		return KindGovernance
	default:
		return KindExecution
	}
}

// Recoverable reports whether err, raised inside a sub-call, is observed by
// the caller as a seal_call/seal_instantiate error return (true) or must
// propagate and trap the current frame (false). OutOfGas,
// and every named frame-level fault, are recoverable at the immediate
// caller; only an unrecognized/internal error is fatal.
func Recoverable(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrOutOfGas), errors.Is(err, ErrStorageDepositLimitExhausted),
		errors.Is(err, ErrStorageDepositNotEnoughFunds), errors.Is(err, ErrDeletionQueueFull),
		errors.Is(err, ErrContractNotFound), errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrDuplicateContract),
		errors.Is(err, ErrCodeInUse), errors.Is(err, ErrTerminatedWhileReentrant), errors.Is(err, ErrTerminatedInConstructor),
		errors.Is(err, ErrContractTrapped), errors.Is(err, ErrContractReverted), errors.Is(err, ErrMaxCallDepthReached),
		errors.Is(err, ErrReentranceDenied), errors.Is(err, ErrTransferFailed), errors.Is(err, ErrInputForwarded),
		errors.Is(err, ErrOutputBufferTooSmall), errors.Is(err, ErrNoChainExtension), errors.Is(err, ErrIndeterministic),
		errors.Is(err, ErrCodeRejected), errors.Is(err, ErrCodeTooLarge), errors.Is(err, ErrDecodingFailed),
		errors.Is(err, ErrRandomSubjectTooLong), errors.Is(err, ErrTooManyTopics), errors.Is(err, ErrValueTooLarge),
		errors.Is(err, ErrOutOfBounds), errors.Is(err, ErrDebugMessageInvalidUTF8), errors.Is(err, ErrInvalidCallFlags):
		return true
	default:
		return false
	}
}
