package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Anchor errors
	CodeAnchorNotFound          Code = "ANCHOR_NOT_FOUND"
	CodeAnchorRetired           Code = "ANCHOR_RETIRED"
	CodeAnchorEmptyHints        Code = "ANCHOR_EMPTY_HINTS"
	CodeAnchorCreateUnconfirmed Code = "ANCHOR_CREATE_UNCONFIRMED"

	// Session binding errors
	CodeBindingNotFound      Code = "BINDING_NOT_FOUND"
	CodeBindingAlreadyOpen   Code = "BINDING_ALREADY_OPEN"
	CodeBindingAlreadyClosed Code = "BINDING_ALREADY_CLOSED"
	CodeBindingEmptySession  Code = "BINDING_EMPTY_SESSION_ID"

	// Ledger errors
	CodeLedgerChainBroken Code = "LEDGER_CHAIN_BROKEN"
	CodeLedgerEmptyEvent  Code = "LEDGER_EMPTY_EVENT_TYPE"

	// DNA errors
	CodeDNAProfileNotFound Code = "DNA_PROFILE_NOT_FOUND"
	CodeDNAVersionConflict Code = "DNA_VERSION_CONFLICT"

	// Trust errors
	CodeTrustInsufficientData Code = "TRUST_INSUFFICIENT_DATA"

	// Minting errors
	CodeMintUnavailable Code = "MINT_AUTHORITY_UNAVAILABLE"
	CodeMintInvalidID   Code = "MINT_INVALID_IDENTIFIER"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes so services embedding the
// engine can surface structured failures.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeAnchorNotFound, CodeBindingNotFound, CodeDNAProfileNotFound, CodeNotFound:
		return codes.NotFound
	case CodeAnchorRetired, CodeBindingAlreadyOpen, CodeBindingAlreadyClosed, CodeAnchorCreateUnconfirmed:
		return codes.FailedPrecondition
	case CodeAnchorEmptyHints, CodeBindingEmptySession, CodeLedgerEmptyEvent, CodeMintInvalidID:
		return codes.InvalidArgument
	case CodeLedgerChainBroken:
		return codes.DataLoss
	case CodeDNAVersionConflict:
		return codes.Aborted
	case CodeTrustInsufficientData:
		return codes.FailedPrecondition
	case CodeMintUnavailable, CodeStoreUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
