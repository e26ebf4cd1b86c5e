package outbox

import "context"

// SubmitOutcomeKind classifies the result of a LedgerClient.Submit call.
type SubmitOutcomeKind int

const (
	// OutcomeSuccess means the ledger accepted the transaction and returned a signature.
	OutcomeSuccess SubmitOutcomeKind = iota
	// OutcomeBlockhashExpired means the pinned blockhash is stale; the original
	// attempt, if any, definitively did not land.
	OutcomeBlockhashExpired
	// OutcomeRecoverable means the submission may or may not have landed; the
	// caller should retry with BlockhashUsed pinned, if one is known.
	OutcomeRecoverable
	// OutcomeUnrecoverable means the payload or request can never succeed; retrying is pointless.
	OutcomeUnrecoverable
)

func (kind SubmitOutcomeKind) String() string {
	switch kind {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlockhashExpired:
		return "blockhash_expired"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// SubmitOutcome is the structured result of a LedgerClient.Submit call.
//
// BlockhashUsed is populated whenever a blockhash was fetched and used to sign
// a request, regardless of whether the submission itself succeeded - this is
// what lets process_entry pin a recoverable failure's blockhash for retry.
type SubmitOutcome struct {
	Kind          SubmitOutcomeKind
	Signature     string
	BlockhashUsed string
	Reason        error
}

// LedgerClient is the abstract submission interface the Dispatcher depends on.
//
// Implementations must be safe for concurrent use: a single LedgerClient is
// shared across every worker goroutine in a Dispatcher.
type LedgerClient interface {
	// Submit signs and submits payload. If pinnedBlockhash is non-empty, the
	// implementation must reconstruct and sign the identical transaction it
	// would have produced on a prior attempt with that same blockhash,
	// producing a byte-identical, signature-identical request. If
	// pinnedBlockhash is empty, the implementation fetches a fresh blockhash.
	Submit(ctx context.Context, payload []byte, pinnedBlockhash string) SubmitOutcome
}
