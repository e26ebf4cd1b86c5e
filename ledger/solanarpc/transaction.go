package solanarpc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// memoProgramID is the well-known Solana memo program address.
const memoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// maxMemoBytes bounds the outbox payload this adapter will carry as memo
// instruction data. The instruction's data-length prefix is a single byte
// (see buildMessage), so 255 is a hard ceiling, not just a size recommendation.
// A payload past this length can never fit regardless of blockhash or retry
// state, so it is classified unrecoverable rather than retried.
const maxMemoBytes = 255

// ErrPayloadTooLarge is returned when a payload cannot fit in a memo instruction.
var ErrPayloadTooLarge = errors.New("solanarpc: payload exceeds max memo size")

// ErrInvalidBlockhash is returned when a blockhash does not decode to 32 bytes.
var ErrInvalidBlockhash = errors.New("solanarpc: invalid blockhash")

// buildMemoTransaction assembles a minimal single-signature transaction
// whose sole instruction writes payload as memo data, following the same
// simplified wire layout the original implementation used: a signature
// count, the signature itself, then the message (header, account keys,
// recent blockhash, instructions).
func buildMemoTransaction(signer Signer, blockhash string, payload []byte) (signedTx []byte, err error) {
	if len(payload) > maxMemoBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), maxMemoBytes)
	}

	blockhashBytes, err := base58.Decode(blockhash)
	if err != nil || len(blockhashBytes) != 32 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBlockhash, blockhash)
	}

	programIDBytes, err := base58.Decode(memoProgramID)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: decode memo program id: %w", err)
	}

	message := buildMessage(signer.PublicKey(), programIDBytes, blockhashBytes, payload)
	signature := signer.Sign(message)

	var buf bytes.Buffer

	buf.WriteByte(1) // signature count
	buf.Write(signature)
	buf.Write(message)

	return buf.Bytes(), nil
}

// buildMessage lays out a transaction message with two account keys (the
// fee payer and the memo program) and a single memo instruction.
func buildMessage(payer, programID, blockhash, memo []byte) []byte {
	var buf bytes.Buffer

	// Message header: signed/readonly account counts.
	buf.WriteByte(1) // num_required_signatures
	buf.WriteByte(0) // num_readonly_signed_accounts
	buf.WriteByte(1) // num_readonly_unsigned_accounts

	// Account keys.
	buf.WriteByte(2) // account count
	buf.Write(payer)
	buf.Write(programID)

	// Recent blockhash.
	buf.Write(blockhash)

	// Instructions.
	buf.WriteByte(1)    // instruction count
	buf.WriteByte(1)    // program_id_index (memo program is account 1)
	buf.WriteByte(1)    // account count for this instruction
	buf.WriteByte(0)    // account index (payer, account 0)
	buf.WriteByte(byte(len(memo)))
	buf.Write(memo)

	return buf.Bytes()
}

// encodeBase58Transaction encodes a signed transaction for the "base58"
// sendTransaction encoding, matching the reference implementation's wire format.
func encodeBase58Transaction(tx []byte) string {
	return base58.Encode(tx)
}
