package solanarpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/outboxbridge/core/circuitbreaker"
	"github.com/outboxbridge/core/log"
	"github.com/outboxbridge/core/outbox"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	methodGetLatestBlockhash   = "getLatestBlockhash"
	methodSendTransaction      = "sendTransaction"
	methodGetSignatureStatuses = "getSignatureStatuses"

	circuitBreakerPrefix = "solanarpc"
)

// ErrEndpointRequired is returned by New when Config.Endpoint is empty.
var ErrEndpointRequired = errors.New("solanarpc: endpoint is required")

// ErrSignerRequired is returned by New when Config.Signer is nil.
var ErrSignerRequired = errors.New("solanarpc: signer is required")

// Config configures a Client.
type Config struct {
	// Endpoint is the validator's JSON-RPC HTTP URL.
	Endpoint string
	// Signer produces the fee-payer keypair used to sign every transaction.
	Signer Signer
	// HTTPClient is the transport used for RPC calls. Defaults to a client
	// with a bounded timeout if nil.
	HTTPClient *http.Client
	// CircuitBreaker guards every RPC method call. Defaults to a fresh
	// manager using circuitbreaker.HTTPServiceConfig if nil.
	CircuitBreaker circuitbreaker.Manager
	// Logger receives structured diagnostics. Defaults to a no-op logger if nil.
	Logger log.Logger
}

func (cfg Config) normalize() (Config, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return cfg, ErrEndpointRequired
	}

	if cfg.Signer == nil {
		return cfg, ErrSignerRequired
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if cfg.CircuitBreaker == nil {
		manager, err := circuitbreaker.NewManager(cfg.Logger)
		if err != nil {
			return cfg, fmt.Errorf("solanarpc: build circuit breaker manager: %w", err)
		}

		cfg.CircuitBreaker = manager
	}

	return cfg, nil
}

// Client is a reference outbox.LedgerClient backed by a Solana-style
// JSON-RPC validator endpoint. It is safe for concurrent use.
type Client struct {
	cfg       Config
	transport transport
}

// New validates cfg and returns a Client. It registers one circuit breaker
// per RPC method against cfg.CircuitBreaker so a failing validator degrades
// each method independently instead of all at once.
func New(cfg Config) (*Client, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	for _, method := range []string{methodGetLatestBlockhash, methodSendTransaction, methodGetSignatureStatuses} {
		if _, err := cfg.CircuitBreaker.GetOrCreate(breakerName(method), circuitbreaker.HTTPServiceConfig()); err != nil {
			return nil, fmt.Errorf("solanarpc: register circuit breaker for %s: %w", method, err)
		}
	}

	return &Client{
		cfg:       cfg,
		transport: newHTTPTransport(cfg.Endpoint, cfg.HTTPClient),
	}, nil
}

func breakerName(method string) string {
	return circuitBreakerPrefix + "." + method
}

// call routes a single RPC method through its circuit breaker.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	result, err := c.cfg.CircuitBreaker.Execute(breakerName(method), func() (any, error) {
		return c.transport.Send(ctx, method, params)
	})
	if err != nil {
		return nil, err
	}

	raw, _ := result.(json.RawMessage)

	return raw, nil
}

func (c *Client) getLatestBlockhash(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, methodGetLatestBlockhash, []any{})
	if err != nil {
		return "", err
	}

	var parsed blockhashResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("solanarpc: decode %s: %w", methodGetLatestBlockhash, err)
	}

	return parsed.Value.Blockhash, nil
}

func (c *Client) sendTransaction(ctx context.Context, encodedTx string) (string, error) {
	raw, err := c.call(ctx, methodSendTransaction, []any{encodedTx, map[string]string{"encoding": "base58"}})
	if err != nil {
		return "", err
	}

	var signature string
	if err := json.Unmarshal(raw, &signature); err != nil {
		return "", fmt.Errorf("solanarpc: decode %s: %w", methodSendTransaction, err)
	}

	return signature, nil
}

// Ping satisfies outbox.Pinger so Health can probe validator reachability
// without attempting a submission.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getLatestBlockhash(ctx)
	return err
}

// ErrSignatureFailed is returned by Confirmed when the validator reports the
// transaction landed but failed on-chain.
var ErrSignatureFailed = errors.New("solanarpc: transaction failed on-chain")

// Confirmed reports whether signature has reached at least "confirmed"
// status. It is not used by Submit itself (sendTransaction only returns once
// the validator has accepted the transaction, per the reference adapter's
// design notes) but is exposed for callers - e.g. a circuitbreaker.HealthCheckFunc -
// that want to poll delivery status out of band.
func (c *Client) Confirmed(ctx context.Context, signature string) (bool, error) {
	raw, err := c.call(ctx, methodGetSignatureStatuses, []any{[]string{signature}, map[string]bool{"searchTransactionHistory": true}})
	if err != nil {
		return false, err
	}

	var parsed signatureStatusesResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, fmt.Errorf("solanarpc: decode %s: %w", methodGetSignatureStatuses, err)
	}

	if len(parsed.Value) == 0 || parsed.Value[0] == nil {
		return false, nil
	}

	status := parsed.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrSignatureFailed, status.Err)
	}

	return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
}

// Submit implements outbox.LedgerClient. It fetches (or reuses) a blockhash,
// builds and signs a memo transaction carrying payload, and submits it.
func (c *Client) Submit(ctx context.Context, payload []byte, pinnedBlockhash string) outbox.SubmitOutcome {
	blockhash := pinnedBlockhash

	if blockhash == "" {
		fetched, err := c.getLatestBlockhash(ctx)
		if err != nil {
			c.cfg.Logger.Log(ctx, log.LevelWarn, "solanarpc: failed to fetch latest blockhash", log.Err(err))

			return outbox.SubmitOutcome{Kind: outbox.OutcomeRecoverable, Reason: err}
		}

		blockhash = fetched
	}

	signedTx, err := buildMemoTransaction(c.cfg.Signer, blockhash, payload)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return outbox.SubmitOutcome{Kind: outbox.OutcomeUnrecoverable, Reason: err}
		}

		// An invalid blockhash at this stage means the caller pinned a value
		// that never came from this adapter; treat it the same as expiry so
		// the Dispatcher clears the pin and fetches a fresh one next attempt.
		if errors.Is(err, ErrInvalidBlockhash) {
			return outbox.SubmitOutcome{Kind: outbox.OutcomeBlockhashExpired, Reason: err}
		}

		return outbox.SubmitOutcome{Kind: outbox.OutcomeUnrecoverable, Reason: err}
	}

	signature, err := c.sendTransaction(ctx, encodeBase58Transaction(signedTx))
	if err != nil {
		return classifySendError(err, blockhash)
	}

	return outbox.SubmitOutcome{
		Kind:          outbox.OutcomeSuccess,
		Signature:     signature,
		BlockhashUsed: blockhash,
	}
}

// classifySendError maps a sendTransaction failure to a SubmitOutcome kind.
// gobreaker's own "circuit breaker is open" error and context deadline
// errors are recoverable: the validator (or this adapter's view of it) is
// degraded, not permanently rejecting the payload. A validator-reported
// blockhash error is expiry, not a recoverable transport failure.
func classifySendError(err error, blockhashUsed string) outbox.SubmitOutcome {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && isBlockhashExpiredError(rpcErr) {
		return outbox.SubmitOutcome{Kind: outbox.OutcomeBlockhashExpired, Reason: err}
	}

	return outbox.SubmitOutcome{
		Kind:          outbox.OutcomeRecoverable,
		BlockhashUsed: blockhashUsed,
		Reason:        err,
	}
}

func isBlockhashExpiredError(rpcErr *RPCError) bool {
	const blockhashNotFoundCode = -32002

	msg := strings.ToLower(rpcErr.Message)

	return rpcErr.Code == blockhashNotFoundCode ||
		strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "block height exceeded")
}
