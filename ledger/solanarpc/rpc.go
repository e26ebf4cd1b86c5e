package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/outboxbridge/core/log"
)

// ErrEmptyResult is returned when a JSON-RPC call succeeds at the transport
// level but returns neither a result nor an error.
var ErrEmptyResult = errors.New("solanarpc: empty rpc result")

// RPCError mirrors the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solanarpc: rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// transport sends a single JSON-RPC request and returns its raw result.
// It exists so tests can substitute a fake without standing up an HTTP server.
type transport interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// httpTransport is the production transport: one endpoint, one http.Client.
type httpTransport struct {
	endpoint   string
	httpClient *http.Client
}

func newHTTPTransport(endpoint string, httpClient *http.Client) *httpTransport {
	return &httpTransport{endpoint: endpoint, httpClient: httpClient}
}

func (t *httpTransport) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("solanarpc: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solanarpc: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The response body is the validator's (or an intermediate proxy's)
		// raw text and is never included verbatim - only the status code is,
		// via log.SanitizeExternalResponse - since it can carry back request
		// headers or other operator-internal detail the caller didn't send.
		return nil, fmt.Errorf("solanarpc: %s: %s", method, log.SanitizeExternalResponse(resp.StatusCode))
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("solanarpc: decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	if len(rpcResp.Result) == 0 {
		return nil, ErrEmptyResult
	}

	return rpcResp.Result, nil
}

type blockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

type signatureStatus struct {
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}
