/*

Remote adapts an externally hosted strategy unit to the Strategy interface
over a small JSON protocol. The host is not trusted: every response is
validated before an amount derived from it can touch vault accounting, and
any inconsistency is surfaced as a typed error so the calling operation
aborts whole.

*/

package strategy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/fleetvault/fvm/internal/logger"
	"github.com/fleetvault/fvm/internal/types"
)

var (
	ErrRemoteEndpointInvalid = errors.New("remote endpoint is invalid")
	ErrRemoteRequestFailed   = errors.New("remote strategy request failed")
	ErrRemoteResponseInvalid = errors.New("remote strategy response is invalid")
)

var remoteLogger = logger.GetForComponent("strategy_remote")

// remoteRequest is one call to the remote unit.
type remoteRequest struct {
	Method string       `json:"method"`
	Params remoteParams `json:"params"`
}

type remoteParams struct {
	Amount string `json:"amount,omitempty"`
	Extra  string `json:"extra,omitempty"` // Base64 routing data
}

// remoteResponse is the unit's answer. Exactly one of Result or Error is set.
type remoteResponse struct {
	Result *remoteResult `json:"result,omitempty"`
	Error  *remoteError  `json:"error,omitempty"`
}

type remoteResult struct {
	Amount string `json:"amount"`
}

type remoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Remote is a Strategy backed by an external HTTP host.
type Remote struct {
	id       types.StrategyID
	endpoint string
	client   *http.Client
}

// NewRemote creates a remote strategy adapter for the unit served at
// endpoint.
func NewRemote(id types.StrategyID, endpoint string, timeout time.Duration) (*Remote, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: strategy id is empty", ErrRemoteEndpointInvalid)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is empty", ErrRemoteEndpointInvalid)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		id:       id,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (r *Remote) ID() types.StrategyID {
	return r.id
}

func (r *Remote) TotalAssets() (sdkmath.Int, error) {
	return r.callForAmount(remoteRequest{Method: "total_assets"})
}

func (r *Remote) WithdrawableTotalAssets() (sdkmath.Int, error) {
	return r.callForAmount(remoteRequest{Method: "withdrawable_total_assets"})
}

func (r *Remote) Accept(amount sdkmath.Int, extra []byte) error {
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: accept amount must be positive", ErrAmountInvalid)
	}
	_, err := r.callForAmount(remoteRequest{
		Method: "accept",
		Params: remoteParams{
			Amount: amount.String(),
			Extra:  base64.StdEncoding.EncodeToString(extra),
		},
	})
	return err
}

func (r *Remote) Release(amount sdkmath.Int, extra []byte) (sdkmath.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: release amount must be positive", ErrAmountInvalid)
	}
	released, err := r.callForAmount(remoteRequest{
		Method: "release",
		Params: remoteParams{
			Amount: amount.String(),
			Extra:  base64.StdEncoding.EncodeToString(extra),
		},
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	// The unit may release less than asked, never more.
	if released.GT(amount) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: released %s exceeds requested %s", ErrRemoteResponseInvalid, released, amount)
	}
	return released, nil
}

func (r *Remote) Harvest() (sdkmath.Int, error) {
	return r.callForAmount(remoteRequest{Method: "harvest"})
}

// callForAmount executes one request against the remote host and returns the
// validated amount from its result.
func (r *Remote) callForAmount(reqBody remoteRequest) (sdkmath.Int, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequest(http.MethodPost, r.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	remoteLogger.Debug().
		Str("strategy", string(r.id)).
		Str("method", reqBody.Method).
		Msg("Calling remote strategy unit")

	resp, err := r.client.Do(req)
	if err != nil {
		remoteLogger.Error().Err(err).Str("endpoint", r.endpoint).Msg("Remote strategy request failed")
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(bodyBytes) == 0 {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, errors.New("response body is empty"))
	}

	var remoteResp remoteResponse
	if err := json.Unmarshal(bodyBytes, &remoteResp); err != nil {
		remoteLogger.Error().Err(err).Str("body", string(bodyBytes)).Msg("Failed to unmarshal remote strategy response")
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, err)
	}

	return validateRemoteAmount(remoteResp)
}

// validateRemoteAmount extracts the amount from a response with zero
// tolerance for missing or malformed values.
func validateRemoteAmount(resp remoteResponse) (sdkmath.Int, error) {
	if resp.Error != nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteRequestFailed,
			fmt.Errorf("remote error (code %d): %s", resp.Error.Code, resp.Error.Message))
	}
	if resp.Result == nil {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, errors.New("response has neither result nor error"))
	}
	if resp.Result.Amount == "" {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, errors.New("result amount is empty"))
	}

	amount, ok := sdkmath.NewIntFromString(resp.Result.Amount)
	if !ok {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, fmt.Errorf("result amount is not an integer: %q", resp.Result.Amount))
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), errors.Join(ErrRemoteResponseInvalid, fmt.Errorf("result amount is negative: %s", amount))
	}
	return amount, nil
}
