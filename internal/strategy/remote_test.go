package strategy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteHost fakes the HTTP side of a strategy unit and records what it saw.
type remoteHost struct {
	t        *testing.T
	balances map[string]string // method -> amount returned
	lastReq  remoteRequest
	respond  func(w http.ResponseWriter, req remoteRequest)
}

func (h *remoteHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req remoteRequest
	require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))
	h.lastReq = req

	if h.respond != nil {
		h.respond(w, req)
		return
	}

	amount, ok := h.balances[req.Method]
	if !ok {
		_ = json.NewEncoder(w).Encode(remoteResponse{
			Error: &remoteError{Code: 404, Message: "unknown method"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(remoteResponse{Result: &remoteResult{Amount: amount}})
}

func newRemoteFixture(t *testing.T, host *remoteHost) (*Remote, *httptest.Server) {
	host.t = t
	server := httptest.NewServer(host)
	t.Cleanup(server.Close)

	unit, err := NewRemote("remote-1", server.URL, 5*time.Second)
	require.NoError(t, err)
	return unit, server
}

func TestNewRemoteValidation(t *testing.T) {
	_, err := NewRemote("", "http://localhost:9", time.Second)
	assert.ErrorIs(t, err, ErrRemoteEndpointInvalid)

	_, err = NewRemote("remote-1", "", time.Second)
	assert.ErrorIs(t, err, ErrRemoteEndpointInvalid)
}

func TestRemoteTotalAssets(t *testing.T) {
	host := &remoteHost{balances: map[string]string{
		"total_assets":              "123456",
		"withdrawable_total_assets": "100000",
	}}
	unit, _ := newRemoteFixture(t, host)

	total, err := unit.TotalAssets()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(123456), total)
	assert.Equal(t, "total_assets", host.lastReq.Method)

	withdrawable, err := unit.WithdrawableTotalAssets()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(100000), withdrawable)
}

func TestRemoteAcceptSendsAmount(t *testing.T) {
	host := &remoteHost{balances: map[string]string{"accept": "750"}}
	unit, _ := newRemoteFixture(t, host)

	require.NoError(t, unit.Accept(sdkmath.NewInt(750), nil))
	assert.Equal(t, "accept", host.lastReq.Method)
	assert.Equal(t, "750", host.lastReq.Params.Amount)

	assert.ErrorIs(t, unit.Accept(sdkmath.ZeroInt(), nil), ErrAmountInvalid)
}

func TestRemoteReleaseHonorsPartial(t *testing.T) {
	host := &remoteHost{balances: map[string]string{"release": "400"}}
	unit, _ := newRemoteFixture(t, host)

	released, err := unit.Release(sdkmath.NewInt(500), nil)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(400), released)
}

func TestRemoteReleaseOverRequested(t *testing.T) {
	host := &remoteHost{balances: map[string]string{"release": "501"}}
	unit, _ := newRemoteFixture(t, host)

	_, err := unit.Release(sdkmath.NewInt(500), nil)
	assert.ErrorIs(t, err, ErrRemoteResponseInvalid)
}

func TestRemoteErrorResponse(t *testing.T) {
	host := &remoteHost{respond: func(w http.ResponseWriter, req remoteRequest) {
		_ = json.NewEncoder(w).Encode(remoteResponse{
			Error: &remoteError{Code: 13, Message: "vault not funded"},
		})
	}}
	unit, _ := newRemoteFixture(t, host)

	_, err := unit.TotalAssets()
	assert.ErrorIs(t, err, ErrRemoteRequestFailed)
	assert.Contains(t, err.Error(), "vault not funded")
}

func TestRemoteMalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		respond func(w http.ResponseWriter, req remoteRequest)
		wantErr error
	}{
		{
			name: "http error status",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrRemoteRequestFailed,
		},
		{
			name: "empty body",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				w.WriteHeader(http.StatusOK)
			},
			wantErr: ErrRemoteResponseInvalid,
		},
		{
			name: "not json",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			wantErr: ErrRemoteResponseInvalid,
		},
		{
			name: "neither result nor error",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				_, _ = w.Write([]byte("{}"))
			},
			wantErr: ErrRemoteResponseInvalid,
		},
		{
			name: "amount not integer",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				_ = json.NewEncoder(w).Encode(remoteResponse{Result: &remoteResult{Amount: "12.5"}})
			},
			wantErr: ErrRemoteResponseInvalid,
		},
		{
			name: "amount negative",
			respond: func(w http.ResponseWriter, req remoteRequest) {
				_ = json.NewEncoder(w).Encode(remoteResponse{Result: &remoteResult{Amount: "-4"}})
			},
			wantErr: ErrRemoteResponseInvalid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			unit, _ := newRemoteFixture(t, &remoteHost{respond: tc.respond})
			_, err := unit.TotalAssets()
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRemoteUnreachableHost(t *testing.T) {
	unit, server := newRemoteFixture(t, &remoteHost{balances: map[string]string{"total_assets": "1"}})
	server.Close()

	_, err := unit.TotalAssets()
	assert.ErrorIs(t, err, ErrRemoteRequestFailed)
}
