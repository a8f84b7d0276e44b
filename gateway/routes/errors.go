package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ledgererrors "vestake/core/errors"
	"vestake/crypto"
	"vestake/gateway/middleware"
)

const (
	requestLimit = 1 << 20 // 1 MiB

	codeBadRequest      = "BadRequest"
	codeUnauthenticated = "Unauthenticated"
	codeUnavailable     = "Unavailable"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// requestError carries a stable code for failures detected before the ledger
// is reached.
type requestError struct {
	code string
	err  error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(code string, format string, args ...any) error {
	return &requestError{code: code, err: fmt.Errorf(format, args...)}
}

// statusFor maps a ledger error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case ledgererrors.CodeInvalidAmount, ledgererrors.CodeParameterOutOfRange, ledgererrors.CodeInvalidAddress, codeBadRequest:
		return http.StatusBadRequest
	case codeUnauthenticated:
		return http.StatusUnauthorized
	case ledgererrors.CodeUnauthorized:
		return http.StatusForbidden
	case ledgererrors.CodeInsufficientBalance,
		ledgererrors.CodeInsufficientAllowance,
		ledgererrors.CodeNothingStaked,
		ledgererrors.CodeOwnershipRenunciationForbidden:
		return http.StatusConflict
	case codeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := ledgererrors.Code(err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		code = reqErr.code
	}
	status := statusFor(code)
	message := strings.TrimSpace(err.Error())
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeRequest(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, requestLimit)
	defer body.Close()
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest(codeBadRequest, "request body required")
		}
		return badRequest(codeBadRequest, "decode request: %v", err)
	}
	return nil
}

func callerFrom(r *http.Request) (common.Address, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return common.Address{}, badRequest(codeUnauthenticated, "caller identity required")
	}
	return caller, nil
}

func parseAddress(field, value string) (common.Address, error) {
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return common.Address{}, badRequest(ledgererrors.CodeInvalidAddress, "%s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, badRequest(ledgererrors.CodeInvalidAmount, "amount required")
	}
	amount, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, badRequest(ledgererrors.CodeInvalidAmount, "amount: %v", err)
	}
	return amount, nil
}
