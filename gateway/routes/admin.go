package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

type adminRoutes struct {
	ledger  Ledger
	timeout time.Duration
}

type paramRequest struct {
	Value string `json:"value"`
}

type addressRequest struct {
	Address string `json:"address"`
}

func (ar *adminRoutes) mount(r chi.Router) {
	r.Post("/params/{name}", ar.setParam)
	r.Post("/boost-aggregator", ar.setBoostAggregator)
	r.Post("/transfer", ar.transferAdmin)
}

func (ar *adminRoutes) setParam(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req paramRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), ar.timeout)
	defer cancel()
	if err := ar.ledger.SetParam(ctx, caller, chi.URLParam(r, "name"), req.Value); err != nil {
		writeError(w, err)
		return
	}
	params, err := ar.ledger.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (ar *adminRoutes) setBoostAggregator(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addressRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// The zero address clears the aggregator.
	var aggregator common.Address
	if value := strings.TrimSpace(req.Address); !isZeroHex(value) {
		if aggregator, err = parseAddress("address", value); err != nil {
			writeError(w, err)
			return
		}
	}
	ctx, cancel := withTimeout(r.Context(), ar.timeout)
	defer cancel()
	if err := ar.ledger.SetBoostAggregator(ctx, caller, aggregator); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]common.Address{"boostAggregator": aggregator})
}

func (ar *adminRoutes) transferAdmin(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addressRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	admin, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), ar.timeout)
	defer cancel()
	if err := ar.ledger.TransferAdmin(ctx, caller, admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]common.Address{"admin": admin})
}

func isZeroHex(value string) bool {
	return common.IsHexAddress(value) && common.HexToAddress(value) == (common.Address{})
}
