package routes

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"vestake/native/vestaking"
)

type stakeRoutes struct {
	ledger  Ledger
	timeout time.Duration
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type pendingResponse struct {
	Account common.Address        `json:"account"`
	Pending *uint256.Int          `json:"pending"`
	Quote   *vestaking.Settlement `json:"quote"`
}

type userResponse struct {
	*vestaking.UserInfo
	Boosted bool `json:"boosted"`
}

func (sr *stakeRoutes) mount(r chi.Router) {
	r.Post("/deposit", sr.deposit)
	r.Post("/withdraw", sr.withdraw)
	r.Post("/claim", sr.claim)
	r.Post("/refresh", sr.refresh)
	r.Get("/users/{address}", sr.user)
	r.Get("/users/{address}/pending", sr.pending)
	r.Get("/global", sr.global)
	r.Get("/params", sr.params)
}

func (sr *stakeRoutes) callerAndAmount(r *http.Request) (common.Address, *uint256.Int, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return common.Address{}, nil, err
	}
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		return common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, nil, err
	}
	return caller, amount, nil
}

func (sr *stakeRoutes) deposit(w http.ResponseWriter, r *http.Request) {
	caller, amount, err := sr.callerAndAmount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), sr.timeout)
	defer cancel()
	result, err := sr.ledger.Deposit(ctx, caller, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (sr *stakeRoutes) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, amount, err := sr.callerAndAmount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), sr.timeout)
	defer cancel()
	result, err := sr.ledger.Withdraw(ctx, caller, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (sr *stakeRoutes) claim(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), sr.timeout)
	defer cancel()
	result, err := sr.ledger.Claim(ctx, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (sr *stakeRoutes) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context(), sr.timeout)
	defer cancel()
	global, err := sr.ledger.UpdateRewardVars(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, global)
}

func (sr *stakeRoutes) user(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := sr.ledger.UserInfo(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{UserInfo: info, Boosted: info.Boosted()})
}

func (sr *stakeRoutes) pending(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := sr.ledger.Quote(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Account: addr, Pending: quote.Minted, Quote: quote})
}

func (sr *stakeRoutes) global(w http.ResponseWriter, r *http.Request) {
	view, err := sr.ledger.Ledger()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (sr *stakeRoutes) params(w http.ResponseWriter, r *http.Request) {
	params, err := sr.ledger.Params()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}
