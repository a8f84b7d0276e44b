package routes

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"vestake/native/bank"
	"vestake/native/vetoken"
)

type tokenRoutes struct {
	ledger  Ledger
	timeout time.Duration
}

type tokenResponse struct {
	*vetoken.Metadata
	TotalSupply *uint256.Int `json:"totalSupply"`
}

type assetResponse struct {
	*bank.AssetInfo
	Module common.Address `json:"module"`
}

type balanceResponse struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
}

type allowanceResponse struct {
	Owner     common.Address `json:"owner"`
	Spender   common.Address `json:"spender"`
	Allowance *uint256.Int   `json:"allowance"`
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (tr *tokenRoutes) mountToken(r chi.Router) {
	r.Get("/", tr.token)
	r.Get("/balances/{address}", tr.tokenBalance)
}

func (tr *tokenRoutes) mountAsset(r chi.Router) {
	r.Get("/", tr.asset)
	r.Get("/balances/{address}", tr.assetBalance)
	r.Get("/allowances/{owner}/{spender}", tr.allowance)
	r.Post("/approve", tr.approve)
	r.Post("/transfer", tr.transfer)
	r.Post("/mint", tr.mint)
}

func (tr *tokenRoutes) token(w http.ResponseWriter, r *http.Request) {
	meta, err := tr.ledger.TokenMetadata()
	if err != nil {
		writeError(w, err)
		return
	}
	supply, err := tr.ledger.TokenSupply()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Metadata: meta, TotalSupply: supply})
}

func (tr *tokenRoutes) tokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := tr.ledger.TokenBalance(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: balance})
}

func (tr *tokenRoutes) asset(w http.ResponseWriter, r *http.Request) {
	info, err := tr.ledger.AssetInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := tr.ledger.Ledger()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assetResponse{AssetInfo: info, Module: view.Module})
}

func (tr *tokenRoutes) assetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := tr.ledger.AssetBalance(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: balance})
}

func (tr *tokenRoutes) allowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", chi.URLParam(r, "spender"))
	if err != nil {
		writeError(w, err)
		return
	}
	allowance, err := tr.ledger.Allowance(owner, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{Owner: owner, Spender: spender, Allowance: allowance})
}

func (tr *tokenRoutes) approve(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req approveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, err)
		return
	}
	// Approve accepts zero to revoke an allowance.
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), tr.timeout)
	defer cancel()
	if err := tr.ledger.Approve(ctx, caller, spender, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{Owner: caller, Spender: spender, Allowance: amount})
}

func (tr *tokenRoutes) transfer(w http.ResponseWriter, r *http.Request) {
	caller, to, amount, err := tr.transferArgs(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), tr.timeout)
	defer cancel()
	if err := tr.ledger.Transfer(ctx, caller, to, amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := tr.ledger.AssetBalance(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: caller, Balance: balance})
}

func (tr *tokenRoutes) mint(w http.ResponseWriter, r *http.Request) {
	caller, to, amount, err := tr.transferArgs(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := withTimeout(r.Context(), tr.timeout)
	defer cancel()
	if err := tr.ledger.Mint(ctx, caller, to, amount); err != nil {
		writeError(w, err)
		return
	}
	balance, err := tr.ledger.AssetBalance(to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: to, Balance: balance})
}

func (tr *tokenRoutes) transferArgs(r *http.Request) (common.Address, common.Address, *uint256.Int, error) {
	caller, err := callerFrom(r)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	var req transferRequest
	if err := decodeRequest(r, &req); err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return caller, to, amount, nil
}
