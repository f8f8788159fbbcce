package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/MarketForge/settlement_layer/internal/app"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/metrics"
	"github.com/MarketForge/settlement_layer/internal/app/services/assets"
	"github.com/MarketForge/settlement_layer/internal/app/services/factory"
	ledgersvc "github.com/MarketForge/settlement_layer/internal/app/services/ledger"
	"github.com/MarketForge/settlement_layer/internal/app/services/market"
	"github.com/MarketForge/settlement_layer/internal/app/services/staking"
	"github.com/MarketForge/settlement_layer/internal/app/storage"
)

// callerHeader carries the authenticated identity of the requester. The
// gateway in front of this service is responsible for populating it.
const callerHeader = "X-Caller"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/collections", h.collections)
	mux.HandleFunc("/collections/", h.collectionResources)
	mux.HandleFunc("/pools", h.pools)
	mux.HandleFunc("/pools/", h.poolResources)
	mux.HandleFunc("/accounts/", h.accountResources)
	mux.HandleFunc("/config", h.config)
	mux.HandleFunc("/events", h.events)
	mux.HandleFunc("/healthz", h.health)
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) collections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var payload struct {
			Name            string `json:"name"`
			Symbol          string `json:"symbol"`
			RoyaltyBP       uint32 `json:"royalty_bp"`
			RoyaltyReceiver string `json:"royalty_receiver"`
			MaxSupply       uint64 `json:"max_supply"`
			Metadata        string `json:"metadata"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		col, p, err := h.app.Factory.DeployCollection(r.Context(), caller, assets.CollectionParams{
			Name:            payload.Name,
			Symbol:          payload.Symbol,
			RoyaltyBP:       payload.RoyaltyBP,
			RoyaltyReceiver: payload.RoyaltyReceiver,
			MaxSupply:       payload.MaxSupply,
			Metadata:        payload.Metadata,
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"collection": col, "pool": p})

	case http.MethodGet:
		cols, err := h.app.Assets.ListCollections(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, cols)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) collectionResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/collections"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	collectionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		col, err := h.app.Assets.GetCollection(r.Context(), collectionID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, col)
		return
	}

	switch parts[1] {
	case "tokens":
		h.collectionTokens(w, r, collectionID, parts[2:])
	case "listings":
		h.collectionListings(w, r, collectionID)
	case "pool":
		h.collectionPool(w, r, collectionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) collectionTokens(w http.ResponseWriter, r *http.Request, collectionID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			caller, ok := requireCaller(w, r)
			if !ok {
				return
			}
			var payload struct {
				Owner    string `json:"owner"`
				Metadata string `json:"metadata"`
			}
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			tok, err := h.app.Assets.Mint(r.Context(), caller, collectionID, payload.Owner, payload.Metadata)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, tok)

		case http.MethodGet:
			toks, err := h.app.Assets.ListTokens(r.Context(), collectionID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, toks)

		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	tokenID := rest[0]
	if len(rest) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		tok, err := h.app.Assets.GetToken(r.Context(), collectionID, tokenID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, tok)
		return
	}

	switch rest[1] {
	case "approve":
		h.tokenApprove(w, r, collectionID, tokenID)
	case "transfer":
		h.tokenTransfer(w, r, collectionID, tokenID)
	case "listing":
		h.tokenListing(w, r, collectionID, tokenID)
	case "quote":
		h.tokenQuote(w, r, collectionID, tokenID)
	case "buy":
		h.tokenBuy(w, r, collectionID, tokenID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) tokenApprove(w http.ResponseWriter, r *http.Request, collectionID, tokenID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var payload struct {
		Operator string `json:"operator"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Assets.Approve(r.Context(), caller, collectionID, tokenID, payload.Operator); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) tokenTransfer(w http.ResponseWriter, r *http.Request, collectionID, tokenID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var payload struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.From == "" {
		payload.From = caller
	}
	if err := h.app.Assets.Transfer(r.Context(), caller, collectionID, tokenID, payload.From, payload.To); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) tokenListing(w http.ResponseWriter, r *http.Request, collectionID, tokenID string) {
	switch r.Method {
	case http.MethodPost:
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var payload struct {
			Price    string `json:"price"`
			Currency string `json:"currency"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		price, err := parseAmount(payload.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lst, err := h.app.Market.List(r.Context(), caller, collectionID, tokenID, price, payload.Currency)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, lst)

	case http.MethodGet:
		lst, err := h.app.Market.GetListing(r.Context(), collectionID, tokenID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, lst)

	case http.MethodDelete:
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		if err := h.app.Market.Cancel(r.Context(), caller, collectionID, tokenID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) tokenQuote(w http.ResponseWriter, r *http.Request, collectionID, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	lst, split, err := h.app.Market.Quote(r.Context(), collectionID, tokenID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"listing": lst,
		"split":   splitView(split),
	})
}

func (h *handler) tokenBuy(w http.ResponseWriter, r *http.Request, collectionID, tokenID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	// The listing is consumed on success and sometimes dropped on failure,
	// so capture the currency up front for the sale metric.
	currency := ""
	if lst, err := h.app.Market.GetListing(r.Context(), collectionID, tokenID); err == nil {
		currency = lst.Currency
	}

	start := time.Now()
	receipt, err := h.app.Market.Buy(r.Context(), caller, collectionID, tokenID)
	metrics.RecordSale(currency, time.Since(start), err == nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"listing": receipt.Listing,
		"split":   splitView(receipt.Split),
		"pool_id": receipt.PoolID,
	})
}

func (h *handler) collectionListings(w http.ResponseWriter, r *http.Request, collectionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	listings, err := h.app.Market.ListListings(r.Context(), collectionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *handler) collectionPool(w http.ResponseWriter, r *http.Request, collectionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	poolID, ok, err := h.app.Factory.PoolFor(r.Context(), collectionID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("collection %s has no pool", collectionID))
		return
	}
	p, err := h.app.Staking.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) pools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pools, err := h.app.Staking.ListPools(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (h *handler) poolResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/pools"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	poolID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, err := h.app.Staking.GetPool(r.Context(), poolID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	switch parts[1] {
	case "stake":
		h.poolStake(w, r, poolID, h.app.Staking.Stake, "stake")
	case "unstake":
		h.poolStake(w, r, poolID, h.app.Staking.Unstake, "unstake")
	case "claim":
		h.poolClaim(w, r, poolID)
	case "flush":
		h.poolFlush(w, r, poolID)
	case "notify":
		h.poolNotify(w, r, poolID)
	case "pending":
		h.poolPending(w, r, poolID)
	case "positions":
		h.poolPositions(w, r, poolID)
	case "stakes":
		h.poolStakes(w, r, poolID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type stakeOp func(ctx context.Context, caller, poolID, assetID string) error

func (h *handler) poolStake(w http.ResponseWriter, r *http.Request, poolID string, op stakeOp, name string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var payload struct {
		AssetID string `json:"asset_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := op(r.Context(), caller, poolID, payload.AssetID)
	metrics.RecordStakeOperation(name, err == nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) poolClaim(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	paid, err := h.app.Staking.ClaimAll(r.Context(), caller, poolID)
	metrics.RecordStakeOperation("claim", err == nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, amountsView(paid))
}

func (h *handler) poolFlush(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Staking.FlushBuffer(r.Context(), poolID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) poolNotify(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var payload struct {
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Staking.NotifyFee(r.Context(), caller, poolID, payload.Currency, amount); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	metrics.RecordFeeNotification(payload.Currency)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) poolPending(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	staker := strings.TrimSpace(r.URL.Query().Get("staker"))
	if staker == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("staker query parameter is required"))
		return
	}
	pending, err := h.app.Staking.Pending(r.Context(), poolID, staker)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, amountsView(pending))
}

func (h *handler) poolPositions(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	positions, err := h.app.Staking.Positions(r.Context(), poolID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (h *handler) poolStakes(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stakes, err := h.app.Staking.Stakes(r.Context(), poolID, r.URL.Query().Get("staker"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stakes)
}

func (h *handler) accountResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	account := parts[0]

	if len(parts) == 1 || parts[1] == "balances" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		balances, err := h.app.Ledger.Balances(r.Context(), account)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, balances)
		return
	}

	switch parts[1] {
	case "deposit":
		h.accountDeposit(w, r, account)
	case "transactions":
		h.accountTransactions(w, r, account)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) accountDeposit(w http.ResponseWriter, r *http.Request, account string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Currency  string `json:"currency"`
		Amount    string `json:"amount"`
		Reference string `json:"reference"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := h.app.Ledger.Deposit(r.Context(), account, payload.Currency, amount, payload.Reference)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *handler) accountTransactions(w http.ResponseWriter, r *http.Request, account string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.app.Ledger.Transactions(r.Context(), account, limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *handler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, feeConfigView(h.app.Policy.Fees()))

	case http.MethodPut:
		var payload struct {
			PlatformFeeBP       uint32   `json:"platform_fee_bp"`
			StakingFeeBP        uint32   `json:"staking_fee_bp"`
			RoyaltyCapBP        uint32   `json:"royalty_cap_bp"`
			Treasury            string   `json:"treasury"`
			NativeCurrency      string   `json:"native_currency"`
			AllowedCurrencies   []string `json:"allowed_currencies"`
			CreationFee         string   `json:"creation_fee"`
			DefaultPoolID       string   `json:"default_pool_id"`
			OpenFeeNotification bool     `json:"open_fee_notification"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		fee := new(big.Int)
		if payload.CreationFee != "" {
			parsed, ok := new(big.Int).SetString(payload.CreationFee, 10)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid creation_fee %q", payload.CreationFee))
				return
			}
			fee = parsed
		}
		err := h.app.Policy.Update(settlement.FeeConfig{
			PlatformFeeBP:       payload.PlatformFeeBP,
			StakingFeeBP:        payload.StakingFeeBP,
			RoyaltyCapBP:        payload.RoyaltyCapBP,
			Treasury:            payload.Treasury,
			NativeCurrency:      payload.NativeCurrency,
			AllowedCurrencies:   payload.AllowedCurrencies,
			CreationFee:         fee,
			DefaultPoolID:       payload.DefaultPoolID,
			OpenFeeNotification: payload.OpenFeeNotification,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, feeConfigView(h.app.Policy.Fees()))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.app.Events(r.Context(), r.URL.Query().Get("collection_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// statusFor maps service errors to HTTP statuses: authorization failures are
// 403, missing records 404, duplicates 409, bounced settlements 402, and
// everything else a validation 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, market.ErrNotListed):
		return http.StatusNotFound
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, staking.ErrAlreadyStaked),
		errors.Is(err, factory.ErrAlreadyBound),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotSeller),
		errors.Is(err, market.ErrNotApproved),
		errors.Is(err, assets.ErrNotOwner),
		errors.Is(err, assets.ErrNotAuthorized),
		errors.Is(err, assets.ErrNotCreator),
		errors.Is(err, staking.ErrNotOwner),
		errors.Is(err, staking.ErrNotStaker),
		errors.Is(err, staking.ErrNotSettlementEngine):
		return http.StatusForbidden
	case errors.Is(err, market.ErrTransferFailed),
		errors.Is(err, factory.ErrCreationFeeUnpaid),
		errors.Is(err, ledgersvc.ErrInsufficientFunds),
		errors.Is(err, storage.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(callerHeader))
	if caller == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("%s header is required", callerHeader))
		return "", false
	}
	return caller, true
}

func parseAmount(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func splitView(s settlement.Split) map[string]string {
	return map[string]string{
		"royalty_amount":   s.RoyaltyAmount.String(),
		"royalty_receiver": s.RoyaltyReceiver,
		"staking_fee":      s.StakingFee.String(),
		"platform_fee":     s.PlatformFee.String(),
		"seller_proceeds":  s.SellerProceeds.String(),
	}
}

func amountsView(amounts map[string]*big.Int) map[string]string {
	out := make(map[string]string, len(amounts))
	for currency, amount := range amounts {
		out[currency] = amount.String()
	}
	return out
}

func feeConfigView(cfg settlement.FeeConfig) map[string]any {
	return map[string]any{
		"platform_fee_bp":       cfg.PlatformFeeBP,
		"staking_fee_bp":        cfg.StakingFeeBP,
		"royalty_cap_bp":        cfg.RoyaltyCapBP,
		"treasury":              cfg.Treasury,
		"native_currency":       cfg.NativeCurrency,
		"allowed_currencies":    cfg.AllowedCurrencies,
		"creation_fee":          cfg.CreationFee.String(),
		"default_pool_id":       cfg.DefaultPoolID,
		"open_fee_notification": cfg.OpenFeeNotification,
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
