package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	app "github.com/MarketForge/settlement_layer/internal/app"
	"github.com/MarketForge/settlement_layer/internal/app/domain/settlement"
	"github.com/MarketForge/settlement_layer/internal/app/metrics"
	"github.com/MarketForge/settlement_layer/internal/app/services/market"
	"github.com/MarketForge/settlement_layer/internal/config"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	policy, err := config.NewMarketPolicy(settlement.FeeConfig{
		PlatformFeeBP:  20,
		StakingFeeBP:   30,
		RoyaltyCapBP:   200,
		Treasury:       "treasury",
		NativeCurrency: "GAS",
		CreationFee:    new(big.Int),
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	application, err := app.New(app.Stores{}, policy, nil)
	if err != nil {
		t.Fatalf("application: %v", err)
	}
	return NewHandler(application)
}

func doJSON(t *testing.T, h http.Handler, method, path, caller string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPurchaseFlow(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/collections", "alice", map[string]any{
		"name":             "Forge Art",
		"symbol":           "FA",
		"royalty_bp":       300,
		"royalty_receiver": "rina",
		"max_supply":       10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deploy: %d %s", rec.Code, rec.Body)
	}
	var deployed struct {
		Collection struct{ ID string }
		Pool       struct{ ID string }
	}
	decodeBody(t, rec, &deployed)
	colID := deployed.Collection.ID
	if colID == "" || deployed.Pool.ID == "" {
		t.Fatalf("deploy response: %s", rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/collections/"+colID+"/tokens", "alice", map[string]any{
		"owner": "alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("mint: %d %s", rec.Code, rec.Body)
	}
	var tok struct{ ID string }
	decodeBody(t, rec, &tok)

	rec = doJSON(t, h, http.MethodPost, "/accounts/bob/deposit", "", map[string]any{
		"currency": "GAS", "amount": "1000000", "reference": "seed",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit: %d %s", rec.Code, rec.Body)
	}

	tokenPath := fmt.Sprintf("/collections/%s/tokens/%s", colID, tok.ID)
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/approve", "alice", map[string]any{
		"operator": market.EngineIdentity,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, tokenPath+"/listing", "alice", map[string]any{
		"price": "1000000", "currency": "GAS",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, tokenPath+"/quote", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", rec.Code, rec.Body)
	}
	var quote struct {
		Split map[string]string `json:"split"`
	}
	decodeBody(t, rec, &quote)
	if quote.Split["royalty_amount"] != "20000" ||
		quote.Split["staking_fee"] != "3000" ||
		quote.Split["platform_fee"] != "2000" ||
		quote.Split["seller_proceeds"] != "975000" {
		t.Fatalf("split = %+v", quote.Split)
	}

	rec = doJSON(t, h, http.MethodPost, tokenPath+"/buy", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: %d %s", rec.Code, rec.Body)
	}
	var receipt struct {
		PoolID string `json:"pool_id"`
	}
	decodeBody(t, rec, &receipt)
	if receipt.PoolID != deployed.Pool.ID {
		t.Fatalf("pool_id = %s", receipt.PoolID)
	}

	rec = doJSON(t, h, http.MethodGet, tokenPath, "", nil)
	var owned struct{ Owner string }
	decodeBody(t, rec, &owned)
	if owned.Owner != "bob" {
		t.Fatalf("owner after purchase = %s", owned.Owner)
	}

	rec = doJSON(t, h, http.MethodGet, "/accounts/alice/balances", "", nil)
	var balances []struct {
		Currency string
		Amount   *big.Int
	}
	decodeBody(t, rec, &balances)
	if len(balances) != 1 || balances[0].Amount.Cmp(big.NewInt(975_000)) != 0 {
		t.Fatalf("seller balances = %+v", balances)
	}

	rec = doJSON(t, h, http.MethodGet, tokenPath+"/listing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("listing should be consumed: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/events?collection_id="+colID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events: %d", rec.Code)
	}
	var records []struct{ Type string }
	decodeBody(t, rec, &records)
	if len(records) == 0 {
		t.Fatalf("no events journalled")
	}
}

func TestCallerRequired(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/collections", "", map[string]any{
		"name": "x", "symbol": "X", "max_supply": 1,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing caller: %d", rec.Code)
	}
}

func TestStatusMapping(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodGet, "/collections/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing collection: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/collections", "alice", map[string]any{
		"name": "Forge", "symbol": "F", "max_supply": 1,
	})
	var deployed struct {
		Collection struct{ ID string }
	}
	decodeBody(t, rec, &deployed)
	colID := deployed.Collection.ID

	rec = doJSON(t, h, http.MethodPost, "/collections/"+colID+"/tokens", "alice", map[string]any{})
	var tok struct{ ID string }
	decodeBody(t, rec, &tok)
	tokenPath := fmt.Sprintf("/collections/%s/tokens/%s", colID, tok.ID)

	// Listing without approval is a permission failure, buying an unlisted
	// token a missing record.
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/listing", "alice", map[string]any{
		"price": "100", "currency": "GAS",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unapproved listing: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/buy", "bob", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unlisted buy: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, tokenPath+"/approve", "alice", map[string]any{
		"operator": market.EngineIdentity,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("approve: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/listing", "alice", map[string]any{
		"price": "100", "currency": "GAS",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}

	// Duplicate listings conflict, self purchases are validation failures
	// and an unfunded buyer bounces the settlement.
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/listing", "alice", map[string]any{
		"price": "100", "currency": "GAS",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate listing: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/buy", "alice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self purchase: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/buy", "bob", nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("unfunded buy: %d", rec.Code)
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/collections", "alice", map[string]any{
		"name": "x", "symbol": "X", "max_supply": 1, "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field accepted: %d", rec.Code)
	}
}

func TestConfigUpdateRoundTrip(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPut, "/config", "", map[string]any{
		"platform_fee_bp":    25,
		"staking_fee_bp":     35,
		"royalty_cap_bp":     150,
		"treasury":           "vault",
		"native_currency":    "GAS",
		"allowed_currencies": []string{"GAS", "NEO"},
		"creation_fee":       "5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/config", "", nil)
	var cfg map[string]any
	decodeBody(t, rec, &cfg)
	if cfg["treasury"] != "vault" || cfg["creation_fee"] != "5" {
		t.Fatalf("config = %+v", cfg)
	}

	// An overcommitted split never replaces the active policy.
	rec = doJSON(t, h, http.MethodPut, "/config", "", map[string]any{
		"platform_fee_bp": 9_990,
		"staking_fee_bp":  35,
		"royalty_cap_bp":  150,
		"treasury":        "vault",
		"native_currency": "GAS",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid update: %d", rec.Code)
	}
}

func TestFailedSaleMetricKeepsCurrency(t *testing.T) {
	h := newTestAPI(t)

	rec := doJSON(t, h, http.MethodPost, "/collections", "alice", map[string]any{
		"name": "Forge", "symbol": "F", "max_supply": 1,
	})
	var deployed struct {
		Collection struct{ ID string }
	}
	decodeBody(t, rec, &deployed)

	rec = doJSON(t, h, http.MethodPost, "/collections/"+deployed.Collection.ID+"/tokens", "alice", map[string]any{})
	var tok struct{ ID string }
	decodeBody(t, rec, &tok)
	tokenPath := fmt.Sprintf("/collections/%s/tokens/%s", deployed.Collection.ID, tok.ID)

	rec = doJSON(t, h, http.MethodPost, tokenPath+"/approve", "alice", map[string]any{
		"operator": market.EngineIdentity,
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("approve: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/listing", "alice", map[string]any{
		"price": "100", "currency": "GAS",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, h, http.MethodPost, tokenPath+"/buy", "bob", nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("unfunded buy: %d", rec.Code)
	}

	// The bounced settlement must be counted under the listing's currency,
	// not "unknown".
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, req)
	series := `settlement_layer_market_sales_total{currency="GAS",outcome="failed"}`
	if !strings.Contains(scrape.Body.String(), series) {
		t.Fatalf("missing series %s", series)
	}
}

func TestAdminGate(t *testing.T) {
	h := WithAdminGate(newTestAPI(t), "sekrit")

	rec := doJSON(t, h, http.MethodPost, "/accounts/bob/deposit", "", map[string]any{
		"currency": "GAS", "amount": "10",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ungated deposit: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/accounts/bob/deposit",
		bytes.NewBufferString(`{"currency":"GAS","amount":"10"}`))
	req.Header.Set(adminHeader, "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("gated deposit: %d %s", rec.Code, rec.Body)
	}

	// Reads pass through untouched.
	rec = doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health through gate: %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := WithRateLimit(newTestAPI(t), 1, 1)

	if rec := doJSON(t, h, http.MethodGet, "/healthz", "carol", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/healthz", "carol", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	// A different caller has its own bucket.
	if rec := doJSON(t, h, http.MethodGet, "/healthz", "dave", nil); rec.Code != http.StatusOK {
		t.Fatalf("other caller: %d", rec.Code)
	}
}
