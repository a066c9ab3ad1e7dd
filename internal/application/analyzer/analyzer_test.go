package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"txrisk-engine/internal/adapter/decoder"
	"txrisk-engine/internal/domain/entity"
	"txrisk-engine/internal/pkg/apperrors"
	"txrisk-engine/internal/pkg/units"
)

const (
	wallet  = "0x1000000000000000000000000000000000000001"
	other   = "0x2000000000000000000000000000000000000002"
	spender = "0x3000000000000000000000000000000000000003"
	tokenA  = "0xa00000000000000000000000000000000000000a"
	tokenB  = "0xb00000000000000000000000000000000000000b"
	pool    = "0xc00000000000000000000000000000000000000c"
	scam    = "0xdead00000000000000000000000000000000dead"
)

var mainnet = entity.ChainConfig{ChainID: "0x1", NativeSymbol: "ETH", NativeDecimals: 18}

type registryStub struct{}

func (registryStub) ConfigFor(string) entity.ChainConfig { return mainnet }

type handler func(params []any) entity.RaceOutcome

type fakeRacer struct {
	mu       sync.Mutex
	calls    []string
	handlers map[string]handler
}

func newRacer() *fakeRacer {
	return &fakeRacer{handlers: make(map[string]handler)}
}

func (f *fakeRacer) on(method string, h handler) *fakeRacer {
	f.handlers[method] = h
	return f
}

func (f *fakeRacer) RaceOutcome(_ context.Context, _, method string, params []any, _ bool) entity.RaceOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	h := f.handlers[method]
	f.mu.Unlock()
	if h == nil {
		return entity.RaceOutcome{}
	}
	return h(params)
}

func (f *fakeRacer) Race(ctx context.Context, chainID, method string, params []any, trace bool) json.RawMessage {
	return f.RaceOutcome(ctx, chainID, method, params, trace).Result
}

func (f *fakeRacer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePrices struct {
	mu     sync.Mutex
	calls  int
	prices map[string]float64
}

func (p *fakePrices) PriceOf(_ context.Context, token, _ string, _ int, _ string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.prices[token]
}

func (p *fakePrices) NativePrice(context.Context, string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 2000
}

type fakeTokens struct {
	mu    sync.Mutex
	calls int
	metas map[string]entity.TokenMeta
}

func (t *fakeTokens) Metadata(_ context.Context, _, token string) entity.TokenMeta {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if m, ok := t.metas[token]; ok {
		return m
	}
	return entity.TokenMeta{Symbol: "TKN", Decimals: 18}
}

func (t *fakeTokens) Image(_ context.Context, _, _ string, id *big.Int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return "https://img.example/" + id.String()
}

type blockSet map[string]bool

func (b blockSet) IsBlocked(addr string) bool {
	return b[strings.ToLower(strings.TrimSpace(addr))]
}

type panicDecoder struct{}

func (panicDecoder) Decode(string) entity.DecodedCall { panic("corrupt selector table") }

type fixture struct {
	racer  *fakeRacer
	prices *fakePrices
	tokens *fakeTokens
	blocks blockSet
}

func newFixture() *fixture {
	return &fixture{
		racer:  newRacer(),
		prices: &fakePrices{prices: map[string]float64{tokenA: 1, tokenB: 1}},
		tokens: &fakeTokens{metas: map[string]entity.TokenMeta{tokenA: {Symbol: "AAA", Decimals: 18}, tokenB: {Symbol: "BBB", Decimals: 18}}},
		blocks: blockSet{},
	}
}

func (f *fixture) analyzer() *Analyzer {
	return New(registryStub{}, f.racer, decoder.New(), f.prices, f.tokens, f.blocks, nil, zap.NewNop())
}

func (f *fixture) analyze(op entity.PendingOperation) entity.RiskVerdict {
	return f.analyzer().Analyze(context.Background(), op, wallet)
}

// helpers

func respond(v any) handler {
	b, _ := json.Marshal(v)
	return func([]any) entity.RaceOutcome { return entity.RaceOutcome{Result: b} }
}

func word(v *big.Int) string {
	return fmt.Sprintf("%064x", v)
}

func addrWord(addr string) string {
	return strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x")
}

func topic(addr string) string {
	return "0x" + addrWord(addr)
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), units.Pow10(18))
}

func calldata(sig string, words ...string) string {
	return decoder.Selector(sig) + strings.Join(words, "")
}

func sendTx(to, value, data string) entity.PendingOperation {
	tx := map[string]string{"from": wallet, "to": to}
	if value != "" {
		tx["value"] = value
	}
	if data != "" {
		tx["data"] = data
	}
	b, _ := json.Marshal(tx)
	return entity.PendingOperation{
		Method:        entity.MethodSendTransaction,
		Params:        []json.RawMessage{b},
		Origin:        "app.example.org",
		ChainID:       "0x1",
		CorrelationID: "test",
	}
}

func transferLog(token, from, to string, amount *big.Int) map[string]any {
	return map[string]any{
		"address": token,
		"topics":  []string{decoder.TransferTopic, topic(from), topic(to)},
		"data":    "0x" + word(amount),
	}
}

func swapLog() map[string]any {
	return map[string]any{
		"address": pool,
		"topics":  []string{decoder.SwapV2Topic, topic(other), topic(wallet)},
		"data":    "0x",
	}
}

func trace(logs ...map[string]any) handler {
	if logs == nil {
		logs = []map[string]any{}
	}
	return respond(map[string]any{"type": "CALL", "from": wallet, "to": other, "value": "0x0", "logs": logs})
}

func hasWarning(v entity.RiskVerdict, text string) bool {
	for _, w := range v.Warnings {
		if strings.Contains(w, text) {
			return true
		}
	}
	return false
}

// tests

func TestAnalyze_RequestAccounts(t *testing.T) {
	f := newFixture()
	f.blocks[scam] = true

	v := f.analyze(entity.PendingOperation{Method: entity.MethodRequestAccounts, ChainID: "0x1"})
	assert.Equal(t, entity.RiskSafe, v.Level)
	assert.Equal(t, "WALLET CONNECT", v.Title)
	assert.Nil(t, v.Simulation)
	assert.Zero(t, f.racer.count())
}

func TestAnalyze_BlocklistedTargetShortCircuits(t *testing.T) {
	f := newFixture()
	f.blocks[scam] = true
	f.racer.on(traceMethod, trace())

	v := f.analyze(sendTx("0xDEAD00000000000000000000000000000000DEAD", "0x1", ""))
	assert.Equal(t, entity.RiskCritical, v.Level)
	assert.Nil(t, v.Simulation)
	assert.Zero(t, f.racer.count(), "no RPC calls")
	assert.Zero(t, f.prices.calls, "no price lookups")
	assert.Zero(t, f.tokens.calls)
}

func TestAnalyze_BlocklistedSpender(t *testing.T) {
	f := newFixture()
	f.blocks[scam] = true

	v := f.analyze(sendTx(tokenA, "", calldata("approve(address,uint256)", addrWord(scam), word(big.NewInt(1)))))
	assert.Equal(t, entity.RiskCritical, v.Level)
	assert.Equal(t, titleBlocklisted, v.Title)
	assert.Nil(t, v.Simulation)
	assert.Zero(t, f.racer.count())
}

func TestAnalyze_Approve(t *testing.T) {
	t.Run("unlimited", func(t *testing.T) {
		f := newFixture()
		v := f.analyze(sendTx(tokenA, "", calldata("approve(address,uint256)", addrWord(spender), word(units.MaxUint256))))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.True(t, hasWarning(v, "unlimited allowance"))
	})

	t.Run("finite", func(t *testing.T) {
		f := newFixture()
		v := f.analyze(sendTx(tokenA, "", calldata("approve(address,uint256)", addrWord(spender), word(ether(1000)))))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.False(t, hasWarning(v, "unlimited allowance"))
		assert.True(t, hasWarning(v, "spend 1000 AAA"))
	})
}

func TestAnalyze_SetApprovalForAll(t *testing.T) {
	f := newFixture()
	v := f.analyze(sendTx(tokenA, "", calldata("setApprovalForAll(address,bool)", addrWord(spender), word(big.NewInt(1)))))
	assert.Equal(t, entity.RiskCritical, v.Level)
	assert.Equal(t, titleCollection, v.Title)

	f = newFixture()
	v = f.analyze(sendTx(tokenA, "", calldata("setApprovalForAll(address,bool)", addrWord(spender), word(big.NewInt(0)))))
	assert.Less(t, v.Level, entity.RiskCritical, "revoking is not an approval")
}

func TestAnalyze_CriticalIsNeverLowered(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(transferLog(tokenB, pool, wallet, ether(1))))

	v := f.analyze(sendTx(tokenA, "", calldata("approve(address,uint256)", addrWord(spender), word(ether(5)))))
	assert.Equal(t, entity.RiskCritical, v.Level)
	assert.Equal(t, titleApproval, v.Title)
}

func TestAnalyze_TraceTransferLoss(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(
		transferLog(tokenA, wallet, other, ether(3)),
		transferLog(tokenB, pool, other, ether(9)), // not ours
	))

	v := f.analyze(sendTx(pool, "", "0xdeadbeef"))
	require.NotNil(t, v.Simulation)
	require.Len(t, v.Simulation.Entries, 1)
	e := v.Simulation.Entries[0]
	assert.Equal(t, entity.DirectionLoss, e.Direction)
	assert.Equal(t, "3", e.Amount)
	assert.Equal(t, "AAA", e.Symbol)
	assert.Equal(t, other, e.Counterparty)
	assert.InDelta(t, 3.0, e.USDValue, 1e-9)
	assert.GreaterOrEqual(t, v.Level, entity.RiskMedium)
}

func TestAnalyze_MintAndNFT(t *testing.T) {
	f := newFixture()
	nft := map[string]any{
		"address": tokenB,
		"topics":  []string{decoder.TransferTopic, topic(entity.ZeroAddress), topic(wallet), "0x" + word(big.NewInt(42))},
		"data":    "0x",
	}
	f.racer.on(traceMethod, trace(nft))

	v := f.analyze(sendTx(tokenB, "", "0xdeadbeef"))
	require.NotNil(t, v.Simulation)
	require.Len(t, v.Simulation.Entries, 1)
	e := v.Simulation.Entries[0]
	assert.Equal(t, entity.DirectionMint, e.Direction)
	assert.Equal(t, "BBB #42", e.Symbol)
	assert.Equal(t, "https://img.example/42", e.ImageURL)
}

func TestAnalyze_DecodedTransferMergedWithTrace(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(transferLog(tokenA, wallet, other, ether(5))))

	v := f.analyze(sendTx(tokenA, "", calldata("transfer(address,uint256)", addrWord(other), word(ether(5)))))
	require.NotNil(t, v.Simulation)
	assert.Len(t, v.Simulation.Entries, 1)
	assert.Equal(t, entity.RiskMedium, v.Level)
	assert.True(t, hasWarning(v, "sends 5 AAA to "+other))
}

func TestAnalyze_SwapPriceImpact(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(
		transferLog(tokenA, wallet, pool, ether(100)),
		swapLog(),
		transferLog(tokenB, pool, wallet, ether(70)),
	))

	v := f.analyze(sendTx(other, "", decoder.Selector("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)")))
	assert.GreaterOrEqual(t, v.Level, entity.RiskHigh)
	assert.True(t, hasWarning(v, "30.0%"), v.Warnings)
}

func TestAnalyze_RepeatedIdenticalDebitsAreAllCounted(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(
		transferLog(tokenA, wallet, pool, ether(100)),
		transferLog(tokenA, wallet, pool, ether(100)),
		swapLog(),
		transferLog(tokenB, pool, wallet, ether(150)),
	))

	v := f.analyze(sendTx(tokenA, "", calldata("transfer(address,uint256)", addrWord(pool), word(ether(100)))))
	require.NotNil(t, v.Simulation)

	losses := 0
	for _, e := range v.Simulation.Entries {
		if e.Direction == entity.DirectionLoss {
			losses++
		}
	}
	assert.Equal(t, 2, losses, "the decoded transfer matches only one of the two debits")
	assert.Len(t, v.Simulation.Entries, 3)
	assert.Equal(t, entity.RiskHigh, v.Level)
	assert.True(t, hasWarning(v, "25.0%"), v.Warnings)
}

func TestMerge_EachEntryAbsorbsOneDuplicate(t *testing.T) {
	e := entity.AssetChangeEntry{Direction: entity.DirectionLoss, Token: tokenA, Amount: "1", Symbol: "AAA", Counterparty: pool}

	r := newRun()
	r.add(e)
	sub := newRun()
	sub.add(e)
	sub.add(e)
	sub.add(e)
	r.merge(sub)
	assert.Len(t, r.entries, 3)

	r = newRun()
	r.add(e)
	r.add(e)
	sub = newRun()
	sub.add(e)
	r.merge(sub)
	assert.Len(t, r.entries, 2)
}

func TestAnalyze_SmallPriceImpactIsInformational(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(
		transferLog(tokenA, wallet, pool, ether(100)),
		swapLog(),
		transferLog(tokenB, pool, wallet, ether(90)),
	))

	v := f.analyze(sendTx(other, "", "0xdeadbeef"))
	assert.True(t, hasWarning(v, "price impact 10.0%"))
	assert.Equal(t, entity.RiskMedium, v.Level, "outflow only")
}

func TestAnalyze_SwapWithNothingBackIsDrain(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace(transferLog(tokenA, wallet, pool, ether(100)), swapLog()))

	v := f.analyze(sendTx(other, "", "0xdeadbeef"))
	assert.Equal(t, entity.RiskHigh, v.Level)
	assert.Equal(t, titleDrain, v.Title)
	assert.True(t, hasWarning(v, "likely drain"))
}

func TestAnalyze_TraceRevert(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, respond(map[string]any{
		"type": "CALL", "from": wallet, "to": other,
		"error": "execution reverted", "revertReason": "TRANSFER_FAILED",
	}))

	v := f.analyze(sendTx(other, "", "0xdeadbeef"))
	assert.Equal(t, entity.RiskCritical, v.Level)
	assert.True(t, hasWarning(v, "TRANSFER_FAILED"))
}

func TestAnalyze_FallbackCall(t *testing.T) {
	halfEth := "0x6f05b59d3b20000"

	t.Run("reverted", func(t *testing.T) {
		f := newFixture()
		f.racer.on(fallbackMethod, func([]any) entity.RaceOutcome {
			return entity.RaceOutcome{ExecutionError: "execution reverted"}
		})
		v := f.analyze(sendTx(other, halfEth, ""))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.Equal(t, titleWillFail, v.Title)
	})

	// Known false positive: a node answering "" for a call that succeeded
	// without return data is still reported as a failing transaction.
	t.Run("empty result counts as revert", func(t *testing.T) {
		f := newFixture()
		f.racer.on(fallbackMethod, respond(""))
		v := f.analyze(sendTx(other, halfEth, ""))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.Equal(t, titleWillFail, v.Title)
	})

	t.Run("success without trace is a blind spot", func(t *testing.T) {
		f := newFixture()
		f.racer.on(fallbackMethod, respond("0x"))
		v := f.analyze(sendTx(other, halfEth, ""))
		assert.Equal(t, entity.RiskLow, v.Level)
		assert.True(t, hasWarning(v, "could not be verified"))
	})

	t.Run("nobody reachable", func(t *testing.T) {
		f := newFixture()
		v := f.analyze(sendTx(other, halfEth, ""))
		assert.Equal(t, entity.RiskMedium, v.Level)
		assert.True(t, hasWarning(v, "could not verify, risk unknown"))
	})
}

func TestAnalyze_PlainTransferDefaultsToLow(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace())
	f.racer.on("eth_getCode", respond("0x"))

	v := f.analyze(sendTx(other, "0x6f05b59d3b20000", ""))
	assert.Equal(t, entity.RiskLow, v.Level)
	assert.Equal(t, []string{"no obvious local red flags, still verify manually"}, v.Warnings)
	require.NotNil(t, v.Simulation)
	require.Len(t, v.Simulation.Entries, 1)
	assert.Equal(t, "0.5", v.Simulation.Entries[0].Amount)
	assert.Equal(t, "ETH", v.Simulation.Entries[0].Symbol)
	assert.InDelta(t, 1000.0, v.Simulation.Entries[0].USDValue, 1e-9)
}

func TestAnalyze_GasAndValueHeuristics(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace())

	op := sendTx(other, "0x1bc16d674ec80000", "")
	var tx map[string]string
	require.NoError(t, json.Unmarshal(op.Params[0], &tx))
	tx["gas"] = "0x1e8481"
	op.Params[0], _ = json.Marshal(tx)

	v := f.analyze(op)
	assert.Equal(t, entity.RiskHigh, v.Level)
	assert.Equal(t, titleGasLimit, v.Title)
	assert.True(t, hasWarning(v, "sends 2 ETH"))
}

func TestAnalyze_ProxyAndOpcodes(t *testing.T) {
	impl := "0xe00000000000000000000000000000000000000e"
	f := newFixture()
	f.racer.on(traceMethod, trace())
	f.racer.on("eth_getStorageAt", respond("0x"+addrWord(impl)))
	f.racer.on("eth_getCode", respond("0x60ff00f4"))

	v := f.analyze(sendTx(other, "", "0xdeadbeef"))
	assert.True(t, hasWarning(v, impl))
	assert.True(t, hasWarning(v, "DELEGATECALL"))
	assert.False(t, hasWarning(v, "SELFDESTRUCT"), "0xff inside PUSH1 data is not an opcode")
	assert.Equal(t, entity.RiskMedium, v.Level)
}

func TestAnalyze_StagePanicDegradesToWarning(t *testing.T) {
	f := newFixture()
	f.racer.on(traceMethod, trace())
	a := New(registryStub{}, f.racer, panicDecoder{}, f.prices, f.tokens, f.blocks, nil, zap.NewNop())

	v := a.Analyze(context.Background(), sendTx(other, "", "0xdeadbeef"), wallet)
	assert.GreaterOrEqual(t, v.Level, entity.RiskMedium)
	assert.True(t, hasWarning(v, "could not verify calldata, risk unknown"))
	assert.NotNil(t, v.Simulation)
}

func TestAnalyze_StagePanicIsLoggedAsInternalError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture()
	f.racer.on(traceMethod, trace())
	a := New(registryStub{}, f.racer, panicDecoder{}, f.prices, f.tokens, f.blocks, nil, zap.New(core))

	_ = a.Analyze(context.Background(), sendTx(other, "", "0xdeadbeef"), wallet)

	entries := logs.FilterMessage("Analysis stage failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "calldata", fields["stage"])
	assert.Contains(t, fields["error"], "corrupt selector table")

	err := stageError("calldata", "corrupt selector table")
	assert.ErrorIs(t, err, apperrors.ErrInternal)
}

func typedDataOp(domainName, primaryType, verifyingContract string) entity.PendingOperation {
	doc, _ := json.Marshal(map[string]any{
		"domain":      map[string]any{"name": domainName, "verifyingContract": verifyingContract, "chainId": 1},
		"primaryType": primaryType,
		"message":     map[string]any{"spender": spender, "value": "1"},
	})
	asString, _ := json.Marshal(string(doc))
	addr, _ := json.Marshal(wallet)
	return entity.PendingOperation{
		Method:  entity.MethodSignTypedDataV4,
		Params:  []json.RawMessage{addr, asString},
		ChainID: "0x1",
	}
}

func TestAnalyze_Signatures(t *testing.T) {
	t.Run("permit", func(t *testing.T) {
		v := newFixture().analyze(typedDataOp("Permit2", "PermitSingle", tokenA))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.Equal(t, titlePermit, v.Title)
		assert.True(t, hasWarning(v, "offline permit"))
		assert.Nil(t, v.Simulation)
	})

	t.Run("other typed data", func(t *testing.T) {
		v := newFixture().analyze(typedDataOp("Seaport", "OrderComponents", tokenA))
		assert.Equal(t, entity.RiskMedium, v.Level)
		assert.Equal(t, titleSignature, v.Title)
	})

	t.Run("blocklisted verifying contract", func(t *testing.T) {
		f := newFixture()
		f.blocks[scam] = true
		v := f.analyze(typedDataOp("Seaport", "OrderComponents", scam))
		assert.Equal(t, entity.RiskCritical, v.Level)
		assert.Equal(t, titleBlocklisted, v.Title)
	})

	t.Run("personal_sign", func(t *testing.T) {
		msg, _ := json.Marshal("0x48656c6c6f")
		v := newFixture().analyze(entity.PendingOperation{Method: entity.MethodPersonalSign, Params: []json.RawMessage{msg}})
		assert.Equal(t, entity.RiskMedium, v.Level)
		assert.True(t, hasWarning(v, "verify the site"))
	})
}

func TestAnalyze_UnknownMethodDefaultsToLow(t *testing.T) {
	v := newFixture().analyze(entity.PendingOperation{Method: "wallet_switchEthereumChain"})
	assert.Equal(t, entity.RiskLow, v.Level)
	assert.Equal(t, titleNoRedFlags, v.Title)
	assert.Nil(t, v.Simulation)
}

func TestScanOpcodes(t *testing.T) {
	tests := []struct {
		name         string
		code         []byte
		selfDestruct bool
		delegateCall bool
	}{
		{name: "selfdestruct", code: []byte{0x00, 0xff}, selfDestruct: true},
		{name: "push data skipped", code: []byte{0x60, 0xff, 0x61, 0xf4, 0xff}},
		{name: "push32 then delegatecall", code: append(append([]byte{0x7f}, make([]byte, 32)...), 0xf4), delegateCall: true},
		{name: "empty", code: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, dc := ScanOpcodes(tt.code)
			assert.Equal(t, tt.selfDestruct, sd)
			assert.Equal(t, tt.delegateCall, dc)
		})
	}
}
