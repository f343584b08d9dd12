package flashloan

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	pricingDomain "github.com/fd1az/flashloan-arbitrage/business/pricing/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

var (
	executorAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	wethAddr     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdcAddr     = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

type fakeBackend struct {
	mu      sync.Mutex
	sent    []*types.Transaction
	receipt func(tx *types.Transaction) *types.Receipt // nil result means not mined
	sendErr error
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(14_000_000_000)}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash && f.receipt != nil {
			if r := f.receipt(tx); r != nil {
				return r, nil
			}
		}
	}
	return nil, ethereum.NotFound
}

type fixedNative struct{ price decimal.Decimal }

func (p fixedNative) NativeToQuote(_ string, native decimal.Decimal) decimal.Decimal {
	return native.Mul(p.price)
}

func testOpportunity() domain.Opportunity {
	pair := pricingDomain.MustParsePair("WETH-USDC")
	route := domain.Route{
		Pair:           pair,
		PairSymbol:     pair.String(),
		SourceExchange: "uniswap",
		TargetExchange: "sushiswap",
		SourceNetwork:  "ethereum",
		TargetNetwork:  "ethereum",
	}
	return domain.Opportunity{
		Fingerprint: crypto.Keccak256Hash([]byte("opp")).Hex(),
		Route:       route,
		AmountIn:    decimal.NewFromInt(10),
		Costs:       domain.Costs{Gas: decimal.RequireFromString("25.2")},
	}
}

func newTestExecutor(t *testing.T, backend Backend) *Executor {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	tokens := asset.NewRegistry()
	tokens.Register(asset.Token{Symbol: "WETH", Network: "ethereum", Address: wethAddr, Decimals: 18})
	tokens.Register(asset.Token{Symbol: "USDC", Network: "ethereum", Address: usdcAddr, Decimals: 6})

	e, err := NewExecutor(Config{
		Network:     "ethereum",
		ChainID:     big.NewInt(1),
		Contract:    executorAddr,
		PrivateKey:  key,
		GasLimit:    500_000,
		ReceiptPoll: 5 * time.Millisecond,
	}, backend, tokens, fixedNative{price: decimal.NewFromInt(2000)}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return e
}

func executedLog(t *testing.T, id common.Hash, profit *big.Int) *types.Log {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(ExecutorABI))
	if err != nil {
		t.Fatal(err)
	}
	ev := parsed.Events[eventExecuted]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(1e18), profit)
	if err != nil {
		t.Fatal(err)
	}
	return &types.Log{Address: executorAddr, Topics: []common.Hash{ev.ID, id}, Data: data}
}

func TestExecutor_Success(t *testing.T) {
	opp := testOpportunity()
	backend := &fakeBackend{}
	backend.receipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            tx.Hash(),
			GasUsed:           210_000,
			EffectiveGasPrice: big.NewInt(30_000_000_000),
			Logs:              []*types.Log{executedLog(t, common.Hash(opp.ID()), big.NewInt(80_000_000))},
		}
	}
	e := newTestExecutor(t, backend)

	res, err := e.Execute(context.Background(), opp, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Reverted {
		t.Fatal("Reverted = true")
	}

	// 210k gas * 30 gwei = 0.0063 ETH = 12.6 USDC; 80 USDC reported profit.
	if !res.GasCost.Equal(decimal.RequireFromString("12.6")) {
		t.Errorf("GasCost = %s, want 12.6", res.GasCost)
	}
	if !res.ActualProfit.Equal(decimal.RequireFromString("67.4")) {
		t.Errorf("ActualProfit = %s, want 67.4", res.ActualProfit)
	}

	tx := backend.sent[0]
	if tx.Type() != types.DynamicFeeTxType {
		t.Errorf("tx type = %d, want dynamic fee", tx.Type())
	}
	if *tx.To() != executorAddr || tx.Gas() != 500_000 {
		t.Errorf("tx to %s gas %d", tx.To().Hex(), tx.Gas())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Errorf("fee cap = %s, want 2*base + tip", tx.GasFeeCap())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), tx)
	if err != nil || sender != e.From() {
		t.Errorf("sender = %s, %v", sender.Hex(), err)
	}

	method, err := e.abi.MethodById(tx.Data()[:4])
	if err != nil || method.Name != methodExecute {
		t.Fatalf("calldata method = %v, %v", method, err)
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatal(err)
	}
	if got := args[3].(*big.Int); got.Cmp(new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))) != 0 {
		t.Errorf("amountIn = %s", got)
	}
	if args[5].(string) != "uniswap" || args[6].(string) != "sushiswap" {
		t.Errorf("exchanges = %v, %v", args[5], args[6])
	}
}

func TestExecutor_Revert(t *testing.T) {
	backend := &fakeBackend{}
	backend.receipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:            types.ReceiptStatusFailed,
			TxHash:            tx.Hash(),
			GasUsed:           90_000,
			EffectiveGasPrice: big.NewInt(30_000_000_000),
		}
	}
	e := newTestExecutor(t, backend)

	res, err := e.Execute(context.Background(), testOpportunity(), decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Reverted || !res.NoSideEffects {
		t.Errorf("result = %+v, want reverted without side effects", res)
	}
	if !res.GasCost.Equal(decimal.RequireFromString("5.4")) {
		t.Errorf("GasCost = %s, want 5.4", res.GasCost)
	}
	if res.TxHash == "" {
		t.Error("TxHash empty")
	}
}

func TestExecutor_ReceiptTimeout(t *testing.T) {
	e := newTestExecutor(t, &fakeBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := e.Execute(ctx, testOpportunity(), decimal.NewFromInt(10))
	if !apperror.HasCode(err, apperror.CodeExecutionTimeout) {
		t.Fatalf("Execute() error = %v, want EXECUTION_TIMEOUT", err)
	}
	if !apperror.IsRetryable(err) {
		t.Error("timeout not retryable")
	}
	if res.TxHash == "" {
		t.Error("TxHash not reported for a broadcast transaction")
	}
}

func TestExecutor_AwaitResumesWithoutResending(t *testing.T) {
	opp := testOpportunity()
	backend := &fakeBackend{}
	e := newTestExecutor(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	first, err := e.Execute(ctx, opp, decimal.NewFromInt(10))
	cancel()
	if !apperror.HasCode(err, apperror.CodeExecutionTimeout) {
		t.Fatalf("Execute() error = %v, want EXECUTION_TIMEOUT", err)
	}

	backend.mu.Lock()
	backend.receipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            tx.Hash(),
			GasUsed:           210_000,
			EffectiveGasPrice: big.NewInt(1),
			Logs:              []*types.Log{executedLog(t, common.Hash(opp.ID()), big.NewInt(80_000_000))},
		}
	}
	backend.mu.Unlock()

	res, err := e.Await(context.Background(), opp, first.TxHash)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if res.TxHash != first.TxHash {
		t.Errorf("TxHash = %s, want %s", res.TxHash, first.TxHash)
	}
	if res.Reverted || !res.ActualProfit.IsPositive() {
		t.Errorf("result = %+v, want a profitable receipt", res)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.sent) != 1 {
		t.Errorf("sent %d transactions, want 1", len(backend.sent))
	}
}

func TestExecutor_MissingEvent(t *testing.T) {
	backend := &fakeBackend{}
	backend.receipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), EffectiveGasPrice: big.NewInt(1)}
	}
	e := newTestExecutor(t, backend)

	_, err := e.Execute(context.Background(), testOpportunity(), decimal.NewFromInt(10))
	if !apperror.HasCode(err, apperror.CodeExecutionFailed) {
		t.Errorf("Execute() error = %v, want EXECUTION_FAILED", err)
	}
}

func TestRouter(t *testing.T) {
	backend := &fakeBackend{sendErr: context.DeadlineExceeded}
	r := NewRouter(map[string]app.FlashLoanExecutor{"ethereum": newTestExecutor(t, backend)})

	cross := testOpportunity()
	cross.TargetNetwork = "arbitrum"
	if _, err := r.Execute(context.Background(), cross, decimal.NewFromInt(1)); !apperror.HasCode(err, apperror.CodeExecutionFailed) {
		t.Errorf("cross-chain error = %v", err)
	}

	other := testOpportunity()
	other.SourceNetwork, other.TargetNetwork = "base", "base"
	if _, err := r.Execute(context.Background(), other, decimal.NewFromInt(1)); !apperror.HasCode(err, apperror.CodeExecutionFailed) {
		t.Errorf("unknown network error = %v", err)
	}

	_, err := r.Execute(context.Background(), testOpportunity(), decimal.NewFromInt(1))
	if !apperror.HasCode(err, apperror.CodeExecutionTimeout) {
		t.Errorf("send timeout error = %v, want EXECUTION_TIMEOUT", err)
	}
}

func TestParsePrivateKey(t *testing.T) {
	if _, err := ParsePrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"); err != nil {
		t.Errorf("ParsePrivateKey() error = %v", err)
	}
	if _, err := ParsePrivateKey("not-a-key"); !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Errorf("ParsePrivateKey() error = %v, want CONFIGURATION_ERROR", err)
	}
}
