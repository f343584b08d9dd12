// Package flashloan submits arbitrage trades to the on-chain executor
// contract and waits for their receipts.
package flashloan

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/app"
	"github.com/fd1az/flashloan-arbitrage/business/arbitrage/domain"
	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
	"github.com/fd1az/flashloan-arbitrage/internal/asset"
	"github.com/fd1az/flashloan-arbitrage/internal/logger"
)

const (
	tracerName = "flashloan"
	meterName  = "flashloan"

	defaultReceiptPoll = 2 * time.Second
	defaultGasLimit    = 600_000
)

var _ app.FlashLoanExecutor = (*Executor)(nil)

// Backend is the subset of ethclient.Client the executor needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// GasValuer converts native coin amounts into quote units.
type GasValuer interface {
	NativeToQuote(network string, native decimal.Decimal) decimal.Decimal
}

// Config identifies the executor contract and signing account on one network.
type Config struct {
	Network     string
	ChainID     *big.Int
	Contract    common.Address
	PrivateKey  *ecdsa.PrivateKey
	GasLimit    uint64
	ReceiptPoll time.Duration
}

type executorMetrics struct {
	submitted metric.Int64Counter
	reverted  metric.Int64Counter
	latency   metric.Float64Histogram
}

// Executor signs EIP-1559 transactions calling executeArbitrage and polls
// for their receipts until ctx expires.
type Executor struct {
	cfg     Config
	from    common.Address
	backend Backend
	tokens  *asset.Registry
	gas     GasValuer
	logger  logger.LoggerInterface
	abi     abi.ABI

	tracer  trace.Tracer
	metrics *executorMetrics
}

// ParsePrivateKey decodes a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("execution.private_key"))
	}
	return key, nil
}

// NewExecutor creates an executor for one network.
func NewExecutor(cfg Config, backend Backend, tokens *asset.Registry, gas GasValuer, log logger.LoggerInterface) (*Executor, error) {
	if cfg.PrivateKey == nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("executor requires a signing key"))
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("executor requires a chain id"))
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = defaultReceiptPoll
	}

	parsed, err := abi.JSON(strings.NewReader(ExecutorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor ABI: %w", err)
	}

	e := &Executor{
		cfg:     cfg,
		from:    crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		backend: backend,
		tokens:  tokens,
		gas:     gas,
		logger:  log,
		abi:     parsed,
		tracer:  otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return e, nil
}

func (e *Executor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &executorMetrics{}

	e.metrics.submitted, err = meter.Int64Counter(
		"flashloan_transactions_submitted_total",
		metric.WithDescription("Executor transactions broadcast"),
	)
	if err != nil {
		return err
	}

	e.metrics.reverted, err = meter.Int64Counter(
		"flashloan_transactions_reverted_total",
		metric.WithDescription("Executor transactions mined with a failed status"),
	)
	if err != nil {
		return err
	}

	e.metrics.latency, err = meter.Float64Histogram(
		"flashloan_confirmation_latency_ms",
		metric.WithDescription("Time from broadcast to receipt in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// From returns the signing account.
func (e *Executor) From() common.Address { return e.from }

// Execute submits the trade and waits for its receipt. A mined revert is
// reported through ExecutionResult.Reverted with a nil error; ctx expiry
// before a receipt is CodeExecutionTimeout.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, amountIn decimal.Decimal) (domain.ExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "flashloan.execute",
		trace.WithAttributes(
			attribute.String("network", e.cfg.Network),
			attribute.String("route", string(opp.Key())),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	res, err := e.execute(ctx, opp, amountIn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		return res, err
	}
	span.SetAttributes(attribute.String("tx", res.TxHash), attribute.Bool("reverted", res.Reverted))
	if res.Reverted {
		span.SetStatus(codes.Error, "reverted")
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, opp domain.Opportunity, amountIn decimal.Decimal) (domain.ExecutionResult, error) {
	base, err := e.tokens.Lookup(e.cfg.Network, opp.Pair.Base)
	if err != nil {
		return domain.ExecutionResult{}, apperror.Wrap(err, apperror.CodeInvalidInput, e.cfg.Network)
	}
	quote, err := e.tokens.Lookup(e.cfg.Network, opp.Pair.Quote)
	if err != nil {
		return domain.ExecutionResult{}, apperror.Wrap(err, apperror.CodeInvalidInput, e.cfg.Network)
	}

	id := opp.ID()
	data, err := e.abi.Pack(methodExecute,
		id,
		base.Address,
		quote.Address,
		base.ToRaw(amountIn),
		quote.ToRaw(decimal.Max(opp.Costs.Gas, decimal.Zero)),
		opp.SourceExchange,
		opp.TargetExchange,
	)
	if err != nil {
		return domain.ExecutionResult{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack "+methodExecute))
	}

	tx, err := e.buildTx(ctx, data)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	if err := e.backend.SendTransaction(ctx, tx); err != nil {
		return domain.ExecutionResult{}, rpcError(err, "send transaction")
	}
	e.metrics.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("network", e.cfg.Network)))
	e.logger.Info(ctx, "executor transaction sent",
		"tx", tx.Hash().Hex(), "nonce", tx.Nonce(), "route", string(opp.Key()), "amount_in", amountIn.String())

	return e.awaitResult(ctx, id, quote, tx.Hash())
}

// Await resumes waiting on a transaction broadcast by an earlier Execute
// call for opp. Nothing new is sent.
func (e *Executor) Await(ctx context.Context, opp domain.Opportunity, txHash string) (domain.ExecutionResult, error) {
	ctx, span := e.tracer.Start(ctx, "flashloan.await",
		trace.WithAttributes(
			attribute.String("network", e.cfg.Network),
			attribute.String("tx", txHash),
		),
	)
	defer span.End()

	quote, err := e.tokens.Lookup(e.cfg.Network, opp.Pair.Quote)
	if err != nil {
		return domain.ExecutionResult{TxHash: txHash}, apperror.Wrap(err, apperror.CodeInvalidInput, e.cfg.Network)
	}
	res, err := e.awaitResult(ctx, opp.ID(), quote, common.HexToHash(txHash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "await failed")
	}
	return res, err
}

func (e *Executor) awaitResult(ctx context.Context, id [32]byte, quote asset.Token, hash common.Hash) (domain.ExecutionResult, error) {
	sent := time.Now()
	result := domain.ExecutionResult{TxHash: hash.Hex()}

	receipt, err := e.waitReceipt(ctx, hash)
	if err != nil {
		return result, err
	}
	e.metrics.latency.Record(ctx, float64(time.Since(sent).Milliseconds()))

	result.GasUsed = receipt.GasUsed
	result.GasCost = e.gasCost(receipt)

	if receipt.Status != types.ReceiptStatusSuccessful {
		e.metrics.reverted.Add(ctx, 1, metric.WithAttributes(attribute.String("network", e.cfg.Network)))
		result.Reverted = true
		// The flash loan is atomic: a revert only spends gas.
		result.NoSideEffects = true
		return result, nil
	}

	profit, err := e.profitFromLogs(receipt, id, quote)
	if err != nil {
		return result, err
	}
	result.ActualProfit = profit.Sub(result.GasCost)
	return result, nil
}

func (e *Executor) buildTx(ctx context.Context, data []byte) (*types.Transaction, error) {
	nonce, err := e.backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, rpcError(err, "pending nonce")
	}
	tip, err := e.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, rpcError(err, "gas tip")
	}
	head, err := e.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, rpcError(err, "latest header")
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := e.cfg.Contract
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       e.cfg.GasLimit,
		To:        &to,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.cfg.ChainID), e.cfg.PrivateKey)
	if err != nil {
		return nil, apperror.New(apperror.CodeTransactionSignFailed, apperror.WithCause(err))
	}
	return signed, nil
}

func (e *Executor) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(e.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() != nil:
		default:
			e.logger.Warn(ctx, "receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, apperror.New(apperror.CodeExecutionTimeout,
				apperror.WithCause(ctx.Err()),
				apperror.WithContext("no receipt for "+hash.Hex()))
		case <-ticker.C:
		}
	}
}

func (e *Executor) gasCost(receipt *types.Receipt) decimal.Decimal {
	price := receipt.EffectiveGasPrice
	if price == nil {
		return decimal.Zero
	}
	wei := new(big.Int).Mul(price, new(big.Int).SetUint64(receipt.GasUsed))
	native := asset.WeiToNative(wei)
	if e.gas == nil {
		return decimal.Zero
	}
	return e.gas.NativeToQuote(e.cfg.Network, native)
}

func (e *Executor) profitFromLogs(receipt *types.Receipt, id [32]byte, quote asset.Token) (decimal.Decimal, error) {
	ev := e.abi.Events[eventExecuted]
	for _, l := range receipt.Logs {
		if l.Address != e.cfg.Contract || len(l.Topics) < 2 || l.Topics[0] != ev.ID || l.Topics[1] != common.Hash(id) {
			continue
		}
		var out executedEvent
		if err := e.abi.UnpackIntoInterface(&out, eventExecuted, l.Data); err != nil {
			return decimal.Zero, apperror.New(apperror.CodeContractCallFailed,
				apperror.WithCause(err),
				apperror.WithContext("decode "+eventExecuted))
		}
		return quote.ToDecimal(out.Profit), nil
	}
	return decimal.Zero, apperror.New(apperror.CodeExecutionFailed,
		apperror.WithContext(eventExecuted+" missing from "+receipt.TxHash.Hex()))
}

func rpcError(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.New(apperror.CodeExecutionTimeout, apperror.WithCause(err), apperror.WithContext(op))
	}
	return apperror.New(apperror.CodeEthereumRPCError, apperror.WithCause(err), apperror.WithContext(op))
}
