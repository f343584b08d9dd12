package flashloan

import "math/big"

// ExecutorABI covers the arbitrage executor contract: one entry point that
// borrows amountIn of baseToken, buys on buyExchange, sells on sellExchange,
// repays the loan and reverts unless at least minProfit of quoteToken is left.
const ExecutorABI = `[
	{
		"inputs": [
			{"internalType": "bytes32", "name": "opportunityId", "type": "bytes32"},
			{"internalType": "address", "name": "baseToken", "type": "address"},
			{"internalType": "address", "name": "quoteToken", "type": "address"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "minProfit", "type": "uint256"},
			{"internalType": "string", "name": "buyExchange", "type": "string"},
			{"internalType": "string", "name": "sellExchange", "type": "string"}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "opportunityId", "type": "bytes32"},
			{"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"indexed": false, "internalType": "uint256", "name": "profit", "type": "uint256"}
		],
		"name": "ArbitrageExecuted",
		"type": "event"
	}
]`

const (
	methodExecute = "executeArbitrage"
	eventExecuted = "ArbitrageExecuted"
)

// executedEvent is the non-indexed part of ArbitrageExecuted.
type executedEvent struct {
	AmountIn *big.Int
	Profit   *big.Int
}
