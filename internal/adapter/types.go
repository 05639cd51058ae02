package adapter

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallOptions are the call-context parameters that are not call data.
// Calls can only share one multicall when their options are identical.
type CallOptions struct {
	Block    *BlockSpecifier `json:"block,omitempty"`
	From     *common.Address `json:"from,omitempty"`
	Gas      *uint64         `json:"gas,omitempty"`
	GasPrice *big.Int        `json:"gasPrice,omitempty"`
	Value    *big.Int        `json:"value,omitempty"`
}

// ReadParams describes a contract function read. The adapter owns ABI
// encoding of Args and decoding of the return data.
type ReadParams struct {
	ABI          *abi.ABI       `json:"-"`
	Address      common.Address `json:"address"`
	FunctionName string         `json:"functionName"`
	Args         []any          `json:"args,omitempty"`
	CallOptions
}

// CallParams describes a raw eth_call
type CallParams struct {
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data,omitempty"`
	CallOptions
}

// MulticallCall is one sub-call of a multicall: exactly one of Read or Call is set
type MulticallCall struct {
	Read *ReadParams `json:"read,omitempty"`
	Call *CallParams `json:"call,omitempty"`
}

// MulticallParams aggregates calls that share the same CallOptions
type MulticallParams struct {
	Calls            []MulticallCall `json:"calls"`
	MulticallAddress *common.Address `json:"multicallAddress,omitempty"`
	AllowFailure     bool            `json:"allowFailure"`
	CallOptions
}

// MulticallResult is the outcome of one sub-call. On failure either Error is
// set, or ReturnData carries the raw revert data for the caller to decode.
type MulticallResult struct {
	Success    bool
	Value      any
	ReturnData []byte
	Error      error
}

// WriteParams describes a state-changing contract call
type WriteParams struct {
	ABI          *abi.ABI       `json:"-"`
	Address      common.Address `json:"address"`
	FunctionName string         `json:"functionName"`
	Args         []any          `json:"args,omitempty"`
	Nonce        *uint64        `json:"nonce,omitempty"`
	CallOptions
}

// BalanceParams identifies an account balance at a block
type BalanceParams struct {
	Address common.Address  `json:"address"`
	Block   *BlockSpecifier `json:"block,omitempty"`
}

// WaitParams configures WaitForTransaction
type WaitParams struct {
	Hash         common.Hash   `json:"hash"`
	Timeout      time.Duration `json:"-"`
	PollInterval time.Duration `json:"-"`
}

// EventFilter selects event logs emitted by one contract
type EventFilter struct {
	ABI       *abi.ABI        `json:"-"`
	Address   common.Address  `json:"address"`
	Event     string          `json:"event,omitempty"`
	Topics    [][]common.Hash `json:"topics,omitempty"`
	FromBlock *BlockSpecifier `json:"fromBlock,omitempty"`
	ToBlock   *BlockSpecifier `json:"toBlock,omitempty"`
}

// IsStable returns true when both ends of the range are fixed blocks
func (f EventFilter) IsStable() bool {
	return f.FromBlock.IsStable() && f.ToBlock.IsStable()
}

// Block is a block header with transaction hashes
type Block struct {
	Number       uint64         `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    uint64         `json:"timestamp"`
	GasLimit     uint64         `json:"gasLimit"`
	GasUsed      uint64         `json:"gasUsed"`
	BaseFee      *big.Int       `json:"baseFeePerGas,omitempty"`
	Miner        common.Address `json:"miner"`
	Transactions []common.Hash  `json:"transactions"`
}

// Transaction is a submitted transaction. BlockNumber is nil while pending.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	BlockHash        *common.Hash    `json:"blockHash,omitempty"`
	BlockNumber      *uint64         `json:"blockNumber,omitempty"`
	TransactionIndex *uint64         `json:"transactionIndex,omitempty"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to,omitempty"`
	Nonce            uint64          `json:"nonce"`
	Gas              uint64          `json:"gas"`
	GasPrice         *big.Int        `json:"gasPrice,omitempty"`
	Value            *big.Int        `json:"value"`
	Input            hexutil.Bytes   `json:"input"`
}

// IsMined returns true once the transaction is included in a block
func (t *Transaction) IsMined() bool {
	return t != nil && t.BlockNumber != nil
}

// Receipt is the result of a mined transaction
type Receipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     uint64          `json:"blockNumber"`
	Status          uint64          `json:"status"`
	GasUsed         uint64          `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress,omitempty"`
	Logs            []Log           `json:"logs"`
}

// Log is an emitted event log. Args holds decoded values when an ABI was supplied.
type Log struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     uint64         `json:"blockNumber"`
	BlockHash       common.Hash    `json:"blockHash"`
	TransactionHash common.Hash    `json:"transactionHash"`
	LogIndex        uint64         `json:"logIndex"`
	Removed         bool           `json:"removed"`
	EventName       string         `json:"eventName,omitempty"`
	Args            map[string]any `json:"args,omitempty"`
}
