package rpcadapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rpcdrift/internal/adapter"
)

// callArgs is the transaction object of eth_call and eth_sendTransaction
type callArgs struct {
	From     *common.Address `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
}

func newCallArgs(to *common.Address, data []byte, opts adapter.CallOptions) callArgs {
	return callArgs{
		From:     opts.From,
		To:       to,
		Data:     data,
		Gas:      (*hexutil.Uint64)(opts.Gas),
		GasPrice: (*hexutil.Big)(opts.GasPrice),
		Value:    (*hexutil.Big)(opts.Value),
	}
}

// blockArg formats a specifier for methods that accept EIP-1898 block
// parameters (eth_call, eth_getBalance)
func blockArg(b *adapter.BlockSpecifier) any {
	b = b.Normalize()
	if b != nil && b.Hash != nil {
		return map[string]any{"blockHash": *b.Hash}
	}
	return blockNumberArg(b)
}

// blockNumberArg formats a specifier as a block number or tag
func blockNumberArg(b *adapter.BlockSpecifier) string {
	b = b.Normalize()
	switch {
	case b == nil:
		return adapter.BlockLatest
	case b.Number != nil:
		return hexutil.EncodeUint64(*b.Number)
	case b.Tag != "":
		return b.Tag
	default:
		return adapter.BlockLatest
	}
}

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	GasLimit     hexutil.Uint64 `json:"gasLimit"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	BaseFee      *hexutil.Big   `json:"baseFeePerGas"`
	Miner        common.Address `json:"miner"`
	Transactions []common.Hash  `json:"transactions"`
}

func (b *rpcBlock) toBlock() *adapter.Block {
	return &adapter.Block{
		Number:       uint64(b.Number),
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    uint64(b.Timestamp),
		GasLimit:     uint64(b.GasLimit),
		GasUsed:      uint64(b.GasUsed),
		BaseFee:      (*big.Int)(b.BaseFee),
		Miner:        b.Miner,
		Transactions: b.Transactions,
	}
}

type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Value            *hexutil.Big    `json:"value"`
	Input            hexutil.Bytes   `json:"input"`
}

func (t *rpcTransaction) toTransaction() *adapter.Transaction {
	return &adapter.Transaction{
		Hash:             t.Hash,
		BlockHash:        t.BlockHash,
		BlockNumber:      (*uint64)(t.BlockNumber),
		TransactionIndex: (*uint64)(t.TransactionIndex),
		From:             t.From,
		To:               t.To,
		Nonce:            uint64(t.Nonce),
		Gas:              uint64(t.Gas),
		GasPrice:         (*big.Int)(t.GasPrice),
		Value:            (*big.Int)(t.Value),
		Input:            t.Input,
	}
}

type rpcLog struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	BlockHash       common.Hash    `json:"blockHash"`
	TransactionHash common.Hash    `json:"transactionHash"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
	Removed         bool           `json:"removed"`
}

func (l *rpcLog) toLog() adapter.Log {
	return adapter.Log{
		Address:         l.Address,
		Topics:          l.Topics,
		Data:            l.Data,
		BlockNumber:     uint64(l.BlockNumber),
		BlockHash:       l.BlockHash,
		TransactionHash: l.TransactionHash,
		LogIndex:        uint64(l.LogIndex),
		Removed:         l.Removed,
	}
}

type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	Status          hexutil.Uint64  `json:"status"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	ContractAddress *common.Address `json:"contractAddress"`
	Logs            []rpcLog        `json:"logs"`
}

func (r *rpcReceipt) toReceipt() *adapter.Receipt {
	logs := make([]adapter.Log, len(r.Logs))
	for i := range r.Logs {
		logs[i] = r.Logs[i].toLog()
	}
	return &adapter.Receipt{
		TransactionHash: r.TransactionHash,
		BlockHash:       r.BlockHash,
		BlockNumber:     uint64(r.BlockNumber),
		Status:          uint64(r.Status),
		GasUsed:         uint64(r.GasUsed),
		ContractAddress: r.ContractAddress,
		Logs:            logs,
	}
}
