package multicall

import "github.com/ethereum/go-ethereum/common"

// Multicall3 is the deterministic deployment address of Multicall3
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// zkSync Era deploys Multicall3 at its own address
var zkSyncMulticall3 = common.HexToAddress("0xF9cda624FBC7e059355ce98a31693d299FACd963")

// KnownAddresses maps chain ids to their aggregator contract
var KnownAddresses = map[uint64]common.Address{
	1:        Multicall3,       // ethereum
	10:       Multicall3,       // optimism
	56:       Multicall3,       // bsc
	100:      Multicall3,       // gnosis
	137:      Multicall3,       // polygon
	250:      Multicall3,       // fantom
	324:      zkSyncMulticall3, // zksync era
	1101:     Multicall3,       // polygon zkevm
	5000:     Multicall3,       // mantle
	8453:     Multicall3,       // base
	17000:    Multicall3,       // holesky
	42161:    Multicall3,       // arbitrum one
	42220:    Multicall3,       // celo
	43114:    Multicall3,       // avalanche
	59144:    Multicall3,       // linea
	81457:    Multicall3,       // blast
	534352:   Multicall3,       // scroll
	11155111: Multicall3,       // sepolia
}

// LookupAddress returns the known aggregator address for a chain
func LookupAddress(chainID uint64) (common.Address, bool) {
	addr, ok := KnownAddresses[chainID]
	return addr, ok
}
