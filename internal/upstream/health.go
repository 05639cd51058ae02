package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"rpcdrift/internal/jsonrpc"
)

const pollTimeout = 10 * time.Second

// HealthMonitor polls eth_blockNumber on every upstream. An upstream is
// healthy while it answers and, when a lag threshold is set, stays within
// that many blocks of the highest block seen.
type HealthMonitor struct {
	upstreams         []*Upstream
	checkInterval     time.Duration
	blockLagThreshold uint64
	logger            zerolog.Logger

	mu       sync.Mutex
	maxBlock uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor creates a new HealthMonitor
func NewHealthMonitor(upstreams []*Upstream, checkInterval time.Duration, blockLagThreshold uint64, logger zerolog.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &HealthMonitor{
		upstreams:         upstreams,
		checkInterval:     checkInterval,
		blockLagThreshold: blockLagThreshold,
		logger:            logger.With().Str("component", "health").Logger(),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins polling every upstream in the background
func (hm *HealthMonitor) Start() {
	for _, u := range hm.upstreams {
		hm.wg.Add(1)
		go hm.monitor(u)
	}
}

// Stop stops health monitoring
func (hm *HealthMonitor) Stop() {
	hm.cancel()
	hm.wg.Wait()
}

// MaxBlock returns the highest block number seen across upstreams
func (hm *HealthMonitor) MaxBlock() uint64 {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.maxBlock
}

func (hm *HealthMonitor) monitor(u *Upstream) {
	defer hm.wg.Done()

	ticker := time.NewTicker(hm.checkInterval)
	defer ticker.Stop()

	hm.Check(hm.ctx, u)
	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
			hm.Check(hm.ctx, u)
		}
	}
}

// Check polls one upstream and refreshes the health of all upstreams
func (hm *HealthMonitor) Check(ctx context.Context, u *Upstream) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	block, err := hm.blockNumber(ctx, u)
	if err != nil {
		if hm.ctx.Err() == nil {
			hm.logger.Warn().Err(err).Str("upstream", u.Name()).Msg("failed to get block number")
		}
		u.status.reachable.Store(false)
		hm.refresh()
		return
	}

	u.status.reachable.Store(true)
	u.status.UpdateBlock(block)

	hm.mu.Lock()
	hm.maxBlock = max(hm.maxBlock, block)
	hm.mu.Unlock()

	hm.logger.Debug().Str("upstream", u.Name()).Uint64("block", block).Msg("polled block number")
	hm.refresh()
}

func (hm *HealthMonitor) blockNumber(ctx context.Context, u *Upstream) (uint64, error) {
	req, err := jsonrpc.NewRequest("eth_blockNumber", nil, jsonrpc.NewIDInt(1))
	if err != nil {
		return 0, err
	}
	resp, err := u.Execute(ctx, req)
	if err != nil {
		return 0, err
	}
	var block hexutil.Uint64
	if err := resp.Decode(&block); err != nil {
		return 0, err
	}
	return uint64(block), nil
}

// refresh recomputes health for every upstream and logs transitions
func (hm *HealthMonitor) refresh() {
	maxBlock := hm.MaxBlock()
	for _, u := range hm.upstreams {
		healthy := u.status.reachable.Load()
		if healthy && hm.blockLagThreshold > 0 && maxBlock > u.CurrentBlock()+hm.blockLagThreshold {
			healthy = false
		}
		if u.IsHealthy() != healthy {
			hm.logger.Info().
				Str("upstream", u.Name()).
				Bool("healthy", healthy).
				Uint64("block", u.CurrentBlock()).
				Uint64("maxBlock", maxBlock).
				Msg("upstream health changed")
		}
		u.SetHealthy(healthy)
	}
}
