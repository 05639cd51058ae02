package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rpcdrift/internal/adapter"
)

const etherDecimals = 18

func newChainIDCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chain-id",
		Short: "Print the chain id",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			id, err := a.client.GetChainID(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]uint64{"chainId": id})
		}),
	}
}

func newBlockCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "block [number|hash|tag]",
		Short: "Print a block header",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var spec string
			if len(args) > 0 {
				spec = args[0]
			}
			block, err := parseBlock(spec)
			if err != nil {
				return err
			}

			b, err := a.client.GetBlock(ctx, block)
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("block %s not found", block)
			}
			return printJSON(cmd.OutOrStdout(), b)
		}),
	}
}

type balanceOutput struct {
	Address common.Address `json:"address"`
	Block   string         `json:"block"`
	Wei     string         `json:"wei"`
	Ether   string         `json:"ether"`
}

func newBalanceCmd(flags *rootFlags) *cobra.Command {
	var blockFlag string
	cmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			address, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			block, err := parseBlock(blockFlag)
			if err != nil {
				return err
			}

			wei, err := a.client.GetBalance(ctx, adapter.BalanceParams{Address: address, Block: block})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), balanceOutput{
				Address: address,
				Block:   block.String(),
				Wei:     wei.String(),
				Ether:   formatUnits(wei, etherDecimals),
			})
		}),
	}
	cmd.Flags().StringVar(&blockFlag, "block", "", "block number, hash or tag")
	return cmd
}

func newCallCmd(flags *rootFlags) *cobra.Command {
	var blockFlag string
	cmd := &cobra.Command{
		Use:   "call <to> <data>",
		Short: "Run a raw eth_call and print the return data",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			to, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			data, err := hexutil.Decode(args[1])
			if err != nil {
				return fmt.Errorf("invalid call data: %w", err)
			}
			block, err := parseBlock(blockFlag)
			if err != nil {
				return err
			}

			ret, err := a.client.Call(ctx, adapter.CallParams{
				To:          &to,
				Data:        data,
				CallOptions: adapter.CallOptions{Block: block},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]hexutil.Bytes{"result": ret})
		}),
	}
	cmd.Flags().StringVar(&blockFlag, "block", "", "block number, hash or tag")
	return cmd
}

func newReadCmd(flags *rootFlags) *cobra.Command {
	var blockFlag, abiPath string
	cmd := &cobra.Command{
		Use:   "read <address> <function> [args...]",
		Short: "Call a view function and print the decoded result",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			address, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			contract, err := loadABI(abiPath)
			if err != nil {
				return err
			}
			method, ok := contract.Methods[args[1]]
			if !ok {
				return fmt.Errorf("function %s not found in ABI", args[1])
			}
			callArgs, err := parseArgs(method.Inputs, args[2:])
			if err != nil {
				return fmt.Errorf("%s: %w", method.Sig, err)
			}
			block, err := parseBlock(blockFlag)
			if err != nil {
				return err
			}

			value, err := a.client.Read(ctx, adapter.ReadParams{
				ABI:          contract,
				Address:      address,
				FunctionName: method.Name,
				Args:         callArgs,
				CallOptions:  adapter.CallOptions{Block: block},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"result": value})
		}),
	}
	cmd.Flags().StringVar(&blockFlag, "block", "", "block number, hash or tag")
	cmd.Flags().StringVar(&abiPath, "abi", "", "path to a contract ABI JSON file (defaults to ERC-20)")
	return cmd
}

type tokenOutput struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply string         `json:"totalSupply"`
}

// newTokenCmd reads ERC-20 metadata with concurrent reads that the client
// coalesces into one multicall
func newTokenCmd(flags *rootFlags) *cobra.Command {
	var blockFlag string
	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Print ERC-20 token metadata",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			address, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			block, err := parseBlock(blockFlag)
			if err != nil {
				return err
			}

			functions := []string{"name", "symbol", "decimals", "totalSupply"}
			results := make([]any, len(functions))
			g, gctx := errgroup.WithContext(ctx)
			for i, fn := range functions {
				g.Go(func() error {
					v, err := a.client.Read(gctx, adapter.ReadParams{
						ABI:          &erc20ABI,
						Address:      address,
						FunctionName: fn,
						CallOptions:  adapter.CallOptions{Block: block},
					})
					if err != nil {
						return fmt.Errorf("%s: %w", fn, err)
					}
					results[i] = v
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := tokenOutput{Address: address}
			var ok bool
			if out.Name, ok = results[0].(string); !ok {
				return errors.New("unexpected name type")
			}
			if out.Symbol, ok = results[1].(string); !ok {
				return errors.New("unexpected symbol type")
			}
			if out.Decimals, ok = results[2].(uint8); !ok {
				return errors.New("unexpected decimals type")
			}
			supply, ok := results[3].(*big.Int)
			if !ok {
				return errors.New("unexpected totalSupply type")
			}
			out.TotalSupply = formatUnits(supply, int32(out.Decimals))
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	cmd.Flags().StringVar(&blockFlag, "block", "", "block number, hash or tag")
	return cmd
}

type watchOutput struct {
	Number    uint64      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp uint64      `json:"timestamp"`
	Txs       int         `json:"txs"`
	Balance   string      `json:"balance,omitempty"`
}

// newWatchCmd polls the latest block until interrupted. Balances are read at
// the block number, so repeated lookups for a block hit the cache.
func newWatchCmd(flags *rootFlags) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [address]",
		Short: "Print new blocks, and optionally an account balance, as they arrive",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(flags, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			var account *common.Address
			if len(args) > 0 {
				addr, err := parseAddress(args[0])
				if err != nil {
					return err
				}
				account = &addr
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			var last uint64
			seen := false
			for {
				latest, err := a.client.GetBlock(ctx, nil)
				switch {
				case ctx.Err() != nil:
					return nil
				case err != nil:
					a.logger.Warn().Err(err).Msg("failed to get latest block")
				case latest != nil && (!seen || latest.Number > last):
					last, seen = latest.Number, true
					out := watchOutput{
						Number:    latest.Number,
						Hash:      latest.Hash,
						Timestamp: latest.Timestamp,
						Txs:       len(latest.Transactions),
					}
					if account != nil {
						wei, err := a.client.GetBalance(ctx, adapter.BalanceParams{
							Address: *account,
							Block:   adapter.AtNumber(latest.Number),
						})
						if err != nil {
							a.logger.Warn().Err(err).Uint64("block", latest.Number).Msg("failed to get balance")
						} else {
							out.Balance = formatUnits(wei, etherDecimals)
						}
					}
					if err := printJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 4*time.Second, "polling interval")
	return cmd
}

// formatUnits renders an integer amount with the given number of decimals
func formatUnits(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}
