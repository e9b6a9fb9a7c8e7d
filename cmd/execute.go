package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flasharb/chain"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/dex"
	"github.com/michaelpento.lv/flasharb/dex/sushiswap"
	"github.com/michaelpento.lv/flasharb/dex/uniswap"
	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/flashloan"
	"github.com/michaelpento.lv/flasharb/flashloan/aave"
	"github.com/michaelpento.lv/flasharb/gas"
	"github.com/michaelpento.lv/flasharb/guard"
	"github.com/michaelpento.lv/flasharb/oracle"
	"github.com/michaelpento.lv/flasharb/token"
	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils"
)

var (
	flagTokenBorrow string
	flagTokenTarget string
	flagAmount      string
	flagFeeTier     uint32
	flagPathFirst   bool
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run one arbitrage attempt for the given candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		path := cfgFile
		if path == "" {
			// The flag wins over the environment.
			path = config.GetEnvWithDefault(config.EnvConfigFile, "")
		}
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.Logger = log

		// Environment overrides for deployment-specific settings.
		cfg.RPCEndpoint = config.GetEnvWithDefault(config.EnvRPCEndpoint, cfg.RPCEndpoint)
		cfg.Owner = config.GetEnvWithDefault(config.EnvOwner, cfg.Owner)

		amount, ok := new(big.Int).SetString(flagAmount, 10)
		if !ok {
			return fmt.Errorf("invalid amount %q", flagAmount)
		}

		direction := types.FeeTieredFirst
		if flagPathFirst {
			direction = types.PathBasedFirst
		}

		eng, err := buildEngine(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}

		result, err := eng.ExecuteArbitrage(cmd.Context(), common.HexToAddress(cfg.Owner), types.Request{
			TokenBorrow: common.HexToAddress(flagTokenBorrow),
			TokenTarget: common.HexToAddress(flagTokenTarget),
			Amount:      amount,
			PoolFeeHint: flagFeeTier,
			Direction:   direction,
		})
		if err != nil {
			return err
		}

		log.Info("attempt settled",
			zap.String("gross_profit", result.GrossProfit.String()),
			zap.String("net_profit", result.NetProfit.String()),
			zap.String("cost", result.CostUsed.String()))
		return nil
	},
}

func buildEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine.Engine, error) {
	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	account := common.HexToAddress(cfg.Account)
	sender, err := newSender(client, account, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)
	}

	backend, err := chain.NewRPCBackend(client, sender, account, limiter, log)
	if err != nil {
		return nil, err
	}

	fees := dex.NewFeePreferences()
	for _, p := range cfg.FeePreferences {
		fees.Set(common.HexToAddress(p.TokenA), common.HexToAddress(p.TokenB), p.FeeTier)
	}

	feeTiered, err := uniswap.NewUniswapV3(backend, common.HexToAddress(cfg.Quoter), common.HexToAddress(cfg.SwapRouter), account, fees, log)
	if err != nil {
		return nil, err
	}
	pathBased, err := sushiswap.NewSushiswapV2(backend, common.HexToAddress(cfg.PathRouter), account, log)
	if err != nil {
		return nil, err
	}
	// Self-funded execution lends out of the engine account's own float but
	// mirrors the on-chain facility's fee schedule.
	pool, err := aave.NewLender(backend, common.HexToAddress(cfg.LenderPool), account, log)
	if err != nil {
		return nil, err
	}
	premium, err := pool.PremiumBps(ctx)
	if err != nil {
		log.Warn("could not read lending premium, assuming zero fee", zap.Error(err))
		premium = big.NewInt(0)
	}
	engineAccount := token.NewBackendAccount(backend, account)
	lender := flashloan.NewInventoryLender(engineAccount, premium, log)

	feeds, err := oracle.New(backend, cfg.Feeds(), log)
	if err != nil {
		return nil, err
	}

	policy, err := cfg.GuardPolicy()
	if err != nil {
		return nil, err
	}
	sink := &types.LogSink{Logger: log}
	guards := guard.NewController(policy, sink, log)

	eng, err := engine.New(engine.Deps{
		Owner:     common.HexToAddress(cfg.Owner),
		Guards:    guards,
		Lender:    lender,
		FeeTiered: feeTiered,
		PathBased: pathBased,
		Account:   engineAccount,
		Costs:     gas.NewEstimator(client, log),
		Converter: &oracle.FeedConverter{Oracle: feeds, WrappedNative: common.HexToAddress(cfg.WrappedNative)},
		Fees:      fees,
		Sink:      sink,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	lender.SetHandler(eng)
	return eng, nil
}

// newSender builds the state-changing call path: preflight the call to
// capture its return data, then sign, broadcast and wait for inclusion. The
// signing key comes from the environment; everything above this function only
// sees the chain.SendFunc boundary.
func newSender(client *ethclient.Client, from common.Address, chainID uint64) (chain.SendFunc, error) {
	keyHex, err := config.GetRequiredEnv(config.EnvPrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	signer := ethtypes.LatestSignerForChainID(new(big.Int).SetUint64(chainID))

	return func(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
		out, err := client.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("preflight call failed: %w", err)
		}

		nonce, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		gasPrice, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
		gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}

		tx, err := ethtypes.SignNewTx(key, signer, &ethtypes.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
		if err := client.SendTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("failed to send transaction: %w", err)
		}

		receipt, err := bind.WaitMined(ctx, client, tx)
		if err != nil {
			return nil, fmt.Errorf("failed waiting for inclusion: %w", err)
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return nil, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
		}
		return out, nil
	}, nil
}

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().StringVar(&flagTokenBorrow, "token-borrow", "", "token to borrow (hex address)")
	executeCmd.Flags().StringVar(&flagTokenTarget, "token-target", "", "intermediate token (hex address)")
	executeCmd.Flags().StringVar(&flagAmount, "amount", "", "principal to borrow, in token wei")
	executeCmd.Flags().Uint32Var(&flagFeeTier, "fee-tier", 0, "preferred fee tier on the fee-tiered venue (0 = configured default)")
	executeCmd.Flags().BoolVar(&flagPathFirst, "path-first", false, "hit the path-based venue on leg 1")
	_ = executeCmd.MarkFlagRequired("token-borrow")
	_ = executeCmd.MarkFlagRequired("token-target")
	_ = executeCmd.MarkFlagRequired("amount")
}
