package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tvlScope/internal/model"
)

// Caller performs read-only contract calls. *chain.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// StrictDecimals disables the decimals fallback: tokens whose decimals call fails are
// marked unavailable instead of defaulted.
const StrictDecimals = -1

func call(ctx context.Context, caller Caller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

// FetchTokensInfo reads symbol and decimals for every address. Per-token failures are
// logged and replaced by sentinels, so only context cancellation returns an error.
func (s *Source) FetchTokensInfo(ctx context.Context, tokens []common.Address) (map[common.Address]model.Token, error) {
	out := make(map[common.Address]model.Token, len(tokens))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, addr := range tokens {
		addr := addr
		g.Go(func() error {
			token := s.fetchToken(gctx, addr)
			if err := gctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			out[addr] = token
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch tokens info: %w", err)
	}

	s.logger.Info("tokens info fetched", zap.Int("tokens", len(out)))
	return out, nil
}

func (s *Source) fetchToken(ctx context.Context, addr common.Address) model.Token {
	token := model.Token{Address: addr}

	symbol, err := s.fetchSymbol(ctx, addr)
	if err != nil {
		s.logger.Warn("symbol unavailable", zap.String("token", addr.Hex()), zap.Error(err))
		token.Symbol = model.UnavailableSymbol()
	} else {
		token.Symbol = model.FetchedSymbol(symbol)
	}

	decimals, err := s.fetchDecimals(ctx, addr)
	switch {
	case err == nil:
		token.Decimals = model.FetchedDecimals(decimals)
	case s.cfg.DecimalsFallback >= 0:
		s.logger.Warn("decimals unavailable, using fallback",
			zap.String("token", addr.Hex()),
			zap.Int("fallback", s.cfg.DecimalsFallback),
			zap.Error(err),
		)
		token.Decimals = model.Decimals{Value: uint8(s.cfg.DecimalsFallback), Status: model.StatusDefaulted}
	default:
		s.logger.Warn("decimals unavailable", zap.String("token", addr.Hex()), zap.Error(err))
		token.Decimals = model.Decimals{Status: model.StatusUnavailable}
	}

	return token
}

func (s *Source) fetchSymbol(ctx context.Context, addr common.Address) (string, error) {
	stringABI, err := ERC20ABI()
	if err != nil {
		return "", fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, s.caller, addr, stringABI, "symbol", s.cfg.BlockNumber)
	if err == nil {
		if symbol, ok := values[0].(string); ok {
			return cleanSymbol(symbol), nil
		}
	}

	bytes32ABI, perr := ERC20Bytes32ABI()
	if perr != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", perr)
	}
	values, err = call(ctx, s.caller, addr, bytes32ABI, "symbol", s.cfg.BlockNumber)
	if err != nil {
		return "", err
	}
	symbol, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("unexpected symbol type %T", values[0])
	}
	return cleanSymbol(symbol), nil
}

func (s *Source) fetchDecimals(ctx context.Context, addr common.Address) (uint8, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return 0, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, s.caller, addr, parsed, "decimals", s.cfg.BlockNumber)
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

func cleanSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToValidUTF8(symbol, ""))
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("decimals out of range: %s", v)
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
