package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// USDC token parameters.
const (
	USDCDecimals = 6

	// DefaultChainID is zkSync Sepolia.
	DefaultChainID = 300

	DefaultUSDCGasLimit = 6_000_000
)

// erc20ABI declares the two ERC-20 methods the client calls.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf",
	 "outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer",
	 "outputs":[{"name":"success","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"}
]`

// ErrInvalidAddress is returned for strings that are not hex account
// addresses.
var ErrInvalidAddress = errors.New("invalid address")

// EthBackend is the part of *ethclient.Client a token transfer needs.
type EthBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// USDCConfig identifies the token contract and the paying account.
type USDCConfig struct {
	Contract   string
	PrivateKey string
	ChainID    int64
	GasLimit   uint64
}

// USDC transfers an ERC-20 USDC token from a single hot wallet.
type USDC struct {
	backend  EthBackend
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
}

// DialUSDC connects to an RPC endpoint and creates a client over it.
func DialUSDC(ctx context.Context, rpcURL string, cfg USDCConfig) (*USDC, error) {
	conn, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("usdc: dial %s: %w", rpcURL, err)
	}
	return NewUSDC(conn, cfg)
}

// NewUSDC creates a client over an existing backend.
func NewUSDC(backend EthBackend, cfg USDCConfig) (*USDC, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("usdc: contract %q: %w", cfg.Contract, ErrInvalidAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("usdc: private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("usdc: abi: %w", err)
	}
	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultUSDCGasLimit
	}
	return &USDC{
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(cfg.Contract),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		gasLimit: gasLimit,
	}, nil
}

// From returns the paying account.
func (u *USDC) From() common.Address {
	return u.from
}

// Transfer sends units (smallest token unit) to the address to and returns
// the transaction hash. The transaction is signed locally.
func (u *USDC) Transfer(ctx context.Context, to string, units *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("usdc: recipient %q: %w", to, ErrInvalidAddress)
	}
	data, err := u.abi.Pack("transfer", common.HexToAddress(to), units)
	if err != nil {
		return "", fmt.Errorf("usdc: pack transfer: %w", err)
	}

	nonce, err := u.backend.PendingNonceAt(ctx, u.from)
	if err != nil {
		return "", fmt.Errorf("usdc: nonce: %w", err)
	}
	gasPrice, err := u.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("usdc: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &u.contract,
		Value:    big.NewInt(0),
		Gas:      u.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(u.chainID), u.key)
	if err != nil {
		return "", fmt.Errorf("usdc: sign: %w", err)
	}
	if err := u.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("usdc: send: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// BalanceOf returns the token balance of owner in smallest units.
func (u *USDC) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("usdc: owner %q: %w", owner, ErrInvalidAddress)
	}
	data, err := u.abi.Pack("balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("usdc: pack balanceOf: %w", err)
	}
	out, err := u.backend.CallContract(ctx, ethereum.CallMsg{To: &u.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("usdc: call balanceOf: %w", err)
	}
	vals, err := u.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("usdc: unpack balanceOf: %w", err)
	}
	balance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("usdc: unexpected balanceOf type %T", vals[0])
	}
	return balance, nil
}

// ScaleUSDC converts a decimal token amount such as "0.01" to smallest
// units. Amounts finer than the token's precision are rejected.
func ScaleUSDC(amount string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("usdc: invalid amount %q", amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(USDCDecimals), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("usdc: amount %q exceeds %d decimals", amount, USDCDecimals)
	}
	return new(big.Int).Set(r.Num()), nil
}
