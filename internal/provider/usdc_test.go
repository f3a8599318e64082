package provider

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0xAe045DE5638162fa134807Cb558E15A3F5A7F853"

type fakeBackend struct {
	sent    []*types.Transaction
	balance *big.Int
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 5, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(25_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return common.LeftPadBytes(f.balance.Bytes(), 32), nil
}

func newTestUSDC(t *testing.T, backend EthBackend) (*USDC, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	u, err := NewUSDC(backend, USDCConfig{
		Contract:   testContract,
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
	})
	require.NoError(t, err)
	return u, crypto.PubkeyToAddress(key.PublicKey)
}

func TestUSDC_Transfer(t *testing.T) {
	backend := &fakeBackend{}
	u, from := newTestUSDC(t, backend)
	assert.Equal(t, from, u.From())

	recipient := "0xA655690467DA66600aE8E033016d471c134B0C69"
	hash, err := u.Transfer(context.Background(), recipient, big.NewInt(10_000))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())
	assert.Equal(t, uint64(5), tx.Nonce())
	assert.Equal(t, uint64(DefaultUSDCGasLimit), tx.Gas())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(DefaultChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)

	method := u.abi.Methods["transfer"]
	assert.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(recipient), args[0])
	assert.Equal(t, 0, big.NewInt(10_000).Cmp(args[1].(*big.Int)))
}

func TestUSDC_RejectsInvalidRecipient(t *testing.T) {
	backend := &fakeBackend{}
	u, _ := newTestUSDC(t, backend)

	_, err := u.Transfer(context.Background(), "0xnot-an-address", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Empty(t, backend.sent)
}

func TestUSDC_BalanceOf(t *testing.T) {
	u, _ := newTestUSDC(t, &fakeBackend{balance: big.NewInt(123_456_789)})

	got, err := u.BalanceOf(context.Background(), "0xA655690467DA66600aE8E033016d471c134B0C69")
	require.NoError(t, err)
	assert.Equal(t, "123456789", got.String())
}

func TestNewUSDC_Validation(t *testing.T) {
	_, err := NewUSDC(&fakeBackend{}, USDCConfig{Contract: "nope", PrivateKey: "00"})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewUSDC(&fakeBackend{}, USDCConfig{Contract: testContract, PrivateKey: "zz"})
	assert.ErrorContains(t, err, "private key")
}

func TestScaleUSDC(t *testing.T) {
	got, err := ScaleUSDC("0.01")
	require.NoError(t, err)
	assert.Equal(t, "10000", got.String())

	got, err = ScaleUSDC("12")
	require.NoError(t, err)
	assert.Equal(t, "12000000", got.String())

	_, err = ScaleUSDC("0.0000001")
	assert.ErrorContains(t, err, "exceeds 6 decimals")

	_, err = ScaleUSDC("-1")
	assert.Error(t, err)

	_, err = ScaleUSDC("ten")
	assert.Error(t, err)
}
