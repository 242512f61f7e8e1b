package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"go.uber.org/zap"
)

var testVault = claimlink.Vault{
	ChainID:       10,
	Address:       common.HexToAddress("0xb75B6e4007795e84a0f9Db97EB19C6Fc13c84A5E"),
	Version:       "v4.3",
	Token:         common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
	TokenDecimals: 18,
}

// fakeChain is an in-memory Backend. Receipts become visible after
// pendingPolls lookups.
type fakeChain struct {
	mu           sync.Mutex
	receipts     map[common.Hash]*types.Receipt
	logs         []types.Log
	pendingPolls int
	polls        int
	filterErrs   int
	filterCalls  int
	head         uint64
	stored       map[uint64]claimlink.VaultDeposit
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		receipts: make(map[common.Hash]*types.Receipt),
		stored:   make(map[uint64]claimlink.VaultDeposit),
	}
}

func (c *fakeChain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.polls <= c.pendingPolls {
		return nil, ethereum.NotFound
	}
	r, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls++
	if c.filterErrs > 0 {
		c.filterErrs--
		return nil, errors.New("rpc unavailable")
	}

	var out []types.Log
	for _, l := range c.logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], l.Topics[0]) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

// CallContract answers the vault's deposits(uint256) getter; unknown indexes
// read as an empty record.
func (c *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := claimlink.VaultABI.Methods["deposits"]
	if call.To == nil || *call.To != testVault.Address || len(call.Data) < 4 || !bytes.Equal(call.Data[:4], method.ID) {
		return nil, errors.New("unexpected call")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.stored[args[0].(*big.Int).Uint64()]
	if !ok {
		d = claimlink.VaultDeposit{Amount: new(big.Int)}
	}
	return method.Outputs.Pack(d.KeyAddress, d.Amount)
}

func (c *fakeChain) lockDeposit(index uint64, key common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored[index] = claimlink.VaultDeposit{KeyAddress: key, Amount: amount}
}

func (c *fakeChain) confirmDeposit(t *testing.T, txHash common.Hash, block uint64, index uint64, amount *big.Int) {
	t.Helper()
	data, err := claimlink.VaultABI.Events["DepositEvent"].Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[txHash] = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: new(big.Int).SetUint64(block),
		TxHash:      txHash,
	}
	c.logs = append(c.logs, types.Log{
		Address: testVault.Address,
		Topics: []common.Hash{
			claimlink.DepositEventID,
			common.BigToHash(new(big.Int).SetUint64(index)),
			common.BigToHash(big.NewInt(1)),
			common.BytesToHash(common.HexToAddress("0x5e4de5").Bytes()),
		},
		Data:        data,
		TxHash:      txHash,
		BlockNumber: block,
		Index:       uint(len(c.logs)),
	})
	if block > c.head {
		c.head = block
	}
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}

func TestReceiptPoller_WaitsUntilMined(t *testing.T) {
	c := newFakeChain()
	c.pendingPolls = 2
	txHash := common.HexToHash("0x01")
	c.confirmDeposit(t, txHash, 100, 1, big.NewInt(1))

	p := NewReceiptPoller(c, time.Millisecond, time.Second, zap.NewNop())
	receipt, err := p.WaitForReceipt(context.Background(), txHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), receipt.BlockNumber.Uint64())
	assert.Equal(t, 3, c.polls)
}

func TestReceiptPoller_Timeout(t *testing.T) {
	c := newFakeChain()
	p := NewReceiptPoller(c, time.Millisecond, 20*time.Millisecond, zap.NewNop())

	_, err := p.WaitForReceipt(context.Background(), common.HexToHash("0x02"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, claimlink.ErrWaitTimeout), "got %v", err)
}

func TestReceiptPoller_NonPositiveInterval(t *testing.T) {
	c := newFakeChain()
	txHash := common.HexToHash("0x03")
	c.confirmDeposit(t, txHash, 100, 1, big.NewInt(1))

	for _, interval := range []time.Duration{0, -time.Second} {
		p := NewReceiptPoller(c, interval, time.Second, zap.NewNop())
		assert.Equal(t, defaultReceiptPollInterval, p.interval)
		receipt, err := p.WaitForReceipt(context.Background(), txHash)
		require.NoError(t, err)
		assert.Equal(t, txHash, receipt.TxHash)
	}
}

func TestReceiptPoller_Cancelled(t *testing.T) {
	c := newFakeChain()
	p := NewReceiptPoller(c, time.Millisecond, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.WaitForReceipt(ctx, common.HexToHash("0x02"))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.False(t, errors.Is(err, claimlink.ErrWaitTimeout))
}

func TestLogDepositFinder_MatchesTransaction(t *testing.T) {
	c := newFakeChain()
	other := common.HexToHash("0xaaaa")
	mine := common.HexToHash("0xbbbb")
	c.confirmDeposit(t, other, 500, 41, big.NewInt(1))
	c.confirmDeposit(t, mine, 500, 42, big.NewInt(2))

	f := NewLogDepositFinder(c, 1, 0, zap.NewNop())
	ev, err := f.FindDepositEvent(context.Background(), testVault.Address, c.receipts[mine])
	require.NoError(t, err)
	assert.Equal(t, uint64(42), ev.Index)
	assert.Equal(t, int64(2), ev.Amount.Int64())
}

func TestLogDepositFinder_NotFound(t *testing.T) {
	c := newFakeChain()
	receipt := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9), TxHash: common.HexToHash("0x09")}

	f := NewLogDepositFinder(c, 1, 0, zap.NewNop())
	_, err := f.FindDepositEvent(context.Background(), testVault.Address, receipt)
	assert.True(t, errors.Is(err, claimlink.ErrDepositEventNotFound), "got %v", err)
}

func TestLogDepositFinder_WrongVault(t *testing.T) {
	c := newFakeChain()
	txHash := common.HexToHash("0x0c")
	c.confirmDeposit(t, txHash, 10, 42, big.NewInt(1))

	f := NewLogDepositFinder(c, 1, 0, zap.NewNop())
	_, err := f.FindDepositEvent(context.Background(), common.HexToAddress("0x0bad"), c.receipts[txHash])
	assert.True(t, errors.Is(err, claimlink.ErrDepositEventNotFound))
}

func TestLogDepositFinder_RetriesQuery(t *testing.T) {
	c := newFakeChain()
	txHash := common.HexToHash("0x0d")
	c.confirmDeposit(t, txHash, 10, 5, big.NewInt(1))
	c.filterErrs = 2

	f := NewLogDepositFinder(c, 3, time.Millisecond, zap.NewNop())
	ev, err := f.FindDepositEvent(context.Background(), testVault.Address, c.receipts[txHash])
	require.NoError(t, err)
	assert.Equal(t, uint64(5), ev.Index)
	assert.Equal(t, 3, c.filterCalls)
}

func TestLogDepositFinder_QueryFailsAfterRetries(t *testing.T) {
	c := newFakeChain()
	c.filterErrs = 5
	receipt := &types.Receipt{BlockNumber: big.NewInt(1), TxHash: common.HexToHash("0x0e")}

	f := NewLogDepositFinder(c, 2, time.Millisecond, zap.NewNop())
	_, err := f.FindDepositEvent(context.Background(), testVault.Address, receipt)
	require.Error(t, err)
	assert.False(t, errors.Is(err, claimlink.ErrDepositEventNotFound))
}

// Issue for 5.00, confirm a deposit that was assigned index 42, resolve, decode.
func TestIssueResolveDecode(t *testing.T) {
	log := zap.NewNop()
	issuer := claimlink.NewIssuer(testVault, log)
	intent, err := issuer.Create("5.00")
	require.NoError(t, err)

	c := newFakeChain()
	c.pendingPolls = 1
	txHash := common.HexToHash("0xfeed")
	c.confirmDeposit(t, txHash, 1234, 42, intent.Amount)
	c.lockDeposit(42, intent.KeyAddress, intent.Amount)

	resolver := claimlink.NewResolver(testVault,
		NewReceiptPoller(c, time.Millisecond, time.Second, log),
		NewLogDepositFinder(c, 1, 0, log),
		NewVaultReader(c),
		claimlink.NewCodec("https://example.com"),
		log,
	)
	res, err := resolver.Resolve(context.Background(), txHash, intent.Secret)
	require.NoError(t, err)
	assert.Equal(t, 0, intent.Amount.Cmp(res.Record.Amount))

	link, err := claimlink.Decode(res.URL)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), link.Index)
	assert.Equal(t, uint64(10), link.ChainID)
	assert.Equal(t, intent.Secret, link.Secret)

	auth, err := claimlink.NewAuthorizer(testVault, nil, log).
		Authorize(context.Background(), link, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	signer, err := claimlink.RecoverSigner(auth.MessageHash, auth.Signature)
	require.NoError(t, err)
	assert.Equal(t, intent.KeyAddress, signer)
}

func TestIssueResolve_FailedDeposit(t *testing.T) {
	c := newFakeChain()
	txHash := common.HexToHash("0xbad0")
	c.receipts[txHash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(7), TxHash: txHash}

	log := zap.NewNop()
	resolver := claimlink.NewResolver(testVault,
		NewReceiptPoller(c, time.Millisecond, time.Second, log),
		NewLogDepositFinder(c, 1, 0, log),
		NewVaultReader(c),
		claimlink.NewCodec("https://example.com"),
		log,
	)
	_, err := resolver.Resolve(context.Background(), txHash, "abc123")
	assert.True(t, errors.Is(err, claimlink.ErrDepositFailed))
	assert.Equal(t, 0, c.filterCalls)
}

func TestVaultReader_ReadDeposit(t *testing.T) {
	c := newFakeChain()
	key := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	c.lockDeposit(3, key, big.NewInt(99))

	r := NewVaultReader(c)
	dep, err := r.ReadDeposit(context.Background(), testVault.Address, 3)
	require.NoError(t, err)
	assert.Equal(t, key, dep.KeyAddress)
	assert.Equal(t, int64(99), dep.Amount.Int64())

	_, err = r.ReadDeposit(context.Background(), common.HexToAddress("0x0bad"), 3)
	assert.Error(t, err)
}

// A confirmed deposit locked to another sender's key must not yield a link.
func TestIssueResolve_OtherSendersDeposit(t *testing.T) {
	log := zap.NewNop()
	issuer := claimlink.NewIssuer(testVault, log)
	victim, err := issuer.Create("5")
	require.NoError(t, err)
	other, err := issuer.Create("0.01")
	require.NoError(t, err)

	c := newFakeChain()
	txHash := common.HexToHash("0xf00d")
	c.confirmDeposit(t, txHash, 77, 8, victim.Amount)
	c.lockDeposit(8, victim.KeyAddress, victim.Amount)

	resolver := claimlink.NewResolver(testVault,
		NewReceiptPoller(c, time.Millisecond, time.Second, log),
		NewLogDepositFinder(c, 1, 0, log),
		NewVaultReader(c),
		claimlink.NewCodec("https://example.com"),
		log,
	)
	res, err := resolver.Resolve(context.Background(), txHash, other.Secret)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, claimlink.ErrKeyMismatch), "got %v", err)

	res, err = resolver.Resolve(context.Background(), txHash, victim.Secret)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), res.Link.Index)
}
