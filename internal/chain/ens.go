package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultENSRegistry is the ENS registry address on Ethereum mainnet.
var DefaultENSRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

const ensABIJSON = `[
	{"type":"function","name":"resolver","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"addr","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

var ensABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ensABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse ens abi: %v", err))
	}
	return parsed
}()

var errNoResolver = errors.New("name has no resolver")

type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ENSResolver resolves ENS names through the registry and the name's resolver.
type ENSResolver struct {
	caller   ContractCaller
	registry common.Address
}

func NewENSResolver(caller ContractCaller, registry common.Address) *ENSResolver {
	if registry == (common.Address{}) {
		registry = DefaultENSRegistry
	}
	return &ENSResolver{caller: caller, registry: registry}
}

func (r *ENSResolver) ResolveName(ctx context.Context, name string) (common.Address, error) {
	node := NameHash(name)

	resolver, err := r.callAddress(ctx, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("lookup resolver: %w", err)
	}
	if resolver == (common.Address{}) {
		return common.Address{}, errNoResolver
	}

	addr, err := r.callAddress(ctx, resolver, "addr", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("lookup addr: %w", err)
	}
	return addr, nil
}

func (r *ENSResolver) callAddress(ctx context.Context, to common.Address, method string, node common.Hash) (common.Address, error) {
	data, err := ensABI.Pack(method, node)
	if err != nil {
		return common.Address{}, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	values, err := ensABI.Unpack(method, out)
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// NameHash implements the ENS namehash algorithm (EIP-137).
func NameHash(name string) common.Hash {
	var node common.Hash
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label)
	}
	return node
}
