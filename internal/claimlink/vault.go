package claimlink

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractTypeERC20 is the vault's discriminator for fungible token deposits.
const ContractTypeERC20 uint8 = 1

// vaultABIJSON is the subset of the Peanut v4 vault ABI this service touches.
const vaultABIJSON = `[
	{"type":"function","name":"makeDeposit","stateMutability":"payable",
	 "inputs":[
		{"name":"_tokenAddress","type":"address"},
		{"name":"_contractType","type":"uint8"},
		{"name":"_amount","type":"uint256"},
		{"name":"_tokenId","type":"uint256"},
		{"name":"_pubKey20","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"withdrawDeposit","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"_index","type":"uint256"},
		{"name":"_recipientAddress","type":"address"},
		{"name":"_signature","type":"bytes"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"deposits","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"pubKey20","type":"address"},
		{"name":"amount","type":"uint256"}]},
	{"type":"event","name":"DepositEvent","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"_index","type":"uint256"},
		{"indexed":true,"name":"_contractType","type":"uint8"},
		{"indexed":false,"name":"_amount","type":"uint256"},
		{"indexed":true,"name":"_senderAddress","type":"address"}]},
	{"type":"event","name":"WithdrawEvent","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"_index","type":"uint256"},
		{"indexed":true,"name":"_contractType","type":"uint8"},
		{"indexed":false,"name":"_amount","type":"uint256"},
		{"indexed":true,"name":"_recipientAddress","type":"address"}]}
]`

var (
	VaultABI abi.ABI

	DepositEventID  common.Hash
	WithdrawEventID common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic(fmt.Sprintf("claimlink: parse vault abi: %v", err))
	}
	VaultABI = parsed
	DepositEventID = parsed.Events["DepositEvent"].ID
	WithdrawEventID = parsed.Events["WithdrawEvent"].ID
}

// PackMakeDeposit builds makeDeposit calldata for a fungible-token deposit
// whose withdrawals must be signed by keyAddress.
func PackMakeDeposit(token common.Address, amount *big.Int, keyAddress common.Address) ([]byte, error) {
	return VaultABI.Pack("makeDeposit", token, ContractTypeERC20, amount, big.NewInt(0), keyAddress)
}

// MakeDepositArgs are the decoded arguments of a makeDeposit call.
type MakeDepositArgs struct {
	Token        common.Address
	ContractType uint8
	Amount       *big.Int
	TokenID      *big.Int
	KeyAddress   common.Address
}

func UnpackMakeDeposit(calldata []byte) (*MakeDepositArgs, error) {
	args, err := unpackCall("makeDeposit", calldata)
	if err != nil {
		return nil, err
	}
	return &MakeDepositArgs{
		Token:        args[0].(common.Address),
		ContractType: args[1].(uint8),
		Amount:       args[2].(*big.Int),
		TokenID:      args[3].(*big.Int),
		KeyAddress:   args[4].(common.Address),
	}, nil
}

func PackWithdrawDeposit(index uint64, recipient common.Address, signature []byte) ([]byte, error) {
	return VaultABI.Pack("withdrawDeposit", new(big.Int).SetUint64(index), recipient, signature)
}

// WithdrawDepositArgs are the decoded arguments of a withdrawDeposit call.
type WithdrawDepositArgs struct {
	Index     *big.Int
	Recipient common.Address
	Signature []byte
}

func UnpackWithdrawDeposit(calldata []byte) (*WithdrawDepositArgs, error) {
	args, err := unpackCall("withdrawDeposit", calldata)
	if err != nil {
		return nil, err
	}
	return &WithdrawDepositArgs{
		Index:     args[0].(*big.Int),
		Recipient: args[1].(common.Address),
		Signature: args[2].([]byte),
	}, nil
}

// PackDepositQuery builds calldata for reading the vault's record of a deposit.
func PackDepositQuery(index uint64) ([]byte, error) {
	return VaultABI.Pack("deposits", new(big.Int).SetUint64(index))
}

// UnpackDepositQuery decodes the leading fields of the vault's deposit
// record. Later fields of the record are ignored.
func UnpackDepositQuery(output []byte) (*VaultDeposit, error) {
	out, err := VaultABI.Unpack("deposits", output)
	if err != nil {
		return nil, err
	}
	return &VaultDeposit{
		KeyAddress: out[0].(common.Address),
		Amount:     out[1].(*big.Int),
	}, nil
}

func unpackCall(name string, calldata []byte) ([]any, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(calldata))
	}
	method, err := VaultABI.MethodById(calldata[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != name {
		return nil, fmt.Errorf("calldata is for %s, want %s", method.Name, name)
	}
	return method.Inputs.Unpack(calldata[4:])
}

// ParseDepositLog decodes a DepositEvent log. Only the index topic is
// mandatory; contract type and sender are filled in when present.
func ParseDepositLog(l types.Log) (*DepositEvent, error) {
	if len(l.Topics) < 2 || l.Topics[0] != DepositEventID {
		return nil, fmt.Errorf("log %s:%d is not a DepositEvent", l.TxHash.Hex(), l.Index)
	}
	index, err := topicUint64(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("deposit index: %w", err)
	}

	ev := &DepositEvent{
		Index:       index,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}
	if len(l.Topics) > 2 {
		ev.ContractType = uint8(l.Topics[2].Big().Uint64())
	}
	if len(l.Topics) > 3 {
		ev.Sender = common.BytesToAddress(l.Topics[3].Bytes())
	}
	if len(l.Data) > 0 {
		out, err := VaultABI.Unpack("DepositEvent", l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack deposit amount: %w", err)
		}
		ev.Amount = out[0].(*big.Int)
	}
	return ev, nil
}

// ParseWithdrawLog decodes a WithdrawEvent log.
func ParseWithdrawLog(l types.Log) (*WithdrawEvent, error) {
	if len(l.Topics) < 2 || l.Topics[0] != WithdrawEventID {
		return nil, fmt.Errorf("log %s:%d is not a WithdrawEvent", l.TxHash.Hex(), l.Index)
	}
	index, err := topicUint64(l.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("withdraw index: %w", err)
	}

	ev := &WithdrawEvent{
		Index:       index,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
	}
	if len(l.Topics) > 3 {
		ev.Recipient = common.BytesToAddress(l.Topics[3].Bytes())
	}
	if len(l.Data) > 0 {
		out, err := VaultABI.Unpack("WithdrawEvent", l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack withdraw amount: %w", err)
		}
		ev.Amount = out[0].(*big.Int)
	}
	return ev, nil
}

func topicUint64(topic common.Hash) (uint64, error) {
	v := topic.Big()
	if !v.IsUint64() {
		return 0, fmt.Errorf("topic %s overflows uint64", topic.Hex())
	}
	return v.Uint64(), nil
}
