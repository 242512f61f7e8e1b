package claimlink

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// PeanutSalt is the vault's domain salt, keccak256("Konrad makes tokens go woosh tadam").
	PeanutSalt = common.HexToHash("0x70adbbeba9d4f0c82e28dd574f15466f75df0543b65f24460fc445813b5d94e0")

	// AnyoneWithdrawalMode lets any account submit the signed withdrawal.
	AnyoneWithdrawalMode = common.Hash{}
)

// WithdrawalScheme is the message layout a vault version verifies:
//
//	keccak256(abi.encodePacked(bytes32 salt, uint256 chainId, address vault,
//	                           uint256 index, address recipient, bytes32 extra))
//
// It must match the deployed verifier bit for bit.
type WithdrawalScheme struct {
	Salt  common.Hash
	Extra common.Hash
}

// WithdrawalSchemes maps a link's version tag to the layout its vault expects.
var WithdrawalSchemes = map[string]WithdrawalScheme{
	"v4.3": {Salt: PeanutSalt, Extra: AnyoneWithdrawalMode},
}

// Digest returns the packed message hash for a withdrawal.
func (s WithdrawalScheme) Digest(chainID uint64, vault common.Address, index uint64, recipient common.Address) common.Hash {
	packed := make([]byte, 0, 32+32+20+32+20+32)
	packed = append(packed, s.Salt.Bytes()...)
	packed = append(packed, uint256Bytes(chainID)...)
	packed = append(packed, vault.Bytes()...)
	packed = append(packed, uint256Bytes(index)...)
	packed = append(packed, recipient.Bytes()...)
	packed = append(packed, s.Extra.Bytes()...)
	return crypto.Keccak256Hash(packed)
}

// SignDigest signs digest under the EIP-191 personal-message prefix and
// returns a 65-byte [R || S || V] signature with V in {27, 28}.
func SignDigest(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(digest.Bytes()), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address that produced sig over digest with SignDigest.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(digest.Bytes()), s)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func uint256Bytes(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}
