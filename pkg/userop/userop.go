package userop

import (
	"encoding/json"
	"fmt"

	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation represents an EIP-4337 style transaction for a smart contract
// account, in the wire form the rpc layer delivers it. Numeric fields are hex
// or decimal strings exactly as received.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                string         `json:"nonce"`
	InitCode             string         `json:"initCode"`
	CallData             string         `json:"callData"`
	CallGasLimit         string         `json:"callGasLimit"`
	VerificationGasLimit string         `json:"verificationGasLimit"`
	PreVerificationGas   string         `json:"preVerificationGas"`
	MaxFeePerGas         string         `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string         `json:"paymasterAndData"`
	Signature            string         `json:"signature"`
}

// NonceBig parses the nonce field, accepting both 0x-hex and decimal.
func (op *UserOperation) NonceBig() (*big.Int, bool) {
	return math.ParseBig256(op.Nonce)
}

func (op *UserOperation) ToJSON() ([]byte, error) {
	return json.Marshal(op)
}

var (
	address, _ = abi.NewType("address", "", nil)
	uint256, _ = abi.NewType("uint256", "", nil)
	bytes32, _ = abi.NewType("bytes32", "", nil)

	packArgs = abi.Arguments{
		{Type: address}, // sender
		{Type: uint256}, // nonce
		{Type: bytes32}, // keccak(initCode)
		{Type: bytes32}, // keccak(callData)
		{Type: uint256}, // callGasLimit
		{Type: uint256}, // verificationGasLimit
		{Type: uint256}, // preVerificationGas
		{Type: uint256}, // maxFeePerGas
		{Type: uint256}, // maxPriorityFeePerGas
		{Type: bytes32}, // keccak(paymasterAndData)
	}

	hashArgs = abi.Arguments{
		{Type: bytes32}, // keccak of the packed op
		{Type: address}, // entrypoint
		{Type: uint256}, // chainId
	}
)

// PackForSignature abi-encodes the operation the same way the v0.6 entrypoint
// does before hashing, signature excluded.
func (op *UserOperation) PackForSignature() ([]byte, error) {
	numeric := func(name, v string) (*big.Int, error) {
		if v == "" {
			return big.NewInt(0), nil
		}
		n, ok := math.ParseBig256(v)
		if !ok {
			return nil, fmt.Errorf("invalid %s: %s", name, v)
		}
		return n, nil
	}

	nonce, err := numeric("nonce", op.Nonce)
	if err != nil {
		return nil, err
	}
	callGasLimit, err := numeric("callGasLimit", op.CallGasLimit)
	if err != nil {
		return nil, err
	}
	verificationGasLimit, err := numeric("verificationGasLimit", op.VerificationGasLimit)
	if err != nil {
		return nil, err
	}
	preVerificationGas, err := numeric("preVerificationGas", op.PreVerificationGas)
	if err != nil {
		return nil, err
	}
	maxFeePerGas, err := numeric("maxFeePerGas", op.MaxFeePerGas)
	if err != nil {
		return nil, err
	}
	maxPriorityFeePerGas, err := numeric("maxPriorityFeePerGas", op.MaxPriorityFeePerGas)
	if err != nil {
		return nil, err
	}

	return packArgs.Pack(
		op.Sender,
		nonce,
		crypto.Keccak256Hash(common.FromHex(op.InitCode)),
		crypto.Keccak256Hash(common.FromHex(op.CallData)),
		callGasLimit,
		verificationGasLimit,
		preVerificationGas,
		maxFeePerGas,
		maxPriorityFeePerGas,
		crypto.Keccak256Hash(common.FromHex(op.PaymasterAndData)),
	)
}

// GetUserOpHash computes the canonical userOpHash: the packed operation hash
// bound to the entrypoint address and chain id.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.PackForSignature()
	if err != nil {
		return common.Hash{}, err
	}

	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	return crypto.Keccak256Hash(enc), nil
}
