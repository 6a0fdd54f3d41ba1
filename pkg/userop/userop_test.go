package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0xB985af5f96EF2722DC99aEBA573520903B86505e"),
		Nonce:                "0x5",
		InitCode:             "0x",
		CallData:             "0xb61d27f6",
		CallGasLimit:         "0x186a0",
		VerificationGasLimit: "0x186a0",
		PreVerificationGas:   "0xb1a2",
		MaxFeePerGas:         "0x59682f00",
		MaxPriorityFeePerGas: "0x59682f00",
		PaymasterAndData:     "0x",
		Signature:            "0xdeadbeef",
	}
}

func TestNonceBig(t *testing.T) {
	op := sampleOp()
	n, ok := op.NonceBig()
	if !ok || n.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("hex nonce: got %s ok=%v", n, ok)
	}

	op.Nonce = "12345"
	n, ok = op.NonceBig()
	if !ok || n.Cmp(big.NewInt(12345)) != 0 {
		t.Errorf("decimal nonce: got %s ok=%v", n, ok)
	}

	op.Nonce = "0xzz"
	if _, ok := op.NonceBig(); ok {
		t.Error("garbage nonce should not parse")
	}
}

func TestGetUserOpHash(t *testing.T) {
	entryPoint := common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	chainId := big.NewInt(11155111)

	h1, err := sampleOp().GetUserOpHash(entryPoint, chainId)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == (common.Hash{}) {
		t.Fatal("hash is zero")
	}

	// deterministic
	h2, err := sampleOp().GetUserOpHash(entryPoint, chainId)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("same operation must hash identically")
	}

	// signature is excluded from the hash
	signed := sampleOp()
	signed.Signature = "0x1234"
	h3, _ := signed.GetUserOpHash(entryPoint, chainId)
	if h3 != h1 {
		t.Error("signature must not affect the hash")
	}

	// chain id and entrypoint are bound in
	h4, _ := sampleOp().GetUserOpHash(entryPoint, big.NewInt(1))
	if h4 == h1 {
		t.Error("different chain must hash differently")
	}
	h5, _ := sampleOp().GetUserOpHash(common.HexToAddress("0x0000000000000000000000000000000000000001"), chainId)
	if h5 == h1 {
		t.Error("different entrypoint must hash differently")
	}

	// payload changes the hash
	altered := sampleOp()
	altered.CallData = "0xb61d27f7"
	h6, _ := altered.GetUserOpHash(entryPoint, chainId)
	if h6 == h1 {
		t.Error("different calldata must hash differently")
	}
}
