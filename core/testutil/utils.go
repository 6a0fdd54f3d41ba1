package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Polkamarkets/particle-bundler-server/core/config"
	"github.com/Polkamarkets/particle-bundler-server/model"
	"github.com/Polkamarkets/particle-bundler-server/pkg/userop"
	"github.com/Polkamarkets/particle-bundler-server/storage"
)

const (
	TestChainId    = int64(11155111)
	TestEntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	TestSender     = "0xB985af5f96EF2722DC99aEBA573520903B86505e"
)

// Shortcut to initialize a storage at the given path, panic if we cannot create db
func TestMustDB() storage.Storage {
	dir, err := os.MkdirTemp("", "bundlertest")
	if err != nil {
		panic(err)
	}

	db, err := storage.NewWithPath(dir)
	if err != nil {
		panic(err)
	}
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

func GetBundlerConfig() *config.Config {
	return &config.Config{
		Logger: GetLogger(),
		Chains: []config.ChainConfig{
			{
				ChainId:    TestChainId,
				Name:       "sepolia",
				EntryPoint: TestEntryPoint,
			},
		},
		CleanupInterval: config.DefaultCleanupInterval,
	}
}

func GetDefaultCache() *bigcache.BigCache {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(time.Minute))
	if err != nil {
		panic(err)
	}
	return cache
}

// GetWireUserOp builds a minimal wire format operation with the given nonce,
// decimal or 0x-prefixed hex.
func GetWireUserOp(nonce string) *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               common.HexToAddress(TestSender),
		Nonce:                nonce,
		InitCode:             "0x",
		CallData:             "0xb61d27f6",
		CallGasLimit:         "0x186a0",
		VerificationGasLimit: "0x186a0",
		PreVerificationGas:   "0xb1a2",
		MaxFeePerGas:         "0x59682f00",
		MaxPriorityFeePerGas: "0x59682f00",
		PaymasterAndData:     "0x",
		Signature:            "0x",
	}
}

// GetStoredUserOp builds a record directly in storage form, bypassing
// admission. Useful to seed slots in a particular state.
func GetStoredUserOp(nonceKey, nonceValue string, status model.OpStatus) *model.UserOperation {
	hash := fmt.Sprintf("0x%x", nonceKey+":"+nonceValue)
	return &model.UserOperation{
		ChainId:    TestChainId,
		UserOpHash: hash,
		Sender:     common.HexToAddress(TestSender).Hex(),
		NonceKey:   nonceKey,
		NonceValue: nonceValue,
		EntryPoint: TestEntryPoint,
		Origin:     json.RawMessage(`{}`),
		Status:     status,
		CreatedAt:  time.Now().UnixMilli(),
	}
}
