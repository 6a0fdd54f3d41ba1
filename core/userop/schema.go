package userop

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Polkamarkets/particle-bundler-server/model"
)

// Storage key layout. Slot keys zero-pad the nonce value to
// model.MaxNonceValueLen digits so iterating a (chain, sender, nonceKey)
// prefix walks nonce values in numeric order.
//
//	uo:<chainId>:<sender>:<nonceKey>:<nonceValue>   the record itself
//	uoh:<chainId>:<userOpHash>                      -> record key
//	uol:<chainId>:<entryPoint>:<createdAtMs>:<hash> -> record key, local records only
//	ev:<chainId>:<userOpHash>                       settlement event
//	tx:<chainId>:<txHash>                           bundling transaction
//	ct:admit:<chainId>                              admission counter

func OpStorageKey(chainId int64, sender, nonceKey, nonceValue string) []byte {
	return []byte(fmt.Sprintf(
		"uo:%d:%s:%s:%s",
		chainId,
		strings.ToLower(sender),
		nonceKey,
		padNonceValue(nonceValue),
	))
}

// fmt's zero flag only applies to numbers, and nonce values exceed uint64, so
// pad the decimal string by hand.
func padNonceValue(v string) string {
	if len(v) >= model.MaxNonceValueLen {
		return v
	}
	return strings.Repeat("0", model.MaxNonceValueLen-len(v)) + v
}

func OpByHashKey(chainId int64, userOpHash string) []byte {
	return []byte(fmt.Sprintf("uoh:%d:%s", chainId, strings.ToLower(userOpHash)))
}

func OpSlotPrefix(chainId int64, sender, nonceKey string) []byte {
	return []byte(fmt.Sprintf("uo:%d:%s:%s:", chainId, strings.ToLower(sender), nonceKey))
}

func OpByChainPrefix(chainId int64) []byte {
	return []byte(fmt.Sprintf("uo:%d:", chainId))
}

func LocalIndexKey(chainId int64, entryPoint string, createdAt int64, userOpHash string) []byte {
	return []byte(fmt.Sprintf(
		"uol:%d:%s:%013d:%s",
		chainId,
		strings.ToLower(entryPoint),
		createdAt,
		strings.ToLower(userOpHash),
	))
}

func LocalIndexChainPrefix(chainId int64) []byte {
	return []byte(fmt.Sprintf("uol:%d:", chainId))
}

func LocalIndexEntryPointPrefix(chainId int64, entryPoint string) []byte {
	return []byte(fmt.Sprintf("uol:%d:%s:", chainId, strings.ToLower(entryPoint)))
}

// Parse the createdAt segment out of a local index key. The hash sits after
// it so we split on ':' instead of slicing fixed offsets.
func localIndexCreatedAt(key []byte) (int64, error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 5 {
		return 0, fmt.Errorf("malformed local index key: %s", key)
	}
	return strconv.ParseInt(parts[3], 10, 64)
}

func EventStorageKey(chainId int64, userOpHash string) []byte {
	return []byte(fmt.Sprintf("ev:%d:%s", chainId, strings.ToLower(userOpHash)))
}

func TxStorageKey(chainId int64, txHash string) []byte {
	return []byte(fmt.Sprintf("tx:%d:%s", chainId, strings.ToLower(txHash)))
}

func AdmitCounterKey(chainId int64) []byte {
	return []byte(fmt.Sprintf("ct:admit:%d", chainId))
}
