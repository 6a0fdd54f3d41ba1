/*
Package userop holds user operation lifecycle storage and the admission
rules. We use badgerdb for all persistence. We care about cross compiling
and want pure-go as much as possible, badgerdb satisfies that requirement.

**Storage layout**

	uo:<chain>:<sender>:<nonce-key>:<nonce-value>  -> operation payload, the source of truth
	uoh:<chain>:<user-op-hash>                     -> slot key of the operation
	uol:<chain>:<entrypoint>:<created-at>:<hash>   -> local status index
	ev:<chain>:<user-op-hash>                      -> settlement event payload
	tx:<chain>:<tx-hash>                           -> bundling transaction payload
	ct:admit:<chain>                               -> admission counter

The nonce value in the slot key is zero padded to 30 digits so lexicographic
key order matches numeric nonce order, which lets us answer the highest
settled nonce with one reverse seek. The local index embeds the creation
time so batch selection walks keys in admission order without sorting.

Record state moves local -> pending -> done, with toBeReplace as a side exit
for operations whose bundling transaction was dropped. Every state change is
a conditional write inside one badger transaction, concurrent writers to the
same slot serialize through badger's conflict detection.
*/
package userop
