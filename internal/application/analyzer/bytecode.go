package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"txrisk-engine/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"golang.org/x/sync/errgroup"
)

// implementationSlot is the EIP-1967 implementation storage slot,
// keccak256("eip1967.proxy.implementation") - 1.
const implementationSlot = "0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc"

func (a *Analyzer) inspectContract(ctx context.Context, r *run, chain entity.ChainConfig, target string) {
	addr, ok := entity.NormalizeAddress(target)
	if !ok {
		return
	}

	var slot, code json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slot = a.racer.Race(gctx, chain.ChainID, "eth_getStorageAt", []any{addr, implementationSlot, "latest"}, false)
		return nil
	})
	g.Go(func() error {
		code = a.racer.Race(gctx, chain.ChainID, "eth_getCode", []any{addr, "latest"}, false)
		return nil
	})
	_ = g.Wait()

	if impl, ok := implementationAddress(slot); ok {
		r.warn(entity.RiskMedium, titleProxy,
			fmt.Sprintf("upgradeable proxy: its logic lives at %s and can be replaced at any time", impl))
	}

	bytecode, ok := decodeHexResult(code)
	if !ok || len(bytecode) == 0 {
		return
	}
	selfDestruct, delegateCall := ScanOpcodes(bytecode)
	if selfDestruct {
		r.warn(entity.RiskHigh, titleSelfDestruct, "contract code contains SELFDESTRUCT")
	}
	if delegateCall {
		r.warn(entity.RiskMedium, titleDelegateCall, "contract code contains DELEGATECALL and can run code from another address")
	}
}

// ScanOpcodes walks EVM bytecode, skipping PUSH immediates, and reports
// whether SELFDESTRUCT or DELEGATECALL appear as instructions.
func ScanOpcodes(code []byte) (selfDestruct, delegateCall bool) {
	for i := 0; i < len(code); i++ {
		op := vm.OpCode(code[i])
		switch {
		case op == vm.SELFDESTRUCT:
			selfDestruct = true
		case op == vm.DELEGATECALL:
			delegateCall = true
		case op >= vm.PUSH1 && op <= vm.PUSH32:
			i += int(op-vm.PUSH1) + 1
		}
	}
	return selfDestruct, delegateCall
}

// implementationAddress reads a storage word returned by eth_getStorageAt.
func implementationAddress(raw json.RawMessage) (string, bool) {
	word, ok := decodeHexResult(raw)
	if !ok || len(word) == 0 || new(big.Int).SetBytes(word).Sign() == 0 {
		return "", false
	}
	return strings.ToLower(common.BytesToAddress(word).Hex()), true
}

// decodeHexResult decodes a JSON-RPC result holding a 0x-hex string.
func decodeHexResult(raw json.RawMessage) ([]byte, bool) {
	if raw == nil {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return common.FromHex(s), true
}
