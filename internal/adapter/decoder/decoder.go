// Package decoder maps raw calldata to a structured call by 4-byte selector.
package decoder

import (
	"strings"

	"txrisk-engine/internal/domain/entity"
	domainService "txrisk-engine/internal/domain/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Compile-time check
var _ domainService.CallDecoder = (*Decoder)(nil)

const wordSize = 32

// Decoder is stateless; the zero value is ready to use.
type Decoder struct{}

// New creates a new calldata decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode implements domainService.CallDecoder. It never fails: input that
// cannot be read is classified as KindUnknown.
func (d *Decoder) Decode(calldata string) entity.DecodedCall {
	s := strings.TrimSpace(calldata)
	if s == "" || strings.EqualFold(s, "0x") {
		return entity.DecodedCall{
			Kind:   entity.KindNativeTransfer,
			Name:   entity.KindNativeTransfer.String(),
			Params: []entity.DecodedParam{},
		}
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	raw, err := hexutil.Decode(strings.ToLower(s))
	if err != nil || len(raw) < 4 {
		return unknown(strings.ToLower(s[:min(len(s), 10)]))
	}

	selector := hexutil.Encode(raw[:4])
	m, ok := table[selector]
	if !ok {
		return unknown(selector)
	}

	params := make([]entity.DecodedParam, 0, len(m.params))
	args := raw[4:]
	for i, typ := range m.params {
		start := i * wordSize
		if start+wordSize > len(args) {
			break
		}
		params = append(params, decodeWord(typ, args[start:start+wordSize]))
	}

	return entity.DecodedCall{
		Kind:     m.kind,
		Name:     m.name,
		Selector: selector,
		Params:   params,
	}
}

func decodeWord(typ string, word []byte) entity.DecodedParam {
	switch typ {
	case "address":
		return entity.DecodedParam{Type: typ, Value: strings.ToLower(common.BytesToAddress(word[12:]).Hex())}
	case "bool":
		v := "false"
		if word[wordSize-1] != 0 {
			v = "true"
		}
		return entity.DecodedParam{Type: typ, Value: v}
	default:
		return entity.DecodedParam{Type: typ, Value: hexutil.Encode(word)}
	}
}

func unknown(selector string) entity.DecodedCall {
	return entity.DecodedCall{
		Kind:     entity.KindUnknown,
		Name:     entity.KindUnknown.String(),
		Selector: selector,
		Params:   []entity.DecodedParam{},
	}
}
