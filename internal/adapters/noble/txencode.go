package noble

import (
	"google.golang.org/protobuf/encoding/protowire"

	"cctp-forwarder/go-backend/internal/domains/forwarding/model"
)

const (
	secp256k1PubKeyTypeURL = "/cosmos.crypto.secp256k1.PubKey"
	signModeDirect         = 1
	broadcastModeSync      = 2
)

// The encoders below emit the cosmos-sdk tx messages in field order and omit
// proto3 zero values, which is what the chain re-encodes when it rebuilds the
// SignDoc for verification.

func encodeRegisterAccount(signer string, spec model.RegistrationTxSpec) []byte {
	var b []byte
	b = appendString(b, 1, signer)
	b = appendString(b, 2, spec.Recipient)
	b = appendString(b, 3, spec.Channel)
	b = appendString(b, 4, spec.Fallback)
	return b
}

func encodeAny(typeURL string, value []byte) []byte {
	var b []byte
	b = appendString(b, 1, typeURL)
	b = appendBytes(b, 2, value)
	return b
}

func encodeTxBody(memo string, messages ...[]byte) []byte {
	var b []byte
	for _, msg := range messages {
		b = appendMessage(b, 1, msg)
	}
	b = appendString(b, 2, memo)
	return b
}

func encodeAuthInfo(pubKey []byte, sequence uint64, fee model.Fee, gasLimit uint64) []byte {
	var pk []byte
	pk = appendBytes(pk, 1, pubKey)

	var single []byte
	single = appendUvarint(single, 1, signModeDirect)
	var modeInfo []byte
	modeInfo = appendMessage(modeInfo, 1, single)

	var signerInfo []byte
	signerInfo = appendMessage(signerInfo, 1, encodeAny(secp256k1PubKeyTypeURL, pk))
	signerInfo = appendMessage(signerInfo, 2, modeInfo)
	signerInfo = appendUvarint(signerInfo, 3, sequence)

	var coin []byte
	coin = appendString(coin, 1, fee.Denom)
	coin = appendString(coin, 2, fee.Amount)
	var feeMsg []byte
	if fee.Denom != "" {
		feeMsg = appendMessage(feeMsg, 1, coin)
	}
	feeMsg = appendUvarint(feeMsg, 2, gasLimit)

	var b []byte
	b = appendMessage(b, 1, signerInfo)
	b = appendMessage(b, 2, feeMsg)
	return b
}

func encodeSignDoc(body, authInfo []byte, chainID string, accountNumber uint64) []byte {
	var b []byte
	b = appendBytes(b, 1, body)
	b = appendBytes(b, 2, authInfo)
	b = appendString(b, 3, chainID)
	b = appendUvarint(b, 4, accountNumber)
	return b
}

func encodeTxRaw(body, authInfo []byte, signatures ...[]byte) []byte {
	var b []byte
	b = appendBytes(b, 1, body)
	b = appendBytes(b, 2, authInfo)
	for _, sig := range signatures {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, sig)
	}
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendMessage always emits the field, even for an empty message.
func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
