package msg

// Kind is the closed, wire-tagged set of message kinds (spec §3).
type Kind uint8

const (
	KindResponse Kind = iota
	KindReset
	KindPing
	KindPairingReq
	KindPairingRsp
	KindDigestMatch
	KindDigestErr
	KindStatusReq
	KindStatusRsp1
	KindStatusRsp2
	KindData
	KindCiphertext
	kindCount
)

func (k Kind) Valid() bool {
	return k < kindCount
}

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "RESPONSE"
	case KindReset:
		return "RESET"
	case KindPing:
		return "PING"
	case KindPairingReq:
		return "PAIRING_REQ"
	case KindPairingRsp:
		return "PAIRING_RSP"
	case KindDigestMatch:
		return "DIGEST_MATCH"
	case KindDigestErr:
		return "DIGEST_ERR"
	case KindStatusReq:
		return "STATUS_REQ"
	case KindStatusRsp1:
		return "STATUS_RSP1"
	case KindStatusRsp2:
		return "STATUS_RSP2"
	case KindData:
		return "DATA"
	case KindCiphertext:
		return "CIPHERTEXT"
	default:
		return "UNKNOWN_KIND"
	}
}

// Authenticated reports whether a kind's auth_tag carries a real HMAC
// rather than the AUTH_CHECK_VALUE fill pattern (spec §3, §4.4).
func (k Kind) Authenticated() bool {
	switch k {
	case KindData, KindCiphertext, KindStatusReq, KindStatusRsp1, KindStatusRsp2:
		return true
	default:
		return false
	}
}
