package msg

// ConnectionSts is the per-link connection state (spec §3).
type ConnectionSts int

const (
	ConnDisconnected ConnectionSts = iota
	ConnConnecting
	ConnWaitPasskey
	ConnWaitNumChk
	ConnConnected
	ConnError
)

func (s ConnectionSts) String() string {
	switch s {
	case ConnDisconnected:
		return "DISCONNECTED"
	case ConnConnecting:
		return "CONNECTING"
	case ConnWaitPasskey:
		return "WAIT_PASSKEY"
	case ConnWaitNumChk:
		return "WAIT_NUM_CHK"
	case ConnConnected:
		return "CONNECTED"
	case ConnError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// TransactionSts is the per-link transaction state (spec §3, §4.5): at
// most one transaction runs at a time.
type TransactionSts int

const (
	TrnNone TransactionSts = iota
	TrnOpen
	TrnPairing
	TrnStsChk
)

func (s TransactionSts) String() string {
	switch s {
	case TrnNone:
		return "NONE"
	case TrnOpen:
		return "OPEN"
	case TrnPairing:
		return "PAIRING"
	case TrnStsChk:
		return "STS_CHK"
	default:
		return "UNKNOWN"
	}
}

// Role distinguishes the GATT peripheral (server) from the GATT central
// (client), spec §1.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)
