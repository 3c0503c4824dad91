package msg

import "time"

// Config holds the tunable constants from spec §6.3. DefaultConfig
// returns the documented defaults; callers override individual fields
// before passing a Config to InitServer/InitClient.
type Config struct {
	MTU              int
	MaxLength        int
	AuthTagSize      int
	CipherKeySize    int
	TicketStatusSize int
	HashStretch      int
	AuthCheckValue   byte

	RxQueueSize    int
	EventQueueSize int
	ByteQueueSize  int

	MaxEventRetry int

	OpenTimeout    time.Duration
	PairingTimeout time.Duration
	StatusTimeout  time.Duration
	QueueTimeout   time.Duration

	DaemonTickInterval time.Duration

	// ConsecutiveFailureThreshold is the number of consecutive AUTH_FAIL,
	// REPLAY or DECRYPT_FAIL events from one peer that raise a single
	// HANDLING_ERR event (spec §7). The count runs since the last accepted
	// authenticated message from that peer; there is no time window.
	// FailureTrackerSize bounds how many peers are tracked at once.
	ConsecutiveFailureThreshold int
	FailureTrackerSize          int
}

// DefaultConfig returns the constants documented in spec §6.3.
func DefaultConfig() Config {
	return Config{
		MTU:              256,
		MaxLength:        2048,
		AuthTagSize:      32,
		CipherKeySize:    32,
		TicketStatusSize: 32,
		HashStretch:      8,
		AuthCheckValue:   0xA5,

		RxQueueSize:    32,
		EventQueueSize: 32,
		ByteQueueSize:  32,

		MaxEventRetry: 3,

		OpenTimeout:    90 * time.Second,
		PairingTimeout: 90 * time.Second,
		StatusTimeout:  5 * time.Second,
		QueueTimeout:   3 * time.Second,

		DaemonTickInterval: 500 * time.Millisecond,

		ConsecutiveFailureThreshold: 3,
		FailureTrackerSize:          256,
	}
}
