package msg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// TicketStore is the host-delegated persistence capability from spec
// §4.2/§9: four methods replacing the teacher's single ticket-event
// callback. The core never caches tickets across transactions — it reads
// fresh on every authenticated operation (spec §4.2) — and never calls
// back into the engine from inside these methods (spec §5).
type TicketStore interface {
	Create(t *Ticket) error
	Read(deviceID uint64) (*Ticket, error)
	Update(t *Ticket) error
	Delete(deviceID uint64) error
}

// ErrNoTicket is returned by Read when no ticket exists for the device.
var ErrNoTicket = fmt.Errorf("no ticket for device")

// persistedTicket is the on-disk shape, adapted from the teacher's
// persistedPairing (pairing_persistence.go): a plain struct with no
// unexported fields, so encoding/json round-trips it without help.
type persistedTicket struct {
	OwnDeviceID      uint64
	RemoteDeviceID   uint64
	CipherKey        []byte
	OwnStatus        []byte
	RemoteStatusHash []byte
	MaxSeqNo         uint32
	TxSeqNo          uint32
	RxSeqNo          uint32
	RxSeqSeen        bool
}

func toPersisted(t *Ticket) persistedTicket {
	return persistedTicket{
		OwnDeviceID:      t.OwnDeviceID,
		RemoteDeviceID:   t.RemoteDeviceID,
		CipherKey:        append([]byte(nil), t.CipherKey[:]...),
		OwnStatus:        append([]byte(nil), t.OwnStatus[:]...),
		RemoteStatusHash: append([]byte(nil), t.RemoteStatusHash[:]...),
		MaxSeqNo:         t.MaxSeqNo,
		TxSeqNo:          t.TxSeqNo,
		RxSeqNo:          t.RxSeqNo,
		RxSeqSeen:        t.rxSeqSeen,
	}
}

func fromPersisted(p *persistedTicket) *Ticket {
	t := &Ticket{
		OwnDeviceID:    p.OwnDeviceID,
		RemoteDeviceID: p.RemoteDeviceID,
		MaxSeqNo:       p.MaxSeqNo,
		TxSeqNo:        p.TxSeqNo,
		RxSeqNo:        p.RxSeqNo,
		rxSeqSeen:      p.RxSeqSeen,
	}
	copy(t.CipherKey[:], p.CipherKey)
	copy(t.OwnStatus[:], p.OwnStatus)
	copy(t.RemoteStatusHash[:], p.RemoteStatusHash)
	return t
}

// FileTicketStore persists one JSON file per remote device_id under Dir,
// adapted from the teacher's FilePersister (file_persister.go): same
// 0700 permission, same read-whole-file/unmarshal/marshal-whole-file
// round trip, no partial writes or locking beyond the process-wide mutex
// callers are required to hold (spec §4.2: serialized by the engine's
// master mutex).
type FileTicketStore struct {
	Dir string
}

func (fs FileTicketStore) path(deviceID uint64) string {
	return filepath.Join(fs.Dir, "ticket-"+strconv.FormatUint(deviceID, 16)+".json")
}

func (fs FileTicketStore) Create(t *Ticket) error {
	return fs.Update(t)
}

func (fs FileTicketStore) Read(deviceID uint64) (*Ticket, error) {
	raw, err := os.ReadFile(fs.path(deviceID))
	if os.IsNotExist(err) {
		return nil, ErrNoTicket
	}
	if err != nil {
		return nil, err
	}
	var p persistedTicket
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return fromPersisted(&p), nil
}

func (fs FileTicketStore) Update(t *Ticket) error {
	if err := os.MkdirAll(fs.Dir, 0700); err != nil {
		return err
	}
	raw, err := json.Marshal(toPersisted(t))
	if err != nil {
		return err
	}
	return os.WriteFile(fs.path(t.RemoteDeviceID), raw, 0700)
}

func (fs FileTicketStore) Delete(deviceID uint64) error {
	err := os.Remove(fs.path(deviceID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemTicketStore is an in-memory TicketStore used by tests and by the
// in-process two-engine harness in engine_test.go.
type MemTicketStore struct {
	mu      sync.Mutex
	tickets map[uint64]*Ticket
}

func NewMemTicketStore() *MemTicketStore {
	return &MemTicketStore{tickets: map[uint64]*Ticket{}}
}

func (m *MemTicketStore) Create(t *Ticket) error {
	return m.Update(t)
}

func (m *MemTicketStore) Read(deviceID uint64) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[deviceID]
	if !ok {
		return nil, ErrNoTicket
	}
	cp := *t
	return &cp, nil
}

func (m *MemTicketStore) Update(t *Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tickets[t.RemoteDeviceID] = &cp
	return nil
}

func (m *MemTicketStore) Delete(deviceID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tickets, deviceID)
	return nil
}
