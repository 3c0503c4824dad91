package msg

// InitServer constructs and starts an Engine in the peripheral/server
// role (spec §6.2 init_server). The caller is responsible for bringing
// up the concrete BLE peripheral (package adapter) and wiring its writes
// into OnAttributeWrite / OnConnect / OnDisconnect.
func InitServer(cfg Config, ownDeviceID uint64, store TicketStore, transport Transport, eventCb EventCallback) *Engine {
	e := NewEngine(cfg, RoleServer, ownDeviceID, store, transport, eventCb)
	e.Start()
	return e
}

// InitClient constructs and starts an Engine in the central/client role
// (spec §6.2 init_client).
func InitClient(cfg Config, ownDeviceID uint64, store TicketStore, transport Transport, eventCb EventCallback) *Engine {
	e := NewEngine(cfg, RoleClient, ownDeviceID, store, transport, eventCb)
	e.Start()
	return e
}

// OpenServer marks a server-role Engine's link to a specific peer
// address as connected (spec §6.2 open_server). Unlike the client, the
// server never initiates the Open transaction itself — it answers the
// client's PING from the normal dispatch path — so this only records
// connection state for a peripheral that has just accepted a central's
// GATT connection.
func (e *Engine) OpenServer(peerAddress [6]byte) error {
	if e.role != RoleServer {
		return newErr(ErrInvalidState, nil)
	}
	e.OnConnect(peerAddress)
	return nil
}
