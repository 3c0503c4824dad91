package control

import (
	"encoding/json"
	"net"

	"github.com/op/go-logging"

	"krypt.co/blemsg/msg"
)

var log = logging.MustGetLogger("blemsg/control")

// Server answers diagnostic requests against one Engine (spec §6.2
// [ADD]). It never bypasses the Engine's own synchronization — every Op
// below is implemented by calling straight through to the matching
// read-only Engine method, same as any other host.
type Server struct {
	engine   *msg.Engine
	listener net.Listener
}

func NewServer(engine *msg.Engine, listener net.Listener) *Server {
	return &Server{engine: engine, listener: listener}
}

// Serve accepts connections until the listener is closed, adapted from
// the teacher's daemon control server accept loop.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if req.DeviceID != 0 {
			log.Debugf("control: op=%s device=%s", req.Op, msg.FormatDeviceID(req.DeviceID))
		}
		if err := enc.Encode(resp); err != nil {
			log.Warningf("control: write failed: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Op {
	case OpConnectionSts:
		return Response{ConnectionSts: s.engine.ConnectionSts().String()}
	case OpTransactionSts:
		return Response{TransactionSts: s.engine.TransactionSts().String()}
	case OpIsPaired:
		return Response{Paired: s.engine.IsPaired(req.DeviceID)}
	case OpTxPing:
		if err := s.engine.TxPing(); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{}
	default:
		return Response{Error: "unknown op: " + string(req.Op)}
	}
}
