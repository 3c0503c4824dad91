package control

import (
	"encoding/json"
	"fmt"
	"net"
)

// Client is the thin synchronous RPC wrapper cmd/blectl drives, adapted
// from the teacher's DaemonDial + ping/response pattern in
// common/socket: one request, one response, per call.
type Client struct {
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
}

func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, dec: json.NewDecoder(conn), enc: json.NewEncoder(conn)}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(req Request) (Response, error) {
	if err := c.enc.Encode(req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, err
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}

func (c *Client) ConnectionSts() (string, error) {
	resp, err := c.call(Request{Op: OpConnectionSts})
	return resp.ConnectionSts, err
}

func (c *Client) TransactionSts() (string, error) {
	resp, err := c.call(Request{Op: OpTransactionSts})
	return resp.TransactionSts, err
}

func (c *Client) IsPaired(deviceID uint64) (bool, error) {
	resp, err := c.call(Request{Op: OpIsPaired, DeviceID: deviceID})
	return resp.Paired, err
}

func (c *Client) TxPing() error {
	_, err := c.call(Request{Op: OpTxPing})
	return err
}
