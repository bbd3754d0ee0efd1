package supervisor

import (
	"net/rpc"
	"net/rpc/jsonrpc"
)

// Client dials a service's RPC endpoint from outside the supervisor's
// own process — the out-of-process counterpart to CallService.
type Client struct {
	serviceID string
	conn      *rpc.Client
}

// Dial connects to a service previously exposed via RegisterRemote.
func Dial(serviceID, addr string) (*Client, error) {
	conn, err := jsonrpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{serviceID: serviceID, conn: conn}, nil
}

// Call issues one Call(method, argsJSON) RPC and returns the decoded
// {success, dataJson, error} envelope.
func (c *Client) Call(req DispatchRequest) (DispatchResponse, error) {
	var resp DispatchResponse
	err := c.conn.Call(c.serviceID+".Call", req, &resp)
	return resp, err
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
