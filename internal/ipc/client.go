package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Run submits a flow.
func (c *Client) Run(req RunRequest) (*JobResponse, error) {
	var resp JobResponse
	if err := c.call("Run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns every known job.
func (c *Client) List() (*ListResponse, error) {
	var resp ListResponse
	if err := c.call("List", ListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Show returns one job.
func (c *Client) Show(id string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.call("Show", JobRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear forgets a finished job.
func (c *Client) Clear(id string) error {
	var resp ActionResponse
	return c.call("Clear", JobRequest{ID: id}, &resp)
}

// End asks a job to terminate.
func (c *Client) End(id string) error {
	var resp ActionResponse
	return c.call("End", JobRequest{ID: id}, &resp)
}

// Kill forcibly stops a job.
func (c *Client) Kill(id string) error {
	var resp ActionResponse
	return c.call("Kill", JobRequest{ID: id}, &resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Queues lists the queue registry.
func (c *Client) Queues() (*QueuesResponse, error) {
	var resp QueuesResponse
	if err := c.call("Queues", QueuesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameQueue renames a queue and relabels its jobs.
func (c *Client) RenameQueue(from, to string) error {
	var resp ActionResponse
	return c.call("RenameQueue", RenameQueueRequest{From: from, To: to}, &resp)
}

// Subscribe registers a notification client and returns its id.
func (c *Client) Subscribe(hostname string) (string, error) {
	var resp SubscribeResponse
	if err := c.call("Subscribe", SubscribeRequest{Hostname: hostname}, &resp); err != nil {
		return "", err
	}
	return resp.ClientID, nil
}

// Poll drains notifications for a subscribed client.
func (c *Client) Poll(req PollRequest) (*PollResponse, error) {
	var resp PollResponse
	if err := c.call("Poll", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unsubscribe removes a notification client.
func (c *Client) Unsubscribe(clientID string) error {
	var resp ActionResponse
	return c.call("Unsubscribe", UnsubscribeRequest{ClientID: clientID}, &resp)
}

// Logs reads daemon log events.
func (c *Client) Logs(req LogsRequest) (*LogsResponse, error) {
	var resp LogsResponse
	if err := c.call("Logs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to exit.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
