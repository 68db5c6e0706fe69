package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"gameshelf/internal/catalog"
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
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerScan starts a scan of the given kind for the listed units, or all units when none are given.
func (c *Client) TriggerScan(kind string, unitIDs []int64) (*TriggerScanResponse, error) {
	var resp TriggerScanResponse
	if err := c.call("TriggerScan", TriggerScanRequest{Kind: kind, UnitIDs: unitIDs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ScanProgress returns the latest progress snapshots. Zero unitID returns every unit.
func (c *Client) ScanProgress(unitID int64) (*ScanProgressResponse, error) {
	var resp ScanProgressResponse
	if err := c.call("ScanProgress", ScanProgressRequest{UnitID: unitID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListUnits returns every configured unit.
func (c *Client) ListUnits() (*ListUnitsResponse, error) {
	var resp ListUnitsResponse
	if err := c.call("ListUnits", ListUnitsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateUnit registers a new unit.
func (c *Client) CreateUnit(name string, dirs []catalog.DirectoryMapping) (*CreateUnitResponse, error) {
	var resp CreateUnitResponse
	if err := c.call("CreateUnit", CreateUnitRequest{Name: name, Directories: dirs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteUnit removes a unit and its entries.
func (c *Client) DeleteUnit(id int64) (*DeleteUnitResponse, error) {
	var resp DeleteUnitResponse
	if err := c.call("DeleteUnit", DeleteUnitRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEntries lists entries, searching titles when req.Query is set.
func (c *Client) ListEntries(req ListEntriesRequest) (*ListEntriesResponse, error) {
	var resp ListEntriesResponse
	if err := c.call("ListEntries", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search queries metadata providers for candidates.
func (c *Client) Search(term string, limit int) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.call("Search", SearchRequest{Term: term, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Match applies a manual match.
func (c *Client) Match(req MatchRequest) (*MatchResponse, error) {
	var resp MatchResponse
	if err := c.call("Match", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveEntry removes an entry, returning its path to the unmatched list.
func (c *Client) RemoveEntry(id int64) (*RemoveEntryResponse, error) {
	var resp RemoveEntryResponse
	if err := c.call("RemoveEntry", RemoveEntryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetWatcherEnabled toggles the filesystem watcher.
func (c *Client) SetWatcherEnabled(enabled bool) (*SetWatcherResponse, error) {
	var resp SetWatcherResponse
	if err := c.call("SetWatcherEnabled", SetWatcherRequest{Enabled: enabled}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
