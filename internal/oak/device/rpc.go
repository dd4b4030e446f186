package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/oakstress/internal/monitoring"
	"github.com/banshee-data/oakstress/internal/oak/xlink"
)

// RPCStream is the reserved stream carrying session control requests.
// Requests and responses are single JSON documents correlated by id;
// stream data (frames, telemetry) never travels here.
const RPCStream = "__rpc"

// defaultRPCTimeout bounds calls whose context carries no deadline.
const defaultRPCTimeout = 5 * time.Second

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID    uint64          `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// rpcClient correlates requests with responses over the rpc stream.
type rpcClient struct {
	mux *xlink.StreamMux

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcResponse
	closed  bool
}

func newRPCClient(mux *xlink.StreamMux) (*rpcClient, error) {
	if _, err := mux.OpenStream(RPCStream); err != nil {
		return nil, err
	}
	c := &rpcClient{mux: mux, pending: make(map[uint64]chan rpcResponse)}
	subID, ch := mux.Subscribe(RPCStream, 16)
	go c.dispatch(subID, ch)
	return c, nil
}

// dispatch routes inbound responses to their waiting callers. It exits
// when the mux closes the subscriber channel.
func (c *rpcClient) dispatch(subID string, ch chan []byte) {
	for payload := range ch {
		var resp rpcResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			monitoring.Logf("Discarding malformed rpc response: %v", err)
			continue
		}
		c.mu.Lock()
		waiter, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			monitoring.Logf("Discarding rpc response with unknown id %d", resp.ID)
			continue
		}
		waiter <- resp
	}

	// Connection gone: fail everything still waiting.
	c.mu.Lock()
	c.closed = true
	for id, waiter := range c.pending {
		delete(c.pending, id)
		close(waiter)
	}
	c.mu.Unlock()
}

// Call performs one request/response exchange. A non-nil out receives
// the unmarshalled response data.
func (c *rpcClient) Call(ctx context.Context, op string, params any, out any) error {
	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s: marshal params: %w", op, err)
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: rpc stream closed", op)
	}
	c.nextID++
	id := c.nextID
	waiter := make(chan rpcResponse, 1)
	c.pending[id] = waiter
	c.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{ID: id, Op: op, Params: rawParams})
	if err != nil {
		c.abandon(id)
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	if err := c.mux.Send(RPCStream, payload); err != nil {
		c.abandon(id)
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return fmt.Errorf("%s: connection closed", op)
		}
		if !resp.OK {
			return fmt.Errorf("%s: device error: %s", op, resp.Error)
		}
		if out != nil {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("%s: unmarshal response: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.abandon(id)
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func (c *rpcClient) abandon(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
