package remfile

import (
	"sync"
	"time"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
)

// Transport abstracts the MSG/SOCK/NETBUF send path a real client
// would use; tests and higher layers supply one that actually moves
// bytes between nodes.
type Transport interface {
	// Send transmits req to dest and returns immediately; the reply,
	// if any, later arrives via Recv.
	Send(dest ktypes.NodeNum, req Request) status.Code
	// Recv blocks up to timeout for a reply to the outstanding
	// request, returning ok=false on timeout.
	Recv(timeout time.Duration) (Response, bool)
}

// RetryPolicy bounds a client's retry behavior.
type RetryPolicy struct {
	MaxRetries      int
	BaseTimeout     time.Duration
	RetryAdder      time.Duration
	MotherNode      ktypes.NodeNum
}

// Responsiveness estimates, per node, how long a round trip should
// take; do_request adds RetryPolicy.RetryAdder on top for its
// timeout.
type Responsiveness interface {
	Estimate(node ktypes.NodeNum) time.Duration
	// IsLikelyToAnswer lets the client bail out of its retry loop
	// early once a non-mother destination looks unreachable.
	IsLikelyToAnswer(node ktypes.NodeNum) bool
}

// Client issues remote-file requests and tracks node visibility.
type Client struct {
	transport Transport
	resp      Responsiveness
	policy    RetryPolicy

	mu        sync.Mutex
	invisible map[ktypes.NodeNum]bool
}

func NewClient(t Transport, r Responsiveness, policy RetryPolicy) *Client {
	return &Client{transport: t, resp: r, policy: policy, invisible: make(map[ktypes.NodeNum]bool)}
}

// Invisible reports whether dest was marked unreachable by a prior
// DoRequest giving up.
func (c *Client) Invisible(dest ktypes.NodeNum) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invisible[dest]
}

func (c *Client) markInvisible(dest ktypes.NodeNum) {
	c.mu.Lock()
	c.invisible[dest] = true
	c.mu.Unlock()
}

// DoRequest sends req to dest, retrying on timeout up to MaxRetries
// times (unbounded for the mother node). After the second retry
// against a non-mother node, it probes IsLikelyToAnswer and bails out
// early if the node looks gone. On success the reply's echoed opcode
// is checked against opcode+1; a mismatch is UnexpectedReplyType, not
// a retryable condition.
func (c *Client) DoRequest(dest ktypes.NodeNum, req Request) (Response, status.Code) {
	timeout := c.resp.Estimate(dest) + c.policy.RetryAdder
	isMother := dest == c.policy.MotherNode

	attempt := 0
	for {
		if st := c.transport.Send(dest, req); !st.OK() {
			return Response{}, st
		}
		reply, ok := c.transport.Recv(timeout)
		if ok {
			if reply.OpcodePlus != StaleEntrySentinel && reply.OpcodePlus != uint16(req.Opcode)+1 {
				return Response{}, status.UnexpectedReplyType
			}
			return reply, status.OK
		}

		attempt++
		if !isMother {
			if attempt > c.policy.MaxRetries {
				c.markInvisible(dest)
				return Response{}, status.RemoteNodeFailedToRespond
			}
			if attempt > 2 && !c.resp.IsLikelyToAnswer(dest) {
				c.markInvisible(dest)
				return Response{}, status.RemoteNodeFailedToRespond
			}
		}
		// The mother node is retried indefinitely and is never marked
		// invisible: a diskless client cannot treat its boot source as
		// unreachable.
	}
}
