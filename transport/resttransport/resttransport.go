package resttransport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/govmarket/market-core/negotiation"
	"github.com/govmarket/market-core/transport"
	golog "github.com/ipfs/go-log/v2"
)

var log = golog.Logger("transport/rest")

const defaultTimeout = time.Second * 15

// RestTransport delivers wire messages by POSTing them to the counterparty's
// registered HTTP endpoint.
type RestTransport struct {
	directory *transport.Directory
	client    *resty.Client
}

var _ transport.Transport = (*RestTransport)(nil)

// New returns a transport resolving recipients against directory.
func New(directory *transport.Directory) *RestTransport {
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("Content-Type", "application/json")
	return &RestTransport{directory: directory, client: client}
}

// Send POSTs payload to the recipient's endpoint.
func (t *RestTransport) Send(ctx context.Context, to negotiation.CounterpartyID, payload []byte) error {
	endpoint, ok := t.directory.Endpoint(to)
	if !ok {
		return fmt.Errorf("counterparty %s not in directory", to)
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("posting to %s: %v", to, err)
	}
	if resp.IsError() {
		return fmt.Errorf("posting to %s: status %d", to, resp.StatusCode())
	}
	log.Debugf("delivered %d bytes to %s", len(payload), to)
	return nil
}
