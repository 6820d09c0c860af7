package messaging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/utils"
	"github.com/irfndi/funding-collector/pkg/httpclient"
)

const messagesPath = "/messages"

type gatewayRequest struct {
	Target string       `json:"target"`
	Tags   []models.Tag `json:"tags"`
	Data   string       `json:"data"`
}

type gatewayResponse struct {
	ID string `json:"id"`
}

// GatewayClient posts messages to an HTTP gateway in front of the bus.
type GatewayClient struct {
	client  *httpclient.Client
	url     string
	timeout time.Duration
}

// NewGatewayClient creates a client for the gateway at baseURL.
func NewGatewayClient(baseURL string, timeout time.Duration, userAgent string, logger *logrus.Logger) *GatewayClient {
	return &GatewayClient{
		client:  httpclient.NewClient(httpclient.Options{UserAgent: userAgent, Logger: logger}),
		url:     httpclient.JoinURL(baseURL, messagesPath),
		timeout: timeout,
	}
}

// Send posts the message and returns the id from the gateway response.
func (g *GatewayClient) Send(ctx context.Context, target string, tags []models.Tag, data []byte) (string, error) {
	raw, err := g.client.FetchJSON(ctx, g.url, httpclient.RequestOptions{
		Method:  http.MethodPost,
		Body:    gatewayRequest{Target: target, Tags: tags, Data: string(data)},
		Timeout: g.timeout,
	})
	if err != nil {
		return "", err
	}

	var resp gatewayResponse
	if err := httpclient.Decode("gateway send", raw, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", utils.NewShapeError("gateway send", "response has no message id", raw)
	}
	return resp.ID, nil
}

// String names the backend in logs.
func (g *GatewayClient) String() string {
	return fmt.Sprintf("gateway(%s)", g.url)
}
