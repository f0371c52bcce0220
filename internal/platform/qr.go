package platform

import (
	"context"
	"net/http"

	"github.com/felixgeelhaar/qrlink/internal/errors"
)

// ScanRequest confirms a link session from the scanning device.
type ScanRequest struct {
	SessionID string `json:"session_id"`
}

// ScanQR confirms sessionID, authenticated as the scanning device.
func (c *Client) ScanQR(ctx context.Context, sessionID, token string) (*Response, error) {
	if token == "" {
		return nil, errors.NotAuthenticated()
	}
	return c.Request(ctx, "/qr/scan", RequestOptions{
		Method:    http.MethodPost,
		Body:      ScanRequest{SessionID: sessionID},
		AuthToken: token,
	})
}
