package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	"github.com/felixgeelhaar/qrlink/internal/errors"
)

const msgDevicesNotAuthenticated = "You must be logged in to manage devices"

// ListDevices fetches the devices linked to the token's account.
// Results are never cached.
func (c *Client) ListDevices(ctx context.Context, token string) ([]domain.Device, error) {
	if token == "" {
		return nil, errors.NotAuthenticatedFor(msgDevicesNotAuthenticated)
	}

	var devices []domain.Device
	if err := c.Do(ctx, "/devices", RequestOptions{AuthToken: token}, &devices); err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	return devices, nil
}

// RevokeDevice revokes deviceID. A previously fetched list is not updated.
func (c *Client) RevokeDevice(ctx context.Context, deviceID, token string) error {
	if token == "" {
		return errors.NotAuthenticatedFor(msgDevicesNotAuthenticated)
	}
	if deviceID == "" {
		return errors.ValidationFailed("Device ID is required")
	}

	_, err := c.Request(ctx, "/devices/"+url.PathEscape(deviceID), RequestOptions{
		Method:    http.MethodDelete,
		AuthToken: token,
		Route:     "/devices/{device_id}",
	})
	return err
}
