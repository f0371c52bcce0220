package credstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig holds Vault KV v2 connection settings.
type VaultConfig struct {
	// Address is the Vault server address, e.g. "https://vault.example.com:8200"
	Address string
	Token   string
	// MountPath is the KV v2 mount (default: "secret")
	MountPath string
	// SecretPath is the secret holding both keys (default: "qrlink/credentials")
	SecretPath string
	Namespace  string
	HTTPClient *http.Client
}

// VaultBackend keeps the pair in a single KV v2 secret. Writes use
// check-and-set on the version read just before, so a concurrent writer
// causes a failure rather than a merged half-pair.
type VaultBackend struct {
	address    string
	token      string
	mountPath  string
	secretPath string
	namespace  string
	httpClient *http.Client
}

// NewVaultBackend validates cfg and returns a backend.
func NewVaultBackend(cfg VaultConfig) (*VaultBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "qrlink/credentials"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
			Timeout: 30 * time.Second,
		}
	}

	return &VaultBackend{
		address:    strings.TrimRight(cfg.Address, "/"),
		token:      cfg.Token,
		mountPath:  strings.Trim(cfg.MountPath, "/"),
		secretPath: strings.Trim(cfg.SecretPath, "/"),
		namespace:  cfg.Namespace,
		httpClient: cfg.HTTPClient,
	}, nil
}

func (v *VaultBackend) Name() string { return "vault" }

type vaultSecret struct {
	Data     map[string]string `json:"data"`
	Metadata struct {
		Version int `json:"version"`
	} `json:"metadata"`
}

func (v *VaultBackend) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	secret, err := v.read(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if val, ok := secret.Data[k]; ok {
			out[k] = val
		}
	}
	return out, nil
}

func (v *VaultBackend) Put(ctx context.Context, values map[string]string) error {
	secret, err := v.read(ctx)
	if err != nil {
		return err
	}
	for k, val := range values {
		secret.Data[k] = val
	}
	return v.write(ctx, secret.Data, secret.Metadata.Version)
}

func (v *VaultBackend) Delete(ctx context.Context, keys ...string) error {
	secret, err := v.read(ctx)
	if err != nil {
		return err
	}
	if secret.Metadata.Version == 0 {
		return nil
	}

	for _, k := range keys {
		delete(secret.Data, k)
	}
	if len(secret.Data) == 0 {
		return v.do(ctx, http.MethodDelete, v.dataURL(), nil, nil)
	}
	return v.write(ctx, secret.Data, secret.Metadata.Version)
}

// Health checks the Vault server health endpoint. Standby nodes (429) count
// as healthy; sealed or uninitialized servers do not.
func (v *VaultBackend) Health(ctx context.Context) error {
	req, err := v.newRequest(ctx, http.MethodGet, v.address+"/v1/sys/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("vault unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (v *VaultBackend) dataURL() string {
	return fmt.Sprintf("%s/v1/%s/data/%s", v.address, v.mountPath, v.secretPath)
}

// read returns the latest secret; a missing or soft-deleted secret yields an
// empty one with version 0.
func (v *VaultBackend) read(ctx context.Context) (*vaultSecret, error) {
	var response struct {
		Data *vaultSecret `json:"data"`
	}

	err := v.do(ctx, http.MethodGet, v.dataURL(), nil, &response)
	if err == errVaultNotFound || (err == nil && (response.Data == nil || response.Data.Data == nil)) {
		s := &vaultSecret{Data: map[string]string{}}
		if response.Data != nil {
			s.Metadata = response.Data.Metadata
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	return response.Data, nil
}

func (v *VaultBackend) write(ctx context.Context, data map[string]string, casVersion int) error {
	payload := map[string]any{
		"data":    data,
		"options": map[string]any{"cas": casVersion},
	}
	return v.do(ctx, http.MethodPost, v.dataURL(), payload, nil)
}

func (v *VaultBackend) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", v.token)
	req.Header.Set("Content-Type", "application/json")
	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}
	return req, nil
}

var errVaultNotFound = fmt.Errorf("vault secret not found")

func (v *VaultBackend) do(ctx context.Context, method, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal secret data: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := v.newRequest(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		// Soft-deleted secrets answer 404 but still report their version,
		// which the next check-and-set write must match.
		if out != nil {
			_ = json.NewDecoder(resp.Body).Decode(out)
		}
		return errVaultNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault %s failed (status %d): %s", method, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode vault response: %w", err)
		}
	}
	return nil
}
