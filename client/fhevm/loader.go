package fhevm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	ecies "github.com/ecies/go/v2"
	"golang.org/x/sync/singleflight"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// RelayerConfig is the key material and contract set published by a relayer.
type RelayerConfig struct {
	NetworkPublicKey     string `json:"networkPublicKey"`
	ACLAddress           string `json:"aclContractAddress"`
	KMSVerifierAddress   string `json:"kmsContractAddress"`
	InputVerifierAddress string `json:"inputVerifierContractAddress"`
	DecryptionAddress    string `json:"verifyingContractAddressDecryption"`
	GatewayChainID       uint64 `json:"gatewayChainId"`
}

type relayerEnvelope[T any] struct {
	Response T      `json:"response"`
	Message  string `json:"message,omitempty"`
}

// RelayerLoader fetches relayer key material once per process. Concurrent
// callers share one in-flight load; Init runs at most once after a successful load.
type RelayerLoader struct {
	baseURL string
	http    *http.Client
	logger  log.Logger

	group singleflight.Group

	mu          sync.RWMutex
	cfg         *RelayerConfig
	initialized bool
}

// LoaderOption customizes a RelayerLoader.
type LoaderOption func(*RelayerLoader)

// WithHTTPClient sets the client used to reach the relayer.
func WithHTTPClient(c *http.Client) LoaderOption {
	return func(l *RelayerLoader) {
		l.http = c
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger log.Logger) LoaderOption {
	return func(l *RelayerLoader) {
		l.logger = logger
	}
}

// NewRelayerLoader creates a loader for the relayer at baseURL.
func NewRelayerLoader(baseURL string, opts ...LoaderOption) *RelayerLoader {
	l := &RelayerLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("module", "relayer-loader")
	return l
}

// BaseURL returns the relayer endpoint.
func (l *RelayerLoader) BaseURL() string { return l.baseURL }

// IsLoaded reports whether key material has been fetched.
func (l *RelayerLoader) IsLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg != nil
}

// IsInitialized reports whether Init completed.
func (l *RelayerLoader) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// Config returns the loaded configuration, or nil before Load succeeds.
func (l *RelayerLoader) Config() *RelayerConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.cfg == nil {
		return nil
	}
	cfg := *l.cfg
	return &cfg
}

// Load fetches the relayer key material. It is a no-op once loaded.
func (l *RelayerLoader) Load(ctx context.Context) error {
	if l.IsLoaded() {
		return nil
	}

	_, err, shared := l.group.Do("load", func() (any, error) {
		if l.IsLoaded() {
			return nil, nil
		}
		cfg, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		l.logger.Info("Relayer SDK loaded", "relayer", l.baseURL)
		return nil, nil
	})
	if shared {
		l.logger.Debug("Joined in-flight relayer load")
	}
	return err
}

// Init validates the loaded key material. It runs at most once.
func (l *RelayerLoader) Init(ctx context.Context) error {
	if l.IsInitialized() {
		return nil
	}

	_, err, _ := l.group.Do("init", func() (any, error) {
		if l.IsInitialized() {
			return nil, nil
		}
		cfg := l.Config()
		if cfg == nil {
			return nil, clienterrors.NewSDKLoadError("relayer SDK not available", nil)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := ecies.NewPublicKeyFromHex(strip0x(cfg.NetworkPublicKey)); err != nil {
			return nil, clienterrors.NewSDKLoadError("invalid network public key", err)
		}
		l.mu.Lock()
		l.initialized = true
		l.mu.Unlock()
		l.logger.Info("Relayer SDK initialized")
		return nil, nil
	})
	return err
}

func (l *RelayerLoader) fetch(ctx context.Context) (*RelayerConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/v1/keyurl", nil)
	if err != nil {
		return nil, clienterrors.NewSDKLoadError("failed to build request", err)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, clienterrors.NewSDKLoadError(fmt.Sprintf("failed to load relayer SDK from %s", l.baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, clienterrors.NewSDKLoadError("failed to read relayer response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, clienterrors.NewSDKLoadError(fmt.Sprintf("relayer returned status %d", resp.StatusCode), nil)
	}

	var env relayerEnvelope[RelayerConfig]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, clienterrors.NewSDKLoadError("relayer response is not valid JSON", err)
	}
	if env.Response.NetworkPublicKey == "" {
		return nil, clienterrors.NewSDKLoadError("relayer SDK loaded but missing expected globals", nil)
	}
	return &env.Response, nil
}
