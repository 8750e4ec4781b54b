package fhevm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ChapmaBeerbohm/crypticscore/client/config"
	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// Provider issues JSON-RPC calls. *rpc.Client satisfies it.
type Provider interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Dialer opens a Provider for an RPC URL.
type Dialer func(ctx context.Context, url string) (Provider, error)

func dialRPC(ctx context.Context, url string) (Provider, error) {
	return rpc.DialContext(ctx, url)
}

// Resolver decides between the mock coprocessor and the remote relayer for a
// chain and builds the matching Instance.
type Resolver struct {
	loader     *RelayerLoader
	overrides  RelayerConfig
	mockChains map[uint64]string
	mockOpts   []MockOption
	dial       Dialer
	httpClient *http.Client
	onStatus   StatusFunc
	logger     log.Logger

	copMu   sync.Mutex
	cop     *Coprocessor
	copOpts []CoprocessorOption
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithMockChains adds or overrides development chains, keyed by chain id.
func WithMockChains(chains map[uint64]string) ResolverOption {
	return func(r *Resolver) {
		for id, url := range chains {
			r.mockChains[id] = url
		}
	}
}

// WithStatus registers a progress observer.
func WithStatus(fn StatusFunc) ResolverOption {
	return func(r *Resolver) {
		r.onStatus = fn
	}
}

// WithCoprocessor supplies the mock coprocessor instead of generating one on first use.
func WithCoprocessor(c *Coprocessor) ResolverOption {
	return func(r *Resolver) {
		r.cop = c
	}
}

// WithCoprocessorOptions configures the coprocessor opened on first use.
func WithCoprocessorOptions(opts ...CoprocessorOption) ResolverOption {
	return func(r *Resolver) {
		r.copOpts = append(r.copOpts, opts...)
	}
}

// WithMockOptions configures mock instances built by the resolver.
func WithMockOptions(opts ...MockOption) ResolverOption {
	return func(r *Resolver) {
		r.mockOpts = append(r.mockOpts, opts...)
	}
}

// WithDialer replaces rpc.DialContext.
func WithDialer(d Dialer) ResolverOption {
	return func(r *Resolver) {
		r.dial = d
	}
}

// WithRelayerOverrides replaces non-empty fields of the relayer published configuration.
func WithRelayerOverrides(cfg RelayerConfig) ResolverOption {
	return func(r *Resolver) {
		r.overrides = cfg
	}
}

// WithResolverHTTPClient sets the client handed to relayer instances.
func WithResolverHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = c
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver. loader may be nil when only development
// chains are expected.
func NewResolver(loader *RelayerLoader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		loader:     loader,
		mockChains: config.DefaultMockChains(),
		dial:       dialRPC,
		httpClient: http.DefaultClient,
		logger:     log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("module", "fhevm-resolver")
	return r
}

// CreateInstanceFromURL dials url and resolves an instance for the chain behind it.
func (r *Resolver) CreateInstanceFromURL(ctx context.Context, url string) (Instance, error) {
	p, err := r.dial(ctx, url)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrProviderUnavailable, "dial %s", url)
	}
	return r.resolve(ctx, p, url)
}

// CreateInstance resolves an instance for the chain behind provider.
func (r *Resolver) CreateInstance(ctx context.Context, provider Provider) (Instance, error) {
	return r.resolve(ctx, provider, "")
}

func (r *Resolver) notify(s Status) {
	if r.onStatus != nil {
		r.onStatus(s)
	}
}

func (r *Resolver) resolve(ctx context.Context, provider Provider, rpcURL string) (Instance, error) {
	chainID, err := ChainIDOf(ctx, provider)
	if err != nil {
		return nil, err
	}

	if mockURL, ok := r.mockChains[chainID]; ok {
		probe := provider
		if rpcURL == "" {
			rpcURL = mockURL
			if probe, err = r.dial(ctx, mockURL); err != nil {
				r.logger.Warn("Failed to dial development node", "url", mockURL, "error", err)
				probe = nil
			}
		}

		if probe != nil {
			if meta, ok := r.fetchHardhatMetadata(ctx, probe); ok {
				r.notify(StatusCreatingMock)
				cop, err := r.coprocessor(ctx)
				if err != nil {
					return nil, err
				}
				inst := NewMockInstance(chainID, rpcURL, meta, cop, append([]MockOption{WithMockLogger(r.logger)}, r.mockOpts...)...)
				r.logger.Info("Created mock instance", "chain_id", chainID, "rpc", rpcURL)
				r.notify(StatusReady)
				return inst, nil
			}
		}
	}

	return r.createRemote(ctx, chainID)
}

func (r *Resolver) createRemote(ctx context.Context, chainID uint64) (Instance, error) {
	if r.loader == nil {
		return nil, clienterrors.NewSDKLoadError(fmt.Sprintf("no relayer configured for chain %d", chainID), nil)
	}

	if !r.loader.IsLoaded() {
		r.notify(StatusSDKLoading)
		if err := r.loader.Load(ctx); err != nil {
			return nil, err
		}
		r.notify(StatusSDKLoaded)
	}

	if !r.loader.IsInitialized() {
		r.notify(StatusSDKInitializing)
		if err := r.loader.Init(ctx); err != nil {
			return nil, err
		}
		r.notify(StatusSDKInitialized)
	}

	cfg := mergeRelayerConfig(*r.loader.Config(), r.overrides)
	if !common.IsHexAddress(cfg.ACLAddress) {
		return nil, clienterrors.NewConfigurationError("aclContractAddress", cfg.ACLAddress)
	}

	r.notify(StatusCreating)
	inst := NewRelayerInstance(chainID, r.loader.BaseURL(), cfg, r.httpClient, r.logger)
	r.logger.Info("Created relayer instance", "chain_id", chainID, "relayer", r.loader.BaseURL())
	r.notify(StatusReady)
	return inst, nil
}

func (r *Resolver) coprocessor(ctx context.Context) (*Coprocessor, error) {
	r.copMu.Lock()
	defer r.copMu.Unlock()
	if r.cop != nil {
		return r.cop, nil
	}
	cop, err := OpenCoprocessor(ctx, append([]CoprocessorOption{WithCoprocessorLogger(r.logger)}, r.copOpts...)...)
	if err != nil {
		return nil, err
	}
	r.cop = cop
	return cop, nil
}

// fetchHardhatMetadata returns the node metadata when the node is a hardhat
// node exposing all three fhevm contract addresses. Every failure means "not a
// development node".
func (r *Resolver) fetchHardhatMetadata(ctx context.Context, p Provider) (RelayerMetadata, bool) {
	var version string
	if err := p.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		r.logger.Warn("Not a FHEVM hardhat node", "error", err)
		return RelayerMetadata{}, false
	}
	if !strings.Contains(strings.ToLower(version), "hardhat") {
		return RelayerMetadata{}, false
	}

	var raw map[string]any
	if err := p.CallContext(ctx, &raw, "fhevm_relayer_metadata"); err != nil {
		r.logger.Warn("Not a FHEVM hardhat node", "error", err)
		return RelayerMetadata{}, false
	}

	addrs := make(map[string]common.Address, 3)
	for _, key := range []string{"ACLAddress", "InputVerifierAddress", "KMSVerifierAddress"} {
		s, ok := raw[key].(string)
		if !ok || !common.IsHexAddress(s) {
			r.logger.Warn("Incomplete fhevm relayer metadata", "missing", key)
			return RelayerMetadata{}, false
		}
		addrs[key] = common.HexToAddress(s)
	}

	return RelayerMetadata{
		ACLAddress:           addrs["ACLAddress"],
		InputVerifierAddress: addrs["InputVerifierAddress"],
		KMSVerifierAddress:   addrs["KMSVerifierAddress"],
	}, true
}

// ChainIDOf queries eth_chainId.
func ChainIDOf(ctx context.Context, p Provider) (uint64, error) {
	var hex string
	if err := p.CallContext(ctx, &hex, "eth_chainId"); err != nil {
		return 0, clienterrors.WrapError(err, clienterrors.ErrProviderUnavailable, "eth_chainId")
	}
	id, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, clienterrors.WrapError(err, clienterrors.ErrProviderUnavailable, "decode chain id %q", hex)
	}
	return id, nil
}

func mergeRelayerConfig(base, over RelayerConfig) RelayerConfig {
	if over.NetworkPublicKey != "" {
		base.NetworkPublicKey = over.NetworkPublicKey
	}
	if over.ACLAddress != "" {
		base.ACLAddress = over.ACLAddress
	}
	if over.KMSVerifierAddress != "" {
		base.KMSVerifierAddress = over.KMSVerifierAddress
	}
	if over.InputVerifierAddress != "" {
		base.InputVerifierAddress = over.InputVerifierAddress
	}
	if over.DecryptionAddress != "" {
		base.DecryptionAddress = over.DecryptionAddress
	}
	if over.GatewayChainID != 0 {
		base.GatewayChainID = over.GatewayChainID
	}
	return base
}
