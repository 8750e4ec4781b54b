// Package client provides a high-level interface to CrypticScore rating
// campaigns: it resolves the encryption backend, binds the RatingManager
// ledger and wires credentials, decryption and statistics together.
package client

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"gorm.io/gorm"

	"github.com/ChapmaBeerbohm/crypticscore/client/config"
	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
	"github.com/ChapmaBeerbohm/crypticscore/client/decrypt"
	"github.com/ChapmaBeerbohm/crypticscore/client/fhevm"
	"github.com/ChapmaBeerbohm/crypticscore/client/keys"
	"github.com/ChapmaBeerbohm/crypticscore/client/ledger"
	"github.com/ChapmaBeerbohm/crypticscore/client/stats"
	"github.com/ChapmaBeerbohm/crypticscore/client/store"
	"github.com/ChapmaBeerbohm/crypticscore/crypto/seal"
)

// SDK represents the main entry point for the CrypticScore Go client.
type SDK struct {
	config       *config.ClientConfig
	logger       log.Logger
	instance     fhevm.Instance
	ledger       ledger.Ledger
	signer       keys.Signer
	credentials  *keys.Manager
	orchestrator *decrypt.Orchestrator
	db           *gorm.DB
	sealer       *seal.Sealer
}

// Option customizes SDK construction.
type Option func(*options)

type options struct {
	logger       log.Logger
	signer       keys.Signer
	instance     fhevm.Instance
	ledger       ledger.Ledger
	storage      keys.Storage
	sealParams   seal.Params
	resolverOpts []fhevm.ResolverOption
	clock        func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSigner sets the account used for transactions and credentials,
// overriding the configured private key.
func WithSigner(s keys.Signer) Option {
	return func(o *options) { o.signer = s }
}

// WithInstance skips backend resolution and uses inst.
func WithInstance(inst fhevm.Instance) Option {
	return func(o *options) { o.instance = inst }
}

// WithLedger skips dialing the node and uses l.
func WithLedger(l ledger.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// WithStorage sets the credential storage, overriding the configured backend.
func WithStorage(s keys.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithSealParams sets the key derivation cost of sealed credential storage.
func WithSealParams(p seal.Params) Option {
	return func(o *options) { o.sealParams = p }
}

// WithResolverOptions passes extra options to the backend resolver.
func WithResolverOptions(opts ...fhevm.ResolverOption) Option {
	return func(o *options) { o.resolverOpts = append(o.resolverOpts, opts...) }
}

// WithClock overrides the time source of credentials and campaign checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New creates an SDK for cfg. A nil cfg selects the local hardhat defaults.
func New(ctx context.Context, cfg *config.ClientConfig, opts ...Option) (*SDK, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrInvalidConfig, "client config")
	}

	o := &options{
		logger:     log.NewNopLogger(),
		sealParams: seal.DefaultParams(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	s := &SDK{config: cfg, logger: o.logger.With("module", "sdk")}

	signer := o.signer
	if signer == nil {
		if cfg.PrivateKey == "" {
			return nil, clienterrors.WrapError(fmt.Errorf("set CRYPTICSCORE_PRIVATE_KEY"), clienterrors.ErrMissingConfig, "no signer")
		}
		local, err := keys.NewLocalSignerFromHex(cfg.PrivateKey)
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrInvalidConfig, "private key")
		}
		signer = local
	}
	s.signer = signer

	storage, err := s.openStorage(cfg, o)
	if err != nil {
		return nil, err
	}
	s.credentials = keys.NewManager(storage,
		keys.WithClock(o.clock),
		keys.WithDurationDays(durationDays(cfg.CredentialDuration)),
		keys.WithLogger(o.logger),
	)

	s.ledger = o.ledger
	if s.ledger == nil {
		s.ledger, err = ledger.Dial(ctx, cfg.Network.RPC, common.HexToAddress(cfg.Network.RatingManager), signer,
			ledger.WithGasConfig(ledger.GasConfig{Adjustment: cfg.Network.GasAdjustment, MaxGasLimit: cfg.Network.GasLimit}),
			ledger.WithReceiptTimeout(cfg.Network.ReceiptTimeout),
			ledger.WithClock(o.clock),
			ledger.WithLogger(o.logger),
		)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.instance = o.instance
	if s.instance == nil {
		s.instance, err = s.resolve(ctx, cfg, o)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	s.orchestrator = decrypt.New(s.instance, s.ledger, s.credentials, signer,
		decrypt.WithConcurrency(cfg.ReadConcurrency),
		decrypt.WithLogger(o.logger),
	)

	s.logger.Info("SDK ready",
		"chain", s.instance.ChainID(),
		"mode", s.instance.Mode(),
		"contract", s.ledger.Address().Hex(),
		"account", signer.Address().Hex(),
	)
	return s, nil
}

func (s *SDK) openStorage(cfg *config.ClientConfig, o *options) (keys.Storage, error) {
	storage := o.storage
	if storage == nil {
		switch cfg.StoreBackend {
		case config.StoreSQLite:
			db, err := store.Open(cfg.StorePath, &keys.Record{}, &fhevm.CiphertextRecord{}, &fhevm.CoprocessorKeyRecord{})
			if err != nil {
				return nil, clienterrors.WrapError(err, clienterrors.ErrStorageFailed, "open %s", cfg.StorePath)
			}
			s.db = db
			storage = keys.NewDBStorage(db)
		default:
			storage = keys.NewMemoryStorage()
		}
	}

	if cfg.StorePassphrase == "" {
		return storage, nil
	}
	sealer, err := seal.New(cfg.StorePassphrase, o.sealParams)
	if err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrInvalidConfig, "store passphrase")
	}
	s.sealer = sealer
	return keys.NewSealedStorage(storage, sealer), nil
}

func (s *SDK) resolve(ctx context.Context, cfg *config.ClientConfig, o *options) (fhevm.Instance, error) {
	var loader *fhevm.RelayerLoader
	if cfg.Network.Relayer != "" {
		loader = fhevm.NewRelayerLoader(cfg.Network.Relayer, fhevm.WithLoaderLogger(o.logger))
	}

	ropts := []fhevm.ResolverOption{
		fhevm.WithMockChains(cfg.AllMockChains()),
		fhevm.WithResolverLogger(o.logger),
		fhevm.WithRelayerOverrides(fhevm.RelayerConfig{
			ACLAddress:           cfg.Network.ACL,
			KMSVerifierAddress:   cfg.Network.KMSVerifier,
			InputVerifierAddress: cfg.Network.InputVerifier,
		}),
		fhevm.WithMockOptions(fhevm.WithClock(o.clock), fhevm.WithMockLogger(o.logger)),
	}
	if s.db != nil {
		ropts = append(ropts, fhevm.WithCoprocessorOptions(
			fhevm.WithCiphertextStore(fhevm.NewDBCiphertextStore(s.db)),
			fhevm.WithKeyStore(fhevm.NewDBKeyStore(s.db, s.sealer)),
			fhevm.WithCoprocessorLogger(o.logger),
		))
	}
	ropts = append(ropts, o.resolverOpts...)

	resolveCtx, cancel := context.WithTimeout(ctx, cfg.Network.RequestTimeout)
	defer cancel()
	return fhevm.NewResolver(loader, ropts...).CreateInstanceFromURL(resolveCtx, cfg.Network.RPC)
}

func durationDays(d time.Duration) int64 {
	if d <= 0 {
		return keys.DefaultDurationDays
	}
	days := int64(d / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	return days
}

// Instance returns the resolved encryption backend.
func (s *SDK) Instance() fhevm.Instance { return s.instance }

// Ledger returns the RatingManager ledger.
func (s *SDK) Ledger() ledger.Ledger { return s.ledger }

// Signer returns the SDK account.
func (s *SDK) Signer() keys.Signer { return s.signer }

// Credentials returns the credential manager.
func (s *SDK) Credentials() *keys.Manager { return s.credentials }

// Orchestrator returns the decryption orchestrator.
func (s *SDK) Orchestrator() *decrypt.Orchestrator { return s.orchestrator }

// Config returns the SDK configuration.
func (s *SDK) Config() *config.ClientConfig { return s.config }

// CreateCampaign creates a campaign owned by the SDK account.
func (s *SDK) CreateCampaign(ctx context.Context, params ledger.CampaignParams) (uint64, *types.Receipt, error) {
	return s.ledger.CreateCampaign(ctx, params)
}

// SubmitScores encrypts one 32-bit value per dimension and submits them.
// Scores must lie in [1, scaleMax] and match the campaign's dimension count.
func (s *SDK) SubmitScores(ctx context.Context, campaignID uint64, scores []uint32) (*types.Receipt, error) {
	c, err := s.ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(c.Dimensions) {
		return nil, clienterrors.WrapError(
			fmt.Errorf("got %d scores for %d dimensions", len(scores), len(c.Dimensions)),
			clienterrors.ErrDimensionMismatch, "campaign %d", campaignID)
	}
	for i, v := range scores {
		if v < 1 || v > uint32(c.ScaleMax) {
			return nil, clienterrors.WrapError(
				fmt.Errorf("score %d for %s is outside 1..%d", v, c.Dimensions[i], c.ScaleMax),
				clienterrors.ErrInvalidScale, "campaign %d", campaignID)
		}
	}

	b := s.instance.CreateEncryptedInput(s.ledger.Address(), s.signer.Address())
	for _, v := range scores {
		b = b.Add32(v)
	}
	enc, err := b.Encrypt(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Submitting encrypted rating", "campaign", campaignID, "handles", len(enc.Handles))
	return s.ledger.SubmitEncryptedRating(ctx, campaignID, enc.Handles, enc.InputProof)
}

// Results is the decrypted outcome of a campaign.
type Results struct {
	Campaign *ledger.Campaign      `json:"campaign"`
	Records  []decrypt.ScoreRecord `json:"records"`
	Summary  stats.Summary         `json:"summary"`
}

// Results decrypts every score of a campaign and summarizes them. The SDK
// account must be allowed to decrypt the handles.
func (s *SDK) Results(ctx context.Context, campaignID uint64) (*Results, error) {
	c, err := s.ledger.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	records, err := s.orchestrator.DecryptCampaignScores(ctx, campaignID, len(c.Dimensions))
	if err != nil {
		return nil, err
	}
	return &Results{
		Campaign: c,
		Records:  records,
		Summary:  stats.Summarize(decrypt.Scores(records), len(c.Dimensions)),
	}, nil
}

// ListCampaigns reads every campaign.
func (s *SDK) ListCampaigns(ctx context.Context) ([]*ledger.Campaign, error) {
	return ledger.ListCampaigns(ctx, s.ledger)
}

// MyCampaigns reads the campaigns created by the SDK account.
func (s *SDK) MyCampaigns(ctx context.Context) ([]*ledger.Campaign, error) {
	return ledger.CampaignsByCreator(ctx, s.ledger, s.signer.Address())
}

// Close releases the credential database, if any.
func (s *SDK) Close() error {
	return store.Close(s.db)
}

// Version returns the SDK version
func Version() string {
	return "v0.1.0"
}
