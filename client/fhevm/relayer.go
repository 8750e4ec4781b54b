package fhevm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clienterrors "github.com/ChapmaBeerbohm/crypticscore/client/errors"
)

// RelayerInstance delegates encryption proofs and user decryption to a remote relayer.
type RelayerInstance struct {
	chainID uint64
	baseURL string
	cfg     RelayerConfig
	http    *http.Client
	logger  log.Logger
}

// NewRelayerInstance binds a loaded relayer configuration to a chain.
func NewRelayerInstance(chainID uint64, baseURL string, cfg RelayerConfig, httpClient *http.Client, logger log.Logger) *RelayerInstance {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RelayerInstance{
		chainID: chainID,
		baseURL: baseURL,
		cfg:     cfg,
		http:    httpClient,
		logger:  logger.With("module", "fhevm-relayer"),
	}
}

func (r *RelayerInstance) ChainID() uint64 { return r.chainID }

func (r *RelayerInstance) Mode() string { return ModeRelayer }

// Config returns the relayer configuration the instance was built with.
func (r *RelayerInstance) Config() RelayerConfig { return r.cfg }

type inputValueJSON struct {
	Type  FheType `json:"type"`
	Value string  `json:"value"`
}

type inputProofRequest struct {
	ContractAddress string `json:"contractAddress"`
	UserAddress     string `json:"userAddress"`
	Ciphertext      string `json:"ciphertextWithInputVerification"`
	ContractChainID string `json:"contractChainId"`
	ExtraData       string `json:"extraData"`
}

type inputProofResponse struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

func (r *RelayerInstance) CreateEncryptedInput(contract, user common.Address) InputBuilder {
	return newInputBuilder(contract, user, r.encryptInput)
}

// encryptInput seals the plaintexts to the network key; the relayer returns
// the handles and the verifier-signed proof.
func (r *RelayerInstance) encryptInput(ctx context.Context, contract, user common.Address, values []inputValue) (*EncryptedInput, error) {
	payload := make([]inputValueJSON, len(values))
	for i, v := range values {
		payload[i] = inputValueJSON{Type: v.typ, Value: v.value.String()}
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	sealed, err := sealTo(r.cfg.NetworkPublicKey, plain)
	if err != nil {
		return nil, fmt.Errorf("failed to seal input: %w", err)
	}

	var resp inputProofResponse
	err = r.post(ctx, "/v1/input-proof", inputProofRequest{
		ContractAddress: contract.Hex(),
		UserAddress:     user.Hex(),
		Ciphertext:      hexutil.Encode(sealed),
		ContractChainID: hexutil.EncodeUint64(r.chainID),
		ExtraData:       "0x00",
	}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Handles) != len(values) {
		return nil, fmt.Errorf("relayer returned %d handles for %d values", len(resp.Handles), len(values))
	}
	handles := make([]Handle, len(resp.Handles))
	for i, s := range resp.Handles {
		h, err := ParseHandle(s)
		if err != nil {
			return nil, err
		}
		handles[i] = h
	}
	proof, err := hexutil.Decode(resp.InputProof)
	if err != nil {
		return nil, fmt.Errorf("relayer returned malformed input proof: %w", err)
	}
	return &EncryptedInput{Handles: handles, InputProof: proof}, nil
}

func (r *RelayerInstance) GenerateKeypair() (Keypair, error) {
	return GenerateKeypair()
}

func (r *RelayerInstance) CreateEIP712(publicKey string, contracts []common.Address, startTimestamp, durationDays int64) (apitypes.TypedData, error) {
	verifying := r.cfg.DecryptionAddress
	if verifying == "" {
		verifying = r.cfg.KMSVerifierAddress
	}
	chainID := r.cfg.GatewayChainID
	if chainID == 0 {
		chainID = r.chainID
	}
	return NewUserDecryptTypedData(chainID, common.HexToAddress(verifying), publicKey, contracts, startTimestamp, durationDays)
}

type handleContractPairJSON struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

type requestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

type userDecryptRequestJSON struct {
	HandleContractPairs []handleContractPairJSON `json:"handleContractPairs"`
	RequestValidity     requestValidity          `json:"requestValidity"`
	ContractsChainID    string                   `json:"contractsChainId"`
	ContractAddresses   []string                 `json:"contractAddresses"`
	UserAddress         string                   `json:"userAddress"`
	Signature           string                   `json:"signature"`
	PublicKey           string                   `json:"publicKey"`
	ExtraData           string                   `json:"extraData"`
}

type userDecryptResult struct {
	Handle  string `json:"handle"`
	Payload string `json:"payload"`
}

type userDecryptResponse struct {
	Results []userDecryptResult `json:"results"`
}

// UserDecrypt sends one request for all pairs. The relayer answers with each
// value sealed to the request public key.
func (r *RelayerInstance) UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[Handle]any, error) {
	out := make(map[Handle]any, len(req.Pairs))
	if len(req.Pairs) == 0 {
		return out, nil
	}

	body := userDecryptRequestJSON{
		HandleContractPairs: make([]handleContractPairJSON, len(req.Pairs)),
		RequestValidity: requestValidity{
			StartTimestamp: strconv.FormatInt(req.StartTimestamp, 10),
			DurationDays:   strconv.FormatInt(req.DurationDays, 10),
		},
		ContractsChainID:  strconv.FormatUint(r.chainID, 10),
		ContractAddresses: make([]string, len(req.ContractAddresses)),
		UserAddress:       req.UserAddress.Hex(),
		Signature:         strip0x(req.Signature),
		PublicKey:         strip0x(req.PublicKey),
		ExtraData:         "0x00",
	}
	for i, p := range req.Pairs {
		body.HandleContractPairs[i] = handleContractPairJSON{Handle: p.Handle.String(), ContractAddress: p.Contract.Hex()}
	}
	for i, c := range req.ContractAddresses {
		body.ContractAddresses[i] = c.Hex()
	}

	var resp userDecryptResponse
	if err := r.post(ctx, "/v1/user-decrypt", body, &resp); err != nil {
		return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "relayer user decrypt")
	}

	for _, res := range resp.Results {
		h, err := ParseHandle(res.Handle)
		if err != nil {
			return nil, err
		}
		sealed, err := hexutil.Decode(res.Payload)
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "payload for %s", h)
		}
		plain, err := openWith(req.PrivateKey, sealed)
		if err != nil {
			return nil, clienterrors.WrapError(err, clienterrors.ErrDecryption, "open %s", h)
		}
		out[h] = decodeValue(h.Type(), plain)
	}

	r.logger.Debug("User decryption complete", "requested", len(req.Pairs), "returned", len(out))
	return out, nil
}

func (r *RelayerInstance) post(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return clienterrors.WrapError(err, clienterrors.ErrNetworkUnreachable, "relayer %s", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read relayer response: %w", err)
	}

	var env relayerEnvelope[json.RawMessage]
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("relayer %s returned invalid JSON (status %d): %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relayer %s returned status %d: %s", path, resp.StatusCode, env.Message)
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("relayer %s response does not match: %w", path, err)
	}
	return nil
}
