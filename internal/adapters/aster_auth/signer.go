package aster_auth

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/charleschow/funding-arb/internal/telemetry"
)

const recvWindow = "50000"

var signedArgs = mustArgs("string", "address", "address", "uint256")

// Signer implements Aster Pro API request signing: the sorted JSON of the
// request params is ABI-encoded with the user, signer and a microsecond
// nonce, hashed with keccak256 and signed as an EIP-191 personal message by
// the signer key.
type Signer struct {
	user   common.Address
	signer common.Address
	key    *ecdsa.PrivateKey
	now    func() time.Time
}

func NewSigner(user, signer, privateKeyHex string) (*Signer, error) {
	if !common.IsHexAddress(user) {
		return nil, fmt.Errorf("aster: invalid wallet address %q", user)
	}
	if !common.IsHexAddress(signer) {
		return nil, fmt.Errorf("aster: invalid signer address %q", signer)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("aster: parse private key: %w", err)
	}
	s := &Signer{
		user:   common.HexToAddress(user),
		signer: common.HexToAddress(signer),
		key:    key,
		now:    time.Now,
	}
	if derived := crypto.PubkeyToAddress(key.PublicKey); derived != s.signer {
		telemetry.Warnf("aster_auth: private key belongs to %s, not signer %s", derived.Hex(), s.signer.Hex())
	}
	return s, nil
}

// User is the wallet the API acts for.
func (s *Signer) User() common.Address { return s.user }

// Sign returns params plus recvWindow, timestamp, nonce, user, signer and
// signature, ready to be sent as a query string.
func (s *Signer) Sign(params map[string]string) (url.Values, error) {
	now := s.now()
	all := make(map[string]string, len(params)+2)
	for k, v := range params {
		all[k] = v
	}
	all["recvWindow"] = recvWindow
	all["timestamp"] = strconv.FormatInt(now.UnixMilli(), 10)

	payload, err := canonicalJSON(all)
	if err != nil {
		return nil, err
	}
	nonce := big.NewInt(now.UnixMicro())

	sig, err := s.signPayload(payload, nonce)
	if err != nil {
		return nil, err
	}

	out := url.Values{}
	for k, v := range all {
		out.Set(k, v)
	}
	out.Set("nonce", nonce.String())
	out.Set("user", s.user.Hex())
	out.Set("signer", s.signer.Hex())
	out.Set("signature", hexutil.Encode(sig))
	return out, nil
}

func (s *Signer) signPayload(payload string, nonce *big.Int) ([]byte, error) {
	digest, err := Digest(payload, s.user, s.signer, nonce)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(digest), s.key)
	if err != nil {
		return nil, fmt.Errorf("aster: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Digest is keccak256(abi.encode(payload, user, signer, nonce)).
func Digest(payload string, user, signer common.Address, nonce *big.Int) ([]byte, error) {
	packed, err := signedArgs.Pack(payload, user, signer, nonce)
	if err != nil {
		return nil, fmt.Errorf("aster: abi encode: %w", err)
	}
	return crypto.Keccak256(packed), nil
}

// canonicalJSON renders params with sorted keys and no whitespace.
func canonicalJSON(params map[string]string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("aster: encode params: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}
