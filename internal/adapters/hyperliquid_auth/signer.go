package hyperliquid_auth

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature is the {r,s,v} object attached to every exchange request.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Signer signs exchange payloads with the account's wallet key as EIP-191
// personal messages over their compact JSON.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: parse private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address is the wallet orders are placed and queried for.
func (s *Signer) Address() common.Address { return s.address }

// Sign marshals payload and signs the resulting bytes. The bytes are
// returned so the caller can send exactly what was signed.
func (s *Signer) Sign(payload any) ([]byte, Signature, error) {
	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, Signature{}, fmt.Errorf("hyperliquid: marshal payload: %w", err)
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, Signature{}, fmt.Errorf("hyperliquid: sign: %w", err)
	}
	return msg, Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: int(sig[crypto.RecoveryIDOffset]) + 27,
	}, nil
}

// Recover returns the address that produced sig over msg.
func Recover(msg []byte, sig Signature) (common.Address, error) {
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode r: %w", err)
	}
	sv, err := hexutil.Decode(sig.S)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode s: %w", err)
	}
	if len(r) != 32 || len(sv) != 32 || sig.V < 27 {
		return common.Address{}, fmt.Errorf("malformed signature")
	}
	raw := make([]byte, 65)
	copy(raw[:32], r)
	copy(raw[32:64], sv)
	raw[64] = byte(sig.V - 27)
	pub, err := crypto.SigToPub(accounts.TextHash(msg), raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
