package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/blindmint/cashu/cashu"
	"github.com/blindmint/cashu/cashu/nuts/nut18"
)

// PayPaymentRequest sends token to the first transport in request this
// wallet knows how to speak, per NUT-18. Transports are tried in the
// order the requester listed them.
func (w *Wallet) PayPaymentRequest(request nut18.PaymentRequest, token cashu.Token) error {
	if len(request.Mints) > 0 {
		ok := false
		for _, mint := range request.Mints {
			if mint == token.Mint() {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("token mint '%v' not accepted by payment request", token.Mint())
		}
	}

	var lastErr error
	for _, transport := range request.Transports {
		switch transport.Type {
		case nut18.TransportHTTP:
			if err := postTokenHTTP(transport.Target, token); err != nil {
				lastErr = err
				continue
			}
			return nil
		case nut18.TransportNostr:
			if err := sendTokenNostr(transport, token); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
	}

	if lastErr != nil {
		return fmt.Errorf("could not pay request over any transport: %v", lastErr)
	}
	return fmt.Errorf("payment request has no transport this wallet supports")
}

// postTokenHTTP implements the HTTP POST transport: the request body is
// a JSON object whose token field holds the serialized token, sent with
// the same httpPost helper as the other POSTs in client.go.
func postTokenHTTP(target string, token cashu.Token) error {
	serialized, err := token.Serialize()
	if err != nil {
		return fmt.Errorf("token.Serialize: %v", err)
	}

	payload, err := json.Marshal(struct {
		Token string `json:"token"`
	}{Token: serialized})
	if err != nil {
		return fmt.Errorf("json.Marshal: %v", err)
	}

	resp, err := httpPost(target, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.ReadAll(resp.Body)
	return nil
}

// RelayPublisher is the narrow surface a Nostr relay client needs to
// satisfy for the gift-wrap transport. No concrete implementation ships
// here; a caller wires one in with SetRelayPublisher before sending over
// Nostr transports.
type RelayPublisher interface {
	Publish(relayURL string, event GiftWrapEvent) error
}

var relayPublisher RelayPublisher

// SetRelayPublisher installs the relay client used by sendTokenNostr.
// Left unset, Nostr transports fail closed rather than silently no-op.
func SetRelayPublisher(p RelayPublisher) {
	relayPublisher = p
}

// GiftWrapEvent is the NIP-59-shaped envelope a token payment is
// delivered in: a kind-13 seal, signed by an ephemeral key, whose content
// is the serialized token encrypted to the recipient, wrapped inside a
// kind-1059 gift wrap signed by a second ephemeral key and tagged with
// the recipient's pubkey. The token is sealed as is; it is not put into
// a kind-9321 NutZap event first.
type GiftWrapEvent struct {
	Id        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func sendTokenNostr(transport nut18.Transport, token cashu.Token) error {
	if relayPublisher == nil {
		return fmt.Errorf("no relay publisher configured for nostr transport")
	}

	serialized, err := token.Serialize()
	if err != nil {
		return fmt.Errorf("token.Serialize: %v", err)
	}

	wrapped, err := sealAndWrap(transport.Target, serialized)
	if err != nil {
		return fmt.Errorf("sealAndWrap: %v", err)
	}

	relays := transport.Relays()
	if len(relays) == 0 {
		return fmt.Errorf("nostr transport has no relays")
	}

	var lastErr error
	for _, relay := range relays {
		if err := relayPublisher.Publish(relay, *wrapped); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// sealAndWrap builds the seal (kind 13, signed by an ephemeral key,
// content is payload encrypted to recipientPubkey) and wraps
// it (kind 1059, signed by a second, unrelated ephemeral key) per
// NIP-59. Payload encryption uses AES-256-CTR over an ECDH-derived key
// rather than NIP-44's ChaCha20, the only symmetric primitive already
// wired in this stack (crypto/aes, crypto/cipher), since no NIP-44
// library exists anywhere in the reference pack.
func sealAndWrap(recipientPubkeyHex string, payload string) (*GiftWrapEvent, error) {
	recipientPubkeyBytes, err := hex.DecodeString(recipientPubkeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient pubkey: %v", err)
	}
	recipientPubkey, err := btcec.ParsePubKey(recipientPubkeyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient pubkey: %v", err)
	}

	sealKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	sealed, err := encryptToPubkey(recipientPubkey, []byte(payload))
	if err != nil {
		return nil, err
	}

	seal := GiftWrapEvent{
		PubKey:    hex.EncodeToString(sealKey.PubKey().SerializeCompressed()),
		CreatedAt: time.Now().Unix(),
		Kind:      13,
		Content:   sealed,
	}
	if err := signEvent(&seal, sealKey); err != nil {
		return nil, err
	}
	sealBytes, err := json.Marshal(seal)
	if err != nil {
		return nil, err
	}

	wrapKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	wrappedContent, err := encryptToPubkey(recipientPubkey, sealBytes)
	if err != nil {
		return nil, err
	}

	wrap := GiftWrapEvent{
		PubKey:    hex.EncodeToString(wrapKey.PubKey().SerializeCompressed()),
		CreatedAt: time.Now().Unix(),
		Kind:      1059,
		Tags:      [][]string{{"p", recipientPubkeyHex}},
		Content:   wrappedContent,
	}
	if err := signEvent(&wrap, wrapKey); err != nil {
		return nil, err
	}

	return &wrap, nil
}

func signEvent(event *GiftWrapEvent, key *btcec.PrivateKey) error {
	id := eventId(event)
	event.Id = hex.EncodeToString(id)
	sig, err := schnorr.Sign(key, id)
	if err != nil {
		return err
	}
	event.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// eventId hashes the serialized event per NIP-01's id-computation rule.
func eventId(event *GiftWrapEvent) []byte {
	serialized, _ := json.Marshal([]any{0, event.PubKey, event.CreatedAt, event.Kind, event.Tags, event.Content})
	digest := sha256.Sum256(serialized)
	return digest[:]
}

func encryptToPubkey(pubkey *btcec.PublicKey, plaintext []byte) (string, error) {
	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	shared := btcec.GenerateSharedSecret(ephemeral, pubkey)

	block, err := aes.NewCipher(shared)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	out := make([]byte, 0, len(iv)+len(ciphertext)+len(ephemeral.PubKey().SerializeCompressed()))
	out = append(out, ephemeral.PubKey().SerializeCompressed()...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}
