package wallet

import (
	"crypto/ed25519"
	"fmt"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/pkg/crypto"
	"github.com/emberwallet/ember-core/pkg/types"
)

// session holds the decrypted seed of the currently unlocked wallet. It is
// the only place decrypted key material lives, and Close wipes it. Keys
// are derived on demand per signing operation and wiped by the caller, so
// no long-lived private scalar sits outside this struct.
type session struct {
	walletID string
	seed     *crypto.SecureBytes
	network  types.Network
}

func newSession(walletID string, seed []byte, network types.Network) *session {
	// NewSecureBytes takes ownership and zeroes the source.
	return &session{
		walletID: walletID,
		seed:     crypto.NewSecureBytes(seed),
		network:  network,
	}
}

// accountKey derives the signing key for (chain, account) under the
// standard m/44'/coin'/account'/0/0 path. The caller must Wipe it.
func (s *session) accountKey(chain types.Chain, account uint32) (*hdkey.HDKey, error) {
	seed, err := s.seed.Bytes()
	if err != nil {
		return nil, fmt.Errorf("session closed: %w", err)
	}
	master, err := hdkey.NewMaster(seed)
	if err != nil {
		return nil, err
	}
	defer master.Wipe()

	key, err := master.Derive(hdkey.DefaultPath(chain, account))
	if err != nil {
		return nil, err
	}
	return key, nil
}

// accountAddress derives the receive address for (chain, account).
func (s *session) accountAddress(chain types.Chain, account uint32) (string, error) {
	key, err := s.accountKey(chain, account)
	if err != nil {
		return "", err
	}
	defer key.Wipe()
	return addressForKey(key, chain, s.network)
}

// addressForKey encodes the chain's default address form for a derived key.
// Solana addresses come from the Ed25519 key seeded by the derived scalar.
func addressForKey(key *hdkey.HDKey, chain types.Chain, network types.Network) (string, error) {
	if chain == types.ChainSolana {
		edKey, err := crypto.Ed25519KeyFromSeed(key.PrivateKeyBytes())
		if err != nil {
			return "", err
		}
		defer crypto.WipeEd25519(edKey)
		pub := edKey.Public().(ed25519.PublicKey)
		return address.Derive(pub, network, address.FormatSolana)
	}
	return address.Derive(key.PublicKeyBytes(), network, address.DefaultFormat(chain))
}

// close wipes the seed. Safe to call twice.
func (s *session) close() {
	if s != nil && s.seed != nil {
		s.seed.Wipe()
	}
}
