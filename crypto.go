package pqkex

import (
	"crypto/ecdh"
	"crypto/mlkem"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

// ECDHPrivateKey is an ephemeral classical Diffie-Hellman private key, held
// open only for the lifetime of one handshake.
type ECDHPrivateKey interface {
	// PublicKeyBytes returns the wire encoding of the public half.
	PublicKeyBytes() []byte
	// ECDH computes the shared secret with a peer's public key bytes.
	ECDH(peerPublicKey []byte) ([]byte, error)
}

// ECDHProvider generates ephemeral key pairs for a classical curve. The
// default implementation wraps crypto/ecdh, dispatching curve by curve in
// a generateECDHEKey-style switch rather than a single generic entry point.
type ECDHProvider interface {
	GenerateKey(curve EcCurve) (ECDHPrivateKey, error)
}

// KEMPrivateKey is an ephemeral KEM private (decapsulation) key.
type KEMPrivateKey interface {
	PublicKeyBytes() []byte
	Decapsulate(ciphertext []byte) ([]byte, error)
}

// KEMProvider generates ephemeral KEM key pairs and encapsulates against a
// peer's public key. Encapsulate is only ever called by whichever side did
// not generate the key pair (the encapsulating side never holds a
// KEMPrivateKey for the group it's encapsulating against).
type KEMProvider interface {
	GenerateKey(ref KemRef) (KEMPrivateKey, error)
	Encapsulate(ref KemRef, peerPublicKey []byte) (ciphertext, sharedSecret []byte, err error)
}

// stdECDHProvider implements ECDHProvider over crypto/ecdh's unified
// curve/key.ECDH()/key.PublicKey().Bytes() API.
type stdECDHProvider struct{}

func ecdhCurve(c EcCurve) (ecdh.Curve, error) {
	switch c.IANAID {
	case CurveX25519:
		return ecdh.X25519(), nil
	case CurveSecP256R1:
		return ecdh.P256(), nil
	case CurveSecP384R1:
		return ecdh.P384(), nil
	case CurveSecP521R1:
		return ecdh.P521(), nil
	default:
		return nil, wrapError(Unavailable, "no ecdh.Curve for "+c.Name, nil)
	}
}

func (stdECDHProvider) GenerateKey(c EcCurve) (ECDHPrivateKey, error) {
	curve, err := ecdhCurve(c)
	if err != nil {
		return nil, err
	}
	key, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, wrapError(CryptoFailure, "ecdh key generation failed for "+c.Name, err)
	}
	return &stdECDHKey{curve: curve, key: key}, nil
}

type stdECDHKey struct {
	curve ecdh.Curve
	key   *ecdh.PrivateKey
}

func (k *stdECDHKey) PublicKeyBytes() []byte { return k.key.PublicKey().Bytes() }

func (k *stdECDHKey) ECDH(peerPublicKey []byte) ([]byte, error) {
	peer, err := k.curve.NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, wrapError(CryptoFailure, "invalid peer ecdh public key", err)
	}
	secret, err := k.key.ECDH(peer)
	if err != nil {
		return nil, wrapError(CryptoFailure, "ecdh computation failed", err)
	}
	return secret, nil
}

// circlKEMProvider implements KEMProvider for the Kyber round-3 algorithms
// via circl's generic kem.Scheme interface, grounded on crypto/kem/kem.go's
// GenerateKey/Encapsulate dispatch (schemes.ByName, DeriveKeyPair,
// EncapsulateDeterministically, SeedSize/EncapsulationSeedSize).
type circlKEMProvider struct{}

func circlScheme(ref KemRef) (kem.Scheme, error) {
	s := schemes.ByName(ref.circlName)
	if s == nil {
		return nil, wrapError(Unavailable, "circl scheme not registered: "+ref.circlName, nil)
	}
	return s, nil
}

func (circlKEMProvider) GenerateKey(ref KemRef) (KEMPrivateKey, error) {
	scheme, err := circlScheme(ref)
	if err != nil {
		return nil, err
	}
	seed := make([]byte, scheme.SeedSize())
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, wrapError(CryptoFailure, "rng failure generating kem seed", err)
	}
	pub, priv := scheme.DeriveKeyPair(seed)
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, wrapError(CryptoFailure, "marshaling circl public key", err)
	}
	return &circlKEMKey{scheme: scheme, priv: priv, pubBytes: pubBytes}, nil
}

func (circlKEMProvider) Encapsulate(ref KemRef, peerPublicKey []byte) ([]byte, []byte, error) {
	scheme, err := circlScheme(ref)
	if err != nil {
		return nil, nil, err
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(peerPublicKey)
	if err != nil {
		return nil, nil, wrapError(IllegalParameter, "invalid circl public key", err)
	}
	seed := make([]byte, scheme.EncapsulationSeedSize())
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, nil, wrapError(CryptoFailure, "rng failure generating encapsulation seed", err)
	}
	ct, ss, err := scheme.EncapsulateDeterministically(pub, seed)
	if err != nil {
		return nil, nil, wrapError(CryptoFailure, "kem encapsulation failed", err)
	}
	return ct, ss, nil
}

type circlKEMKey struct {
	scheme   kem.Scheme
	priv     kem.PrivateKey
	pubBytes []byte
}

func (k *circlKEMKey) PublicKeyBytes() []byte { return k.pubBytes }

func (k *circlKEMKey) Decapsulate(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != k.scheme.CiphertextSize() {
		return nil, newError(DecodeError, fmt.Sprintf("kem ciphertext is %d bytes, want %d", len(ciphertext), k.scheme.CiphertextSize()))
	}
	ss, err := k.scheme.Decapsulate(k.priv, ciphertext)
	if err != nil {
		// Per RFC 9180-style KEM guidance and spec.md §7, decapsulation
		// failure must not be distinguishable from success at this layer;
		// the caller maps this to CryptoFailure -> alertInternalError
		// rather than a more specific alert.
		return nil, wrapError(CryptoFailure, "kem decapsulation failed", err)
	}
	return ss, nil
}

// mlkemProvider implements KEMProvider for ML-KEM-768/1024 over the standard
// library's crypto/mlkem package (FIPS 203), grounded on the filippo.io/
// mlkem768 reference adapter's GenerateKey/Encapsulate/Decapsulate shape,
// adjusted to the stdlib package's own method names.
type mlkemProvider struct{}

func (mlkemProvider) GenerateKey(ref KemRef) (KEMPrivateKey, error) {
	switch ref.mlkemSize {
	case 768:
		dk, err := mlkem.GenerateKey768()
		if err != nil {
			return nil, wrapError(CryptoFailure, "mlkem768 key generation failed", err)
		}
		return &mlkem768Key{dk: dk}, nil
	case 1024:
		dk, err := mlkem.GenerateKey1024()
		if err != nil {
			return nil, wrapError(CryptoFailure, "mlkem1024 key generation failed", err)
		}
		return &mlkem1024Key{dk: dk}, nil
	default:
		return nil, wrapError(Unavailable, "unsupported ml-kem size", nil)
	}
}

func (mlkemProvider) Encapsulate(ref KemRef, peerPublicKey []byte) ([]byte, []byte, error) {
	switch ref.mlkemSize {
	case 768:
		ek, err := mlkem.NewEncapsulationKey768(peerPublicKey)
		if err != nil {
			return nil, nil, wrapError(IllegalParameter, "invalid mlkem768 encapsulation key", err)
		}
		sharedSecret, ciphertext := ek.Encapsulate()
		return ciphertext, sharedSecret, nil
	case 1024:
		ek, err := mlkem.NewEncapsulationKey1024(peerPublicKey)
		if err != nil {
			return nil, nil, wrapError(IllegalParameter, "invalid mlkem1024 encapsulation key", err)
		}
		sharedSecret, ciphertext := ek.Encapsulate()
		return ciphertext, sharedSecret, nil
	default:
		return nil, nil, wrapError(Unavailable, "unsupported ml-kem size", nil)
	}
}

type mlkem768Key struct{ dk *mlkem.DecapsulationKey768 }

func (k *mlkem768Key) PublicKeyBytes() []byte { return k.dk.EncapsulationKey().Bytes() }
func (k *mlkem768Key) Decapsulate(ciphertext []byte) ([]byte, error) {
	ss, err := k.dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, wrapError(CryptoFailure, "mlkem768 decapsulation failed", err)
	}
	return ss, nil
}

type mlkem1024Key struct{ dk *mlkem.DecapsulationKey1024 }

func (k *mlkem1024Key) PublicKeyBytes() []byte { return k.dk.EncapsulationKey().Bytes() }
func (k *mlkem1024Key) Decapsulate(ciphertext []byte) ([]byte, error) {
	ss, err := k.dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, wrapError(CryptoFailure, "mlkem1024 decapsulation failed", err)
	}
	return ss, nil
}

// kemProviderFor dispatches a KemRef to whichever concrete provider backs
// its algorithm family. Component F is deliberately split this way, rather
// than behind one interface value, because the two provider libraries
// (circl and crypto/mlkem) have unrelated key types; a registry of
// KEMProvider values keyed by kemProvider keeps that split contained here.
func kemProviderFor(ref KemRef) KEMProvider {
	switch ref.provider {
	case kemProviderMLKEM:
		return mlkemProvider{}
	default:
		return circlKEMProvider{}
	}
}

// DefaultECDHProvider is the process-wide ECDHProvider backed by crypto/ecdh.
var DefaultECDHProvider ECDHProvider = stdECDHProvider{}

// hashFor resolves the transcript hash algorithm for a cipher suite's HKDF
// use. This core only ever negotiates TLS 1.3 AEAD suites that pair with
// SHA-256 or SHA-384, per spec.md §6.
func hashFor(name string) (func() hash.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New, nil
	case "sha384":
		return sha512.New384, nil
	default:
		return nil, wrapError(CryptoFailure, "unknown transcript hash "+name, nil)
	}
}

// HKDFExtract implements RFC 5869 Extract via golang.org/x/crypto/hkdf,
// used to fold the (EC)DHE secret this package produces into the running
// TLS 1.3 key schedule. This package does not itself compute a full TLS 1.3
// key schedule; it exposes Extract/ExpandLabel so a caller's record layer
// can chain them according to RFC 8446 §7.1.
func HKDFExtract(hashName string, secret, salt []byte) ([]byte, error) {
	h, err := hashFor(hashName)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(h, secret, salt), nil
}

// ExpandLabel implements RFC 8446 §7.1's HKDF-Expand-Label: it builds the
// HkdfLabel wire structure (length, "tls13 "+label, context) with
// cryptobyte.Builder, the same presentation-language encoder used for the
// ECH wire structures in ech/ech_config.go, then runs it through
// hkdf.Expand.
func ExpandLabel(hashName string, secret []byte, label string, context []byte, length int) ([]byte, error) {
	h, err := hashFor(hashName)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddUint16(uint16(length))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte("tls13 " + label))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	hkdfLabel, err := b.Bytes()
	if err != nil {
		return nil, wrapError(CryptoFailure, "building HkdfLabel", err)
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(h, secret, hkdfLabel), out); err != nil {
		return nil, wrapError(CryptoFailure, "hkdf expand failed", err)
	}
	return out, nil
}
