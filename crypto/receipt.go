package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Receipt is the signed proof that a submission was credited. Anyone holding
// the signer address can check it offline.
type Receipt struct {
	SubmissionID   string `json:"submissionId"`
	SubmitterID    string `json:"submitterId"`
	ServerSeedHash string `json:"serverSeedHash"`
	Nonce          int64  `json:"nonce"`
	MineCount      int    `json:"mineCount"`
	Outcome        []int  `json:"outcome"`
	IssuedAt       int64  `json:"issuedAt"` // unix seconds
	Signer         string `json:"signer"`
	Signature      string `json:"signature"` // 0x-prefixed, 65 bytes
}

// ReceiptSigner signs receipts with a secp256k1 key
type ReceiptSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewReceiptSigner loads a hex private key. An empty key generates an
// ephemeral one, so receipts only verify against this process's address.
func NewReceiptSigner(privateKeyHex string) (*ReceiptSigner, error) {
	var (
		privateKey *ecdsa.PrivateKey
		err        error
	)

	if privateKeyHex == "" {
		privateKey, err = ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate receipt key: %w", err)
		}
		log.Println("⚠️  RECEIPT_PRIVATE_KEY not set, using an ephemeral receipt key")
	} else {
		privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
		privateKey, err = ethcrypto.HexToECDSA(privateKeyHex)
		if err != nil {
			return nil, fmt.Errorf("failed to parse receipt key: %w", err)
		}
	}

	return &ReceiptSigner{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address is the public identity receipts are checked against
func (s *ReceiptSigner) Address() string {
	return s.address.Hex()
}

// Sign fills in Signer and Signature
func (s *ReceiptSigner) Sign(r *Receipt) error {
	r.Signer = s.address.Hex()

	sig, err := ethcrypto.Sign(receiptDigest(r), s.privateKey)
	if err != nil {
		return fmt.Errorf("failed to sign receipt: %w", err)
	}

	r.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// VerifyReceipt recovers the signing address and compares it with the
// receipt's declared signer and, when non-empty, the expected one
func VerifyReceipt(r Receipt, expectedSigner string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}

	pub, err := ethcrypto.SigToPub(receiptDigest(&r), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(r.Signer) {
		return fmt.Errorf("signature mismatch: declared %s, recovered %s", r.Signer, recovered.Hex())
	}
	if expectedSigner != "" && recovered != common.HexToAddress(expectedSigner) {
		return fmt.Errorf("unexpected signer: expected %s, got %s", expectedSigner, recovered.Hex())
	}

	return nil
}

// receiptDigest length-prefixes every free-form field so no two distinct
// receipts encode to the same bytes
func receiptDigest(r *Receipt) []byte {
	cells := make([]string, len(r.Outcome))
	for i, c := range r.Outcome {
		cells[i] = strconv.Itoa(c)
	}

	var b strings.Builder
	b.WriteString("Receipt")
	for _, field := range []string{r.SubmissionID, r.SubmitterID, r.ServerSeedHash} {
		fmt.Fprintf(&b, ":%d:%s", len(field), field)
	}
	fmt.Fprintf(&b, ":%d:%d:%s:%d", r.Nonce, r.MineCount, strings.Join(cells, ","), r.IssuedAt)

	return ethcrypto.Keccak256Hash([]byte(b.String())).Bytes()
}
