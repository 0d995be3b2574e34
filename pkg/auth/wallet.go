package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("signature does not match address")

// LoginMessage はウォレットに署名させるログインメッセージを組み立てる
func LoginMessage(addr common.Address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("Sign in to Charity Ledger\n\nAddress: %s\nNonce: %s\nIssued At: %s",
		addr.Hex(), nonce, issuedAt.UTC().Format(time.RFC3339))
}

// VerifySignature は personal_sign 形式の署名が addr によるものか検証する
func VerifySignature(addr common.Address, msg, sigHex string) error {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	// wallets send V as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != addr {
		return ErrBadSignature
	}
	return nil
}
