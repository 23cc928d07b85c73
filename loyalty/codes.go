package loyalty

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const DefaultCodeLength = 10

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud
// at a till.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodeGenerator produces a candidate voucher code. Uniqueness is checked by
// the caller.
type CodeGenerator func() (string, error)

// RandomCodes returns a generator of length-character codes drawn from a
// cryptographic source.
func RandomCodes(length int) CodeGenerator {
	limit := big.NewInt(int64(len(codeAlphabet)))
	return func() (string, error) {
		buf := make([]byte, length)
		for i := range buf {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", fmt.Errorf("read random: %w", err)
			}
			buf[i] = codeAlphabet[n.Int64()]
		}
		return string(buf), nil
	}
}

// uniqueCode retries the generator until it yields a code the store has
// not seen, up to attempts times. An exhausted budget means the code space
// is crowded or the generator is broken.
func uniqueCode(ctx context.Context, tx VoucherStore, gen CodeGenerator, attempts int) (string, error) {
	if attempts <= 0 {
		attempts = DefaultMaxCodeAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := gen()
		if err != nil {
			return "", err
		}
		exists, err := tx.VoucherCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check voucher code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", &CodeGenerationExhaustedError{Attempts: attempts}
}
