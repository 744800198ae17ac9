package usecase

import (
	"fmt"
	"math/rand/v2"
	"path"
	"strings"
	"time"

	"reparaturbonus/internal/domain/model"
)

// 26 letters + 10 digits; every symbol is equally likely.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator produces candidate bonus codes.
type CodeGenerator func() string

// GenerateCode returns an 8 character code drawn uniformly from codeAlphabet.
// It is not cryptographically strong; uniqueness is enforced by the store.
func GenerateCode() string {
	b := make([]byte, model.BonusCodeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// NormalizeCode upper-cases and trims user input before any lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCode reports whether code matches ^[A-Z0-9]{8}$.
func IsValidCode(code string) bool {
	if len(code) != model.BonusCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// ProofObjectName derives the blob name {CODE}_{unixMillis}_{filename}.
func ProofObjectName(code string, at time.Time, filename string) string {
	return fmt.Sprintf("%s_%d_%s", code, at.UnixMilli(), sanitizeFilename(filename))
}

const maxFilenameLen = 100

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" || out == "_" {
		out = "proof"
	}
	if len(out) > maxFilenameLen {
		out = out[len(out)-maxFilenameLen:]
	}
	return out
}
