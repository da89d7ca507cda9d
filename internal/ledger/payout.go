package ledger

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"serotonyl.ru/referral-ledger/internal/common"
)

const (
	maxPayoutKeyLen    = 140
	maxHolderNameLen   = 200
	minPhoneDigits     = 10
	maxPhoneDigits     = 15
	taxIDPersonDigits  = 11
	taxIDCompanyDigits = 14
)

// Normalize убирает пробелы по краям и приводит email к нижнему регистру.
func (p PayoutDescriptor) Normalize() PayoutDescriptor {
	p.KeyType = PayoutKeyType(strings.ToLower(strings.TrimSpace(string(p.KeyType))))
	p.Key = strings.TrimSpace(p.Key)
	p.HolderName = strings.Join(strings.Fields(p.HolderName), " ")
	if p.KeyType == PayoutKeyEmail {
		p.Key = strings.ToLower(p.Key)
	}
	return p
}

// Validate проверяет реквизиты; ошибка оборачивает common.ErrInvalidPayoutDescriptor.
func (p PayoutDescriptor) Validate() error {
	if p.HolderName == "" || len([]rune(p.HolderName)) > maxHolderNameLen {
		return invalidPayout("holder name is required")
	}
	if p.Key == "" || len(p.Key) > maxPayoutKeyLen {
		return invalidPayout("payout key is required")
	}

	switch p.KeyType {
	case PayoutKeyTaxID:
		if n := countDigits(p.Key); n != taxIDPersonDigits && n != taxIDCompanyDigits || !onlyChars(p.Key, "0123456789.-/") {
			return invalidPayout("tax id must have 11 or 14 digits")
		}
	case PayoutKeyEmail:
		addr, err := mail.ParseAddress(p.Key)
		if err != nil || addr.Address != p.Key {
			return invalidPayout("invalid email key")
		}
	case PayoutKeyPhone:
		if n := countDigits(p.Key); n < minPhoneDigits || n > maxPhoneDigits || !onlyChars(p.Key, "0123456789+ -()") {
			return invalidPayout("invalid phone key")
		}
	case PayoutKeyRandom:
		if _, err := uuid.Parse(p.Key); err != nil {
			return invalidPayout("random key must be a UUID")
		}
	default:
		return invalidPayout("unknown key type")
	}
	return nil
}

func invalidPayout(reason string) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidPayoutDescriptor, reason)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func onlyChars(s, allowed string) bool {
	for _, r := range s {
		if !strings.ContainsRune(allowed, r) {
			return false
		}
	}
	return true
}
