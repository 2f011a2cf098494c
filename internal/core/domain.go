package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
	Saving  Kind = "saving"
	Borrow  Kind = "borrow"
	Lend    Kind = "lend"
)

// TimestampLayout is the date format used in persisted records.
const TimestampLayout = "2006-01-02 15:04:05"

// MaxNoteLength bounds a note, counted in characters.
const MaxNoteLength = 200

type (
	Kind string

	// Transaction is one posted financial event in a user's ledger.
	Transaction struct {
		ID           string
		UserID       string
		Seq          int64 // 1-based insertion ordinal within the ledger
		Kind         Kind
		Amount       decimal.Decimal
		Note         string
		Counterparty string // borrow: lender, lend: borrower
		Timestamp    time.Time
		Settled      bool
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrMissingCounterparty = errors.New("counterparty required for borrow and lend")
	ErrEmptyUser           = errors.New("empty user id")
	ErrNoteTooLong         = fmt.Errorf("note too long (max %d characters)", MaxNoteLength)
	ErrNotFound            = errors.New("not found")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// Kinds lists every transaction kind in display order.
func Kinds() []Kind {
	return []Kind{Income, Expense, Saving, Borrow, Lend}
}

func (k Kind) Valid() bool {
	switch k {
	case Income, Expense, Saving, Borrow, Lend:
		return true
	}
	return false
}

// IsLoan reports whether the kind carries a counterparty and settlement state.
func (k Kind) IsLoan() bool {
	return k == Borrow || k == Lend
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts the canonical names and the aliases used by the bot commands.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "salary", "credit":
		return Income, nil
	case "expense", "spend", "debit":
		return Expense, nil
	case "saving", "save", "savings":
		return Saving, nil
	case "borrow", "borrowed":
		return Borrow, nil
	case "lend", "lent":
		return Lend, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if t.Kind.IsLoan() && strings.TrimSpace(t.Counterparty) == "" {
		return ErrMissingCounterparty
	}
	if utf8.RuneCountInString(t.Note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	return nil
}

// Pending reports whether the transaction is an unsettled loan of the given kind.
func (t Transaction) Pending(kind Kind) bool {
	return t.Kind == kind && kind.IsLoan() && !t.Settled
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
