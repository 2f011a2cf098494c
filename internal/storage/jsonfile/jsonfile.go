// Package jsonfile persists all ledgers in one JSON document, rewritten in
// full on every mutation. The layout is compatible with data.json files
// produced by the earlier bot: per user, one list per kind.
package jsonfile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

type (
	// record is one serialized transaction. Loan direction fields follow the
	// original names: "from"/"returned" for borrows, "to"/"received" for lends.
	record struct {
		ID          string      `json:"id,omitempty"`
		Seq         int64       `json:"seq,omitempty"`
		Amount      json.Number `json:"amount"`
		Description string      `json:"description"`
		Date        string      `json:"date"`
		Type        string      `json:"type,omitempty"`
		From        string      `json:"from,omitempty"`
		To          string      `json:"to,omitempty"`
		Returned    *bool       `json:"returned,omitempty"`
		Received    *bool       `json:"received,omitempty"`
	}

	userData struct {
		// Salary is carried from older files as-is; nothing reads it.
		Salary   json.RawMessage `json:"salary,omitempty"`
		Credits  []record        `json:"credits"`
		Debits   []record        `json:"debits"`
		Savings  []record        `json:"savings"`
		Borrowed []record        `json:"borrowed"`
		Lent     []record        `json:"lent"`
	}

	// Store is a whole-file ledger backend.
	Store struct {
		mu   sync.Mutex
		path string
		loc  *time.Location
		data map[string]*userData
	}
)

// Open loads path if it exists; a missing file is an empty store.
func Open(path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{path: path, loc: loc, data: make(map[string]*userData)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse ledger file %s: %w", path, err)
	}
	for user, ud := range s.data {
		if ud == nil {
			s.data[user] = &userData{}
		}
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) EnsureUser(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[user]; ok {
		return nil
	}
	s.data[user] = &userData{}
	if err := s.save(); err != nil {
		delete(s.data, user)
		return err
	}
	return nil
}

// Users returns user IDs sorted for a stable report order.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.data))
	for u := range s.data {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (s *Store) Load(_ context.Context, user string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ud, ok := s.data[user]
	if !ok {
		return nil, nil
	}
	return s.decodeUser(user, ud)
}

func (s *Store) Append(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ud, ok := s.data[tx.UserID]
	if !ok {
		ud = &userData{}
		s.data[tx.UserID] = ud
	}
	list := ud.list(tx.Kind)
	prev := *list
	*list = append(append([]record(nil), prev...), encode(tx, s.loc))

	if err := s.save(); err != nil {
		*list = prev
		if !ok {
			delete(s.data, tx.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) MarkSettled(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ud, ok := s.data[tx.UserID]
	if !ok || !tx.Kind.IsLoan() {
		return fmt.Errorf("%w: transaction %s", core.ErrNotFound, tx.ID)
	}
	list := ud.list(tx.Kind)
	for i := range *list {
		r := &(*list)[i]
		if recordID(tx.UserID, tx.Kind, i, *r) != tx.ID {
			continue
		}
		prev := *r
		if r.ID == "" {
			r.ID = tx.ID
		}
		settled := true
		if tx.Kind == core.Borrow {
			r.Returned = &settled
		} else {
			r.Received = &settled
		}
		if err := s.save(); err != nil {
			*r = prev
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: transaction %s", core.ErrNotFound, tx.ID)
}

// save overwrites the file via a temp file and rename. Callers hold s.mu.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return fmt.Errorf("encode ledger file: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

func (ud *userData) list(kind core.Kind) *[]record {
	switch kind {
	case core.Income:
		return &ud.Credits
	case core.Expense:
		return &ud.Debits
	case core.Saving:
		return &ud.Savings
	case core.Borrow:
		return &ud.Borrowed
	default:
		return &ud.Lent
	}
}

func (s *Store) decodeUser(user string, ud *userData) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, kind := range core.Kinds() {
		for i, r := range *ud.list(kind) {
			tx, err := decode(user, kind, i, r, s.loc)
			if err != nil {
				return nil, err
			}
			out = append(out, tx)
		}
	}
	// Records written before seq existed sort first, by date.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Seq == 0) != (b.Seq == 0) {
			return a.Seq == 0
		}
		if a.Seq == 0 {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Seq < b.Seq
	})
	var last int64
	for i := range out {
		if out[i].Seq == 0 {
			out[i].Seq = int64(i + 1)
		}
		if out[i].Seq <= last {
			out[i].Seq = last + 1
		}
		last = out[i].Seq
	}
	return out, nil
}

func encode(tx core.Transaction, loc *time.Location) record {
	r := record{
		ID:          tx.ID,
		Seq:         tx.Seq,
		Amount:      json.Number(tx.Amount.String()),
		Description: tx.Note,
		Date:        tx.Timestamp.In(loc).Format(core.TimestampLayout),
	}
	settled := tx.Settled
	switch tx.Kind {
	case core.Income:
		r.Type = "credit"
	case core.Expense:
		r.Type = "debit"
	case core.Saving:
		r.Type = "saving"
	case core.Borrow:
		r.From = tx.Counterparty
		r.Returned = &settled
	case core.Lend:
		r.To = tx.Counterparty
		r.Received = &settled
	}
	return r
}

func decode(user string, kind core.Kind, index int, r record, loc *time.Location) (core.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q for user %s: %w", r.Amount, user, err)
	}
	ts, err := time.ParseInLocation(core.TimestampLayout, r.Date, loc)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q for user %s: %w", r.Date, user, err)
	}
	tx := core.Transaction{
		ID:        recordID(user, kind, index, r),
		UserID:    user,
		Seq:       r.Seq,
		Kind:      kind,
		Amount:    amount,
		Note:      r.Description,
		Timestamp: ts,
		Settled:   true,
	}
	switch kind {
	case core.Borrow:
		tx.Counterparty = r.From
		tx.Settled = r.Returned != nil && *r.Returned
	case core.Lend:
		tx.Counterparty = r.To
		tx.Settled = r.Received != nil && *r.Received
	}
	return tx, nil
}

// recordID returns the stored ID, or a deterministic one for records that
// predate IDs so they can still be settled by reference.
func recordID(user string, kind core.Kind, index int, r record) string {
	if r.ID != "" {
		return r.ID
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s/%s/%d/%s", user, kind, index, r.Date)))
	return "legacy-" + hex.EncodeToString(sum[:8])
}
