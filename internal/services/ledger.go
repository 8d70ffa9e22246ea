package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"duit/internal/amqp"
	"duit/internal/core"
	"duit/internal/docstore"
)

// SourceKind tells which collection a fund container id belongs to.
type SourceKind string

const (
	SourceWallet  SourceKind = "wallet"
	SourceBudget  SourceKind = "budget"
	SourceUnknown SourceKind = ""
)

// LedgerService owns the fund containers and the money movements between
// them: free transfers wallet-to-anything, and the daily income/expense
// entries restricted to the current month.
type LedgerService struct {
	store  docstore.Store
	events EventPublisher
	now    func() time.Time
}

func NewLedgerService(store docstore.Store, events EventPublisher) *LedgerService {
	return &LedgerService{store: store, events: events, now: time.Now}
}

// CreateWallet persists a new empty wallet for the family.
func (s *LedgerService) CreateWallet(ctx context.Context, familyID, name, description string, initial core.Money) (*core.Wallet, core.Result, error) {
	if name == "" {
		return nil, core.Fail(core.FailInvalidName, "Nama wallet harus diisi"), nil
	}
	if initial.Units < 0 {
		return nil, core.Fail(core.FailInvalidAmount, "Saldo awal tidak boleh negatif"), nil
	}
	w := core.Wallet{
		ID:          s.store.NewID(),
		FamilyID:    familyID,
		Name:        name,
		Description: description,
		Amount:      initial,
	}
	enc, err := docstore.Encode(w)
	if err != nil {
		return nil, core.Result{}, fmt.Errorf("encode wallet: %w", err)
	}
	if err := s.store.Set(ctx, docstore.Wallets, w.ID, enc); err != nil {
		return nil, core.Result{}, fmt.Errorf("create wallet: %w", err)
	}
	return &w, core.OK(fmt.Sprintf("Wallet \"%s\" berhasil dibuat", name)), nil
}

// CreateBudget persists a new budget. Limit zero means no limit.
func (s *LedgerService) CreateBudget(ctx context.Context, familyID, name, description string, initial, limit core.Money) (*core.Budget, core.Result, error) {
	if name == "" {
		return nil, core.Fail(core.FailInvalidName, "Nama budget harus diisi"), nil
	}
	if initial.Units < 0 || limit.Units < 0 {
		return nil, core.Fail(core.FailInvalidAmount, "Nominal tidak boleh negatif"), nil
	}
	b := core.Budget{
		ID:          s.store.NewID(),
		FamilyID:    familyID,
		Name:        name,
		Description: description,
		Amount:      initial,
		Limit:       limit,
	}
	enc, err := docstore.Encode(b)
	if err != nil {
		return nil, core.Result{}, fmt.Errorf("encode budget: %w", err)
	}
	if err := s.store.Set(ctx, docstore.Budgets, b.ID, enc); err != nil {
		return nil, core.Result{}, fmt.Errorf("create budget: %w", err)
	}
	return &b, core.OK(fmt.Sprintf("Budget \"%s\" berhasil dibuat", name)), nil
}

// ListWallets returns the family's wallets sorted by name.
func (s *LedgerService) ListWallets(ctx context.Context, familyID string) ([]core.Wallet, error) {
	docs, err := s.store.QueryByField(ctx, docstore.Wallets, "familyId", familyID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	out := make([]core.Wallet, 0, len(docs))
	for _, doc := range docs {
		var w core.Wallet
		if err := docstore.Decode(doc, &w); err != nil {
			return nil, fmt.Errorf("decode wallet: %w", err)
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListBudgets returns the family's budgets sorted by name.
func (s *LedgerService) ListBudgets(ctx context.Context, familyID string) ([]core.Budget, error) {
	docs, err := s.store.QueryByField(ctx, docstore.Budgets, "familyId", familyID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.Budget, 0, len(docs))
	for _, doc := range docs {
		var b core.Budget
		if err := docstore.Decode(doc, &b); err != nil {
			return nil, fmt.Errorf("decode budget: %w", err)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// endpoint is a fund container resolved to its collection, balance, and
// owning family.
type endpoint struct {
	kind       SourceKind
	collection string
	id         string
	name       string
	familyID   string
	amount     int64
}

// resolve looks the id up as a wallet first, then as a budget.
func (s *LedgerService) resolve(ctx context.Context, id string) (endpoint, error) {
	doc, err := s.store.Get(ctx, docstore.Wallets, id)
	if err == nil {
		var w core.Wallet
		if err := docstore.Decode(doc, &w); err != nil {
			return endpoint{}, fmt.Errorf("decode wallet %s: %w", id, err)
		}
		return endpoint{kind: SourceWallet, collection: docstore.Wallets, id: id, name: w.Name, familyID: w.FamilyID, amount: w.Amount.Units}, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return endpoint{}, fmt.Errorf("get wallet %s: %w", id, err)
	}

	doc, err = s.store.Get(ctx, docstore.Budgets, id)
	if err == nil {
		var b core.Budget
		if err := docstore.Decode(doc, &b); err != nil {
			return endpoint{}, fmt.Errorf("decode budget %s: %w", id, err)
		}
		return endpoint{kind: SourceBudget, collection: docstore.Budgets, id: id, name: b.Name, familyID: b.FamilyID, amount: b.Amount.Units}, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return endpoint{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	return endpoint{}, docstore.ErrNotFound
}

// ClassifySource reports whether id names a wallet or a budget.
func (s *LedgerService) ClassifySource(ctx context.Context, id string) (SourceKind, error) {
	ep, err := s.resolve(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return SourceUnknown, nil
		}
		return SourceUnknown, err
	}
	return ep.kind, nil
}

// Transfer moves amount from one container to another. Wallets may send
// to wallets or budgets; a budget may only send to another budget. Both
// balance writes go in one atomic batch so money is conserved even when
// the backend fails mid-way.
func (s *LedgerService) Transfer(ctx context.Context, familyID, actorUID, sourceID, destID string, amount core.Money) (core.Result, error) {
	if sourceID == destID {
		return core.Fail(core.FailSameEndpoint, "Sumber dan tujuan tidak boleh sama"), nil
	}
	if amount.Units <= 0 {
		return core.Fail(core.FailInvalidAmount, "Nominal transfer harus lebih dari nol"), nil
	}

	src, err := s.resolve(ctx, sourceID)
	if errors.Is(err, docstore.ErrNotFound) {
		return core.Fail(core.FailNotFound, "Sumber dana tidak ditemukan"), nil
	}
	if err != nil {
		return core.Result{}, err
	}
	dst, err := s.resolve(ctx, destID)
	if errors.Is(err, docstore.ErrNotFound) {
		return core.Fail(core.FailNotFound, "Tujuan dana tidak ditemukan"), nil
	}
	if err != nil {
		return core.Result{}, err
	}

	if src.familyID != familyID || dst.familyID != familyID {
		return core.Fail(core.FailNotAuthorized, "Sumber atau tujuan bukan milik keluarga Anda"), nil
	}
	if src.kind == SourceBudget && dst.kind == SourceWallet {
		return core.Fail(core.FailInvalidDestination, "Dana budget tidak bisa dipindahkan ke wallet"), nil
	}
	if src.amount < amount.Units {
		return core.Fail(core.FailInvalidAmount,
			fmt.Sprintf("Saldo %s tidak cukup (tersedia %s)", src.name, core.FormatRupiah(src.amount))), nil
	}

	b := docstore.NewBatch().
		Update(src.collection, src.id, docstore.Document{
			"amount": src.amount - amount.Units,
		}).
		Update(dst.collection, dst.id, docstore.Document{
			"amount": dst.amount + amount.Units,
		})
	if err := s.store.Apply(ctx, b); err != nil {
		return core.Result{}, fmt.Errorf("transfer: %w", err)
	}

	msg := amqp.NewEventMessage(amqp.EventTransfer)
	msg.FamilyID = familyID
	msg.ActorUID = actorUID
	msg.SourceID = sourceID
	msg.DestID = destID
	msg.Amount = amount.Units
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Transfer applied",
		"family_id", familyID,
		"source_id", sourceID,
		"dest_id", destID,
		"amount", amount.Units)
	return core.OK(fmt.Sprintf("Berhasil transfer %s dari %s ke %s",
		core.FormatRupiah(amount.Units), src.name, dst.name)), nil
}

// RecordDaily stores an income or expense entry and adjusts the target
// container in the same batch. Income credits a wallet, expense debits a
// budget; the date must fall inside the current month.
func (s *LedgerService) RecordDaily(ctx context.Context, familyID, actorUID string, kind core.TransactionKind, targetID string, amount core.Money, description string, date time.Time) (*core.Transaction, core.Result, error) {
	if !kind.Valid() {
		return nil, core.Fail(core.FailInvalidDestination, "Jenis transaksi tidak dikenal"), nil
	}
	if amount.Units <= 0 {
		return nil, core.Fail(core.FailInvalidAmount, "Nominal harus lebih dari nol"), nil
	}
	if date.IsZero() {
		return nil, core.Fail(core.FailInvalidDate, "Tanggal harus diisi"), nil
	}
	now := s.now()
	if !core.WithinCurrentMonth(date, now) {
		first, last := core.MonthRange(now)
		return nil, core.Fail(core.FailOutsideMonth,
			fmt.Sprintf("Tanggal harus di antara %s dan %s",
				first.Format("2006-01-02"), last.Format("2006-01-02"))), nil
	}

	ep, err := s.resolve(ctx, targetID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, core.Fail(core.FailNotFound, "Target dana tidak ditemukan"), nil
	}
	if err != nil {
		return nil, core.Result{}, err
	}
	if ep.familyID != familyID {
		return nil, core.Fail(core.FailNotAuthorized, "Target bukan milik keluarga Anda"), nil
	}

	// Income lands in a wallet, expense is drawn from a budget.
	switch kind {
	case core.Income:
		if ep.kind != SourceWallet {
			return nil, core.Fail(core.FailInvalidDestination, "Pemasukan hanya bisa masuk ke wallet"), nil
		}
	case core.Expense:
		if ep.kind != SourceBudget {
			return nil, core.Fail(core.FailInvalidDestination, "Pengeluaran hanya bisa diambil dari budget"), nil
		}
		if ep.amount < amount.Units {
			return nil, core.Fail(core.FailInvalidAmount,
				fmt.Sprintf("Saldo %s tidak cukup (tersedia %s)", ep.name, core.FormatRupiah(ep.amount))), nil
		}
	}

	tx := core.Transaction{
		ID:          s.store.NewID(),
		FamilyID:    familyID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		TargetID:    targetID,
		Date:        date,
		CreatedBy:   actorUID,
		CreatedAt:   now,
	}
	if err := tx.Validate(); err != nil {
		return nil, core.Fail(core.FailInvalidAmount, "Transaksi tidak valid"), nil
	}

	balance := ep.amount + amount.Units
	if kind == core.Expense {
		balance = ep.amount - amount.Units
	}

	enc, err := docstore.Encode(tx)
	if err != nil {
		return nil, core.Result{}, fmt.Errorf("encode transaction: %w", err)
	}
	b := docstore.NewBatch().
		Set(docstore.Transactions, tx.ID, enc).
		Update(ep.collection, ep.id, docstore.Document{
			"amount": balance,
		})
	if err := s.store.Apply(ctx, b); err != nil {
		return nil, core.Result{}, fmt.Errorf("record daily entry: %w", err)
	}

	msg := amqp.NewEventMessage(amqp.EventDailyEntry)
	msg.FamilyID = familyID
	msg.ActorUID = actorUID
	msg.SourceID = targetID
	msg.Amount = amount.Units
	publishEvent(ctx, s.events, msg)

	slog.InfoContext(ctx, "Daily entry recorded",
		"family_id", familyID,
		"type", string(kind),
		"target_id", targetID,
		"amount", amount.Units)
	verb := "Pemasukan"
	if kind == core.Expense {
		verb = "Pengeluaran"
	}
	return &tx, core.OK(fmt.Sprintf("%s %s berhasil dicatat", verb, core.FormatRupiah(amount.Units))), nil
}

// ListTransactions returns the family's entries for the month containing
// ref, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, familyID string, ref time.Time) ([]core.Transaction, error) {
	docs, err := s.store.QueryByField(ctx, docstore.Transactions, "familyId", familyID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		var tx core.Transaction
		if err := docstore.Decode(doc, &tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		if !core.WithinCurrentMonth(tx.Date, ref) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}
