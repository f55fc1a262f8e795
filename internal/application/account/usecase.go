package account

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/account"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/apperr"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	accountService          = "account-service"
	useCaseGetAccount       = "account.get"
	useCaseListTransactions = "account.list_transactions"
	useCaseDeposit          = "account.deposit"
)

var errUserRequired = apperr.New(apperr.KindInvalid, "account", "user id is required")

type GetAccountInput struct {
	UserID string
}

type GetAccountUseCase struct {
	reader domain.Reader
	inst   application.Instrument
}

func NewGetAccountUseCase(reader domain.Reader, tel observability.Observability) *GetAccountUseCase {
	return &GetAccountUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, accountService, useCaseGetAccount),
	}
}

func (uc *GetAccountUseCase) Execute(ctx context.Context, cmd GetAccountInput) (_ *domain.Account, err error) {
	ctx, run := uc.inst.Start(ctx, "GetAccount", attribute.String("account.user_id", cmd.UserID))
	defer func() { run.End(err) }()

	if cmd.UserID == "" {
		return nil, errUserRequired
	}
	return uc.reader.Get(ctx, cmd.UserID)
}

type ListTransactionsInput struct {
	UserID string
}

// ListTransactionsUseCase returns the balance history, newest first.
type ListTransactionsUseCase struct {
	reader domain.Reader
	inst   application.Instrument
}

func NewListTransactionsUseCase(reader domain.Reader, tel observability.Observability) *ListTransactionsUseCase {
	return &ListTransactionsUseCase{
		reader: reader,
		inst:   application.NewInstrument(tel, accountService, useCaseListTransactions),
	}
}

func (uc *ListTransactionsUseCase) Execute(ctx context.Context, cmd ListTransactionsInput) (_ []domain.Transaction, err error) {
	ctx, run := uc.inst.Start(ctx, "ListTransactions", attribute.String("account.user_id", cmd.UserID))
	defer func() { run.End(err) }()

	if cmd.UserID == "" {
		return nil, errUserRequired
	}
	out, err := uc.reader.Transactions(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	run.Annotate(observability.F("transactions", len(out)))
	return out, nil
}

type DepositInput struct {
	UserID  string
	Amount  decimal.Decimal
	ActorID string
}

type DepositResult struct {
	UserID        string
	Balance       decimal.Decimal
	TransactionID string
}

// DepositUseCase credits a balance and writes the matching Deposit entry in
// one unit of work.
type DepositUseCase struct {
	uow         application.UnitOfWork
	idGenerator application.IDGenerator
	inst        application.Instrument
	ledger      observability.Counter
}

func NewDepositUseCase(uow application.UnitOfWork, idGen application.IDGenerator, tel observability.Observability) *DepositUseCase {
	tel = observability.OrNop(tel)
	return &DepositUseCase{
		uow:         uow,
		idGenerator: idGen,
		inst:        application.NewInstrument(tel, accountService, useCaseDeposit),
		ledger:      tel.Metrics().Counter(observability.MLedgerMutations),
	}
}

func (uc *DepositUseCase) Execute(ctx context.Context, cmd DepositInput) (_ *DepositResult, err error) {
	ctx, run := uc.inst.Start(ctx, "Deposit",
		attribute.String("account.user_id", cmd.UserID),
		attribute.String("account.amount", cmd.Amount.String()),
	)
	defer func() { run.End(err) }()

	if cmd.UserID == "" {
		return nil, errUserRequired
	}
	if !cmd.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var result *DepositResult
	err = uc.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		acct, err := tx.Accounts().Lock(ctx, cmd.UserID)
		if err != nil {
			return err
		}
		if err := tx.Accounts().Credit(ctx, cmd.UserID, cmd.Amount); err != nil {
			return err
		}
		description := "Deposit"
		if cmd.ActorID != "" {
			description = fmt.Sprintf("Deposit by %s", cmd.ActorID)
		}
		entry := domain.NewTransaction(uc.idGenerator.NewID(), cmd.UserID, cmd.Amount, domain.TransactionDeposit, description)
		if err := tx.Accounts().AppendTransaction(ctx, entry); err != nil {
			return err
		}
		result = &DepositResult{
			UserID:        cmd.UserID,
			Balance:       acct.Balance.Add(cmd.Amount),
			TransactionID: entry.ID,
		}
		return nil
	})
	if err != nil {
		uc.ledger.Add(1, observability.L("ledger", "balance"), observability.L("outcome", "error"))
		return nil, err
	}
	uc.ledger.Add(1, observability.L("ledger", "balance"), observability.L("outcome", "credited"))
	run.Annotate(observability.F("transaction_id", result.TransactionID))
	return result, nil
}
