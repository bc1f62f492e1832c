// Package accounts registers callers, logs them in and manages the ledger
// side of an account: its balance, its accepts-payments flag and admin
// deposits.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tokenlease/pkg/auth"
	"tokenlease/pkg/events"
	"tokenlease/pkg/ledger"
	"tokenlease/pkg/store"
	"tokenlease/pkg/tokens"
)

type AccountService interface {
	Register(ctx context.Context, input RegisterInput) (Account, error)
	Login(ctx context.Context, email, password string) (Session, error)
	Profile(ctx context.Context, addr tokens.Address) (Profile, error)
	SetAcceptsPayments(ctx context.Context, caller tokens.Address, accepts bool) (Profile, error)
	AdminCapability(ctx context.Context, caller tokens.Address) (AdminCapability, error)
	Deposit(ctx context.Context, capability AdminCapability, to tokens.Address, amount int64) (ledger.Account, error)
}

type accountService struct {
	repo       AccountRepository
	store      store.Store
	issuer     *auth.Issuer
	adminEmail string
	publisher  events.Publisher
	clock      tokens.Clock
	logger     *zap.Logger
}

func NewAccountService(repo AccountRepository, st store.Store, issuer *auth.Issuer, adminEmail string, publisher events.Publisher, clock tokens.Clock, logger *zap.Logger) AccountService {
	return &accountService{
		repo:       repo,
		store:      st,
		issuer:     issuer,
		adminEmail: normalizeEmail(adminEmail),
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}
}

// Register creates the account and opens its ledger balance. New accounts
// accept payments.
func (s *accountService) Register(ctx context.Context, input RegisterInput) (Account, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if name == "" || input.Password == "" || !strings.Contains(email, "@") {
		return Account{}, ErrInvalidInput
	}

	if _, err := s.repo.GetAccountByEmail(ctx, email); err == nil {
		return Account{}, ErrEmailTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	addr := tokens.Address(uuid.NewString())
	if err := s.store.Atomic(ctx, func(tx store.Tx) error {
		return tx.Ledger().Open(ctx, addr, true)
	}); err != nil {
		return Account{}, fmt.Errorf("open ledger account: %w", err)
	}

	a, err := s.repo.CreateAccount(ctx, Account{
		Address: addr,
		Name:    name,
		Email:   email,
		IsAdmin: s.adminEmail != "" && email == s.adminEmail,
	}, string(hashBytes))
	if err != nil {
		return Account{}, err
	}

	s.logger.Info("account registered", zap.String("address", string(a.Address)), zap.Bool("admin", a.IsAdmin))
	return a, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (Session, error) {
	a, hash, err := s.repo.GetAccountAuthByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(a.Address, a.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Account: a}, nil
}

func (s *accountService) Profile(ctx context.Context, addr tokens.Address) (Profile, error) {
	a, err := s.repo.GetAccountByAddress(ctx, addr)
	if err != nil {
		return Profile{}, err
	}

	var bal ledger.Account
	err = s.store.View(ctx, func(tx store.Tx) error {
		var err error
		bal, err = tx.Ledger().Account(ctx, addr)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	return Profile{Account: a, Balance: bal.Balance, AcceptsPayments: bal.AcceptsPayments}, nil
}

// SetAcceptsPayments toggles whether payments to caller settle. A rejecting
// seller or owner makes every sale or rental paying them fail.
func (s *accountService) SetAcceptsPayments(ctx context.Context, caller tokens.Address, accepts bool) (Profile, error) {
	if _, err := s.repo.GetAccountByAddress(ctx, caller); err != nil {
		return Profile{}, err
	}

	if err := s.store.Atomic(ctx, func(tx store.Tx) error {
		return tx.Ledger().SetAcceptsPayments(ctx, caller, accepts)
	}); err != nil {
		return Profile{}, err
	}

	s.logger.Info("accepts payments changed", zap.String("address", string(caller)), zap.Bool("accepts", accepts))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindPaymentsToggle, Actor: caller, At: s.clock.Now()})
	return s.Profile(ctx, caller)
}

func (s *accountService) AdminCapability(ctx context.Context, caller tokens.Address) (AdminCapability, error) {
	a, err := s.repo.GetAccountByAddress(ctx, caller)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return AdminCapability{}, ErrNotAdmin
		}
		return AdminCapability{}, err
	}
	if !a.IsAdmin {
		return AdminCapability{}, ErrNotAdmin
	}
	return AdminCapability{holder: a.Address}, nil
}

// Deposit credits amount to an existing ledger account.
func (s *accountService) Deposit(ctx context.Context, capability AdminCapability, to tokens.Address, amount int64) (ledger.Account, error) {
	if !capability.valid() {
		return ledger.Account{}, ErrNotAdmin
	}
	if amount <= 0 {
		return ledger.Account{}, ErrInvalidDeposit
	}

	var out ledger.Account
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.Ledger().Credit(ctx, to, amount); err != nil {
			return err
		}
		var err error
		out, err = tx.Ledger().Account(ctx, to)
		return err
	})
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("deposit credited", zap.String("admin", string(capability.holder)), zap.String("to", string(to)), zap.Int64("amount", amount))
	s.publisher.Publish(ctx, events.Event{Kind: events.KindDeposited, Actor: capability.holder, Counterparty: to, Amount: amount, At: s.clock.Now()})
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
