package service

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

// AccountService handles account registration and lookup.
type AccountService struct {
	ledger         LedgerStore
	startingCash   decimal.Decimal
	storageTimeout time.Duration
	logger         *slog.Logger
}

// NewAccountService creates an AccountService that credits startingCash
// to every new account.
func NewAccountService(ledger LedgerStore, startingCash decimal.Decimal, storageTimeout time.Duration, logger *slog.Logger) *AccountService {
	return &AccountService{
		ledger:         ledger,
		startingCash:   startingCash,
		storageTimeout: storageTimeout,
		logger:         orDefault(logger),
	}
}

// Register creates an account. passwordHash is stored as given; hashing
// belongs to the caller.
func (s *AccountService) Register(ctx context.Context, username, passwordHash string) (*domain.Account, error) {
	if !usernameRegex.MatchString(username) {
		return nil, &domain.ValidationError{
			Message: "username must match ^[a-zA-Z0-9_.-]{1,64}$",
		}
	}
	if passwordHash == "" {
		return nil, &domain.ValidationError{
			Message: "password_hash is required",
		}
	}

	ctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()

	a, err := s.ledger.CreateAccount(ctx, domain.Account{
		Username:     username,
		PasswordHash: passwordHash,
		Cash:         s.startingCash,
		InitialCash:  s.startingCash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		slog.Int64("account_id", a.AccountID),
		slog.String("username", a.Username),
	)
	return a, nil
}

// Get retrieves an account by id.
func (s *AccountService) Get(ctx context.Context, accountID int64) (*domain.Account, error) {
	ctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()
	return s.ledger.GetAccount(ctx, accountID)
}
