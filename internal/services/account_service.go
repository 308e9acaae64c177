package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledgerd/internal/apperr"
	"ledgerd/internal/auth"
	"ledgerd/internal/db"
	"ledgerd/internal/ephemeral"
	"ledgerd/internal/logging"
	"ledgerd/internal/models"
	"ledgerd/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, account models.Account) error
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	Save(ctx context.Context, tx store.Execer, account models.Account) error
	List(ctx context.Context, page models.PageRequest) (models.Page[models.Account], error)
}

type TokenIssuer interface {
	Issue(email, accountID string, roles []string, ttl time.Duration) (string, error)
}

type Revoker interface {
	Revoke(ctx context.Context, token string) error
}

type EphemeralTokens interface {
	Create(ctx context.Context, tx store.Execer, accountID string, purpose models.TokenPurpose, ttl time.Duration) (ephemeral.Issued, error)
	Consume(ctx context.Context, token string, purpose models.TokenPurpose) (string, error)
}

// TokenMessage carries an ephemeral token to its owner.
type TokenMessage struct {
	Email     string              `json:"email"`
	Name      string              `json:"name"`
	Purpose   models.TokenPurpose `json:"purpose"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Notifier delivers tokens out of band. Delivery failures never undo the
// operation that produced the token.
type Notifier interface {
	SendToken(ctx context.Context, msg TokenMessage) error
}

// LogNotifier records token deliveries in the log instead of sending them.
// The token itself is only written at debug level.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) SendToken(_ context.Context, msg TokenMessage) error {
	n.logger.Info("token delivery skipped",
		zap.String("email", msg.Email),
		zap.String("purpose", string(msg.Purpose)),
	)
	n.logger.Debug("token", zap.String("purpose", string(msg.Purpose)), zap.String("token", msg.Token))
	return nil
}

type AccountService struct {
	txRunner db.TxRunner
	accounts AccountStore
	issuer   TokenIssuer
	revoker  Revoker
	tokens   EphemeralTokens
	notifier Notifier
	now      func() time.Time
	logger   *logging.Logger
}

func NewAccountService(txRunner db.TxRunner, accounts AccountStore, issuer TokenIssuer, revoker Revoker, tokens EphemeralTokens, notifier Notifier, logger *logging.Logger) *AccountService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AccountService{
		txRunner: txRunner,
		accounts: accounts,
		issuer:   issuer,
		revoker:  revoker,
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.Named("accounts"),
	}
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
}

type LoginResult struct {
	Token   string
	Account models.Account
}

// Register creates an inactive account and sends an email confirmation token.
// The account and its token are written in one transaction.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (models.Account, error) {
	email := normalizeEmail(req.Email)
	if err := auth.ValidatePassword(req.Password); err != nil {
		return models.Account{}, err
	}
	exists, err := s.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		return models.Account{}, err
	}
	if exists {
		return models.Account{}, apperr.ErrDuplicateIdentity
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.Account{}, err
	}
	account := models.Account{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Balance:      decimal.Zero,
		Roles:        []string{models.RoleUser},
		CreatedAt:    s.now().UTC(),
	}
	var issued ephemeral.Issued
	err = s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		if err := s.accounts.Create(ctx, tx, account); err != nil {
			return err
		}
		var err error
		issued, err = s.tokens.Create(ctx, tx, account.ID, models.PurposeEmailConfirmation, 0)
		if err != nil {
			return fmt.Errorf("create confirmation token: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account registered", zap.String("account_id", account.ID))
	s.notify(ctx, tokenMessage(account, models.PurposeEmailConfirmation, issued))
	return account, nil
}

func (s *AccountService) ConfirmEmail(ctx context.Context, token string) error {
	accountID, err := s.tokens.Consume(ctx, token, models.PurposeEmailConfirmation)
	if err != nil {
		return err
	}
	return s.mutate(ctx, accountID, func(account *models.Account) {
		account.Active = true
	})
}

func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperr.ErrAccountNotFound) {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if !auth.CheckPassword(account.PasswordHash, password) {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}
	if !account.Active {
		return LoginResult{}, fmt.Errorf("%w: email not confirmed", apperr.ErrAccessDenied)
	}
	token, err := s.issuer.Issue(account.Email, account.ID, account.Roles, 0)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, Account: account}, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.revoker.Revoke(ctx, token)
}

// RequestPasswordReset does not reveal whether the email is registered.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, apperr.ErrAccountNotFound) {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	var issued ephemeral.Issued
	err = s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		var err error
		issued, err = s.tokens.Create(ctx, tx, account.ID, models.PurposePasswordReset, 0)
		return err
	})
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}
	s.notify(ctx, tokenMessage(account, models.PurposePasswordReset, issued))
	return nil
}

// ResetPassword checks the new password before consuming the token, so a weak
// password does not burn it.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	accountID, err := s.tokens.Consume(ctx, token, models.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := s.mutate(ctx, accountID, func(account *models.Account) {
		account.PasswordHash = hash
	}); err != nil {
		return err
	}
	s.logger.Info("password reset", zap.String("account_id", accountID))
	return nil
}

func (s *AccountService) UpdateProfile(ctx context.Context, caller auth.Principal, accountID, name string) (models.Account, error) {
	if err := auth.Authorize(caller, auth.ActionUpdateProfile, accountID); err != nil {
		return models.Account{}, err
	}
	var updated models.Account
	err := s.mutate(ctx, accountID, func(account *models.Account) {
		account.Name = strings.TrimSpace(name)
		updated = *account
	})
	if err != nil {
		return models.Account{}, err
	}
	updated.Version++
	return updated, nil
}

func (s *AccountService) GetAccount(ctx context.Context, caller auth.Principal, accountID string) (models.Account, error) {
	if err := auth.Authorize(caller, auth.ActionViewAccount, accountID); err != nil {
		return models.Account{}, err
	}
	return s.accounts.GetByID(ctx, accountID)
}

func (s *AccountService) ListAccounts(ctx context.Context, caller auth.Principal, page models.PageRequest) (models.Page[models.Account], error) {
	if err := auth.Authorize(caller, auth.ActionListAccounts, ""); err != nil {
		return models.Page[models.Account]{}, err
	}
	return s.accounts.List(ctx, page)
}

// mutate applies fn to a locked account and saves it.
func (s *AccountService) mutate(ctx context.Context, accountID string, fn func(*models.Account)) error {
	err := s.txRunner.WithTx(ctx, func(tx store.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		fn(&account)
		return s.accounts.Save(ctx, tx, account)
	})
	if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, db.ErrRetryLimit) {
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	}
	return err
}

func (s *AccountService) notify(ctx context.Context, msg TokenMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendToken(ctx, msg); err != nil {
		s.logger.Warn("token notification failed",
			zap.String("purpose", string(msg.Purpose)),
			zap.Error(err),
		)
	}
}

func tokenMessage(account models.Account, purpose models.TokenPurpose, issued ephemeral.Issued) TokenMessage {
	return TokenMessage{
		Email:     account.Email,
		Name:      account.Name,
		Purpose:   purpose,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
