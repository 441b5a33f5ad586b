package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/pointledger/internal/common"
	"github.com/dmitrijs2005/pointledger/internal/dbx"
	"github.com/dmitrijs2005/pointledger/internal/logging"
	"github.com/dmitrijs2005/pointledger/internal/server/auth"
	"github.com/dmitrijs2005/pointledger/internal/server/config"
	"github.com/dmitrijs2005/pointledger/internal/server/models"
	"github.com/dmitrijs2005/pointledger/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// Registration is the outcome of UserService.Register.
type Registration struct {
	User        *models.User
	Wallets     []*models.Wallet
	AccessToken string
}

// UserService onboards users and serves their read models.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	ledger                      *Ledger
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	onboardingGrant             decimal.Decimal
	logger                      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, ledger *Ledger, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		ledger:                      ledger,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		onboardingGrant:             RoundPoints(decimal.NewFromFloat(cfg.OnboardingGrant)),
		logger:                      logger.With("module", "users"),
	}
}

// Register creates the user with one wallet per supported program. The
// reserve wallet opens with the onboarding grant.
func (s *UserService) Register(ctx context.Context, username string) (*Registration, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("empty username: %w", common.ErrInvalidInput)
	}

	if _, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, username); err == nil {
		return nil, common.ErrUserExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	reg, err := dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*Registration, error) {
		user, err := s.repomanager.Users(tx).Create(ctx, &models.User{UserName: username, Tier: models.TierStandard})
		if err != nil {
			return nil, fmt.Errorf("error creating user: %w", err)
		}

		reg := &Registration{User: user}
		for _, p := range models.SupportedPrograms() {
			opening := decimal.Zero
			if p.IsReserve() {
				opening = s.onboardingGrant
			}
			w, err := s.ledger.EnsureWallet(ctx, tx, user.ID, p, opening)
			if err != nil {
				return nil, fmt.Errorf("error creating %s wallet: %w", p, err)
			}
			reg.Wallets = append(reg.Wallets, w)
		}
		return reg, nil
	})
	if err != nil {
		return nil, err
	}

	reg.AccessToken, err = s.IssueToken(reg.User.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", reg.User.ID, "grant", s.onboardingGrant)
	return reg, nil
}

// IssueToken signs an access token for userID.
func (s *UserService) IssueToken(userID string) (string, error) {
	token, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func (s *UserService) Stats(ctx context.Context, userID string) (*models.UserStats, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Stats(), nil
}

func (s *UserService) Balances(ctx context.Context, userID string) ([]*models.Wallet, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return s.ledger.Wallets(ctx, userID)
}

// LinkWallet records the user's account number with an external program,
// creating the wallet when the user has none yet.
func (s *UserService) LinkWallet(ctx context.Context, userID string, program models.Program, account string) (*models.Wallet, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, fmt.Errorf("empty linked account: %w", common.ErrInvalidInput)
	}
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	return dbx.WithTxResult(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Wallet, error) {
		w, err := s.ledger.EnsureWallet(ctx, tx, userID, program, decimal.Zero)
		if err != nil {
			return nil, err
		}
		if err := s.repomanager.Wallets(tx).SetLinkedAccount(ctx, w.ID, account); err != nil {
			return nil, err
		}
		w.LinkedAccount = &account
		return w, nil
	})
}

// History returns the user's most recent ledger transactions.
func (s *UserService) History(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return s.repomanager.Transactions(s.db).ListByUser(ctx, userID, clampLimit(limit))
}

func (s *UserService) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
