// Package services contains the client's application services. WalletService
// runs the vault protocol against the authority and keeps the resulting
// session in the local database.
package services

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiplycharity/multiply-monorepo/internal/client/client"
	"github.com/multiplycharity/multiply-monorepo/internal/client/repositories/metadata"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/dbx"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/vault"
	"github.com/multiplycharity/multiply-monorepo/internal/wallet"
)

// Status is a snapshot for the prompt and the status command.
type Status struct {
	State    vault.State
	Identity string
	Address  string
}

type WalletService struct {
	protocol *vault.Protocol
	client   client.Client
	db       *sql.DB
	logger   logging.Logger
	machine  vault.Machine

	mu       sync.Mutex
	identity string
	address  ethcommon.Address
	key      *ecdsa.PrivateKey
}

func NewWalletService(p *vault.Protocol, c client.Client, db *sql.DB, l logging.Logger) *WalletService {
	return &WalletService{protocol: p, client: c, db: db, logger: l.With("module", "wallet_service")}
}

func (s *WalletService) repo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

// Exists asks the authority whether id is taken.
func (s *WalletService) Exists(ctx context.Context, id string) (bool, error) {
	return s.client.Exists(ctx, id)
}

// Register creates an account. An empty mnemonic generates a new wallet and
// the returned session carries its mnemonic for the user to write down;
// wipe it once shown. The private key stays with the service.
func (s *WalletService) Register(ctx context.Context, id string, password []byte, mnemonic cryptox.Secret) (*vault.Session, error) {
	var w *wallet.Wallet
	if !mnemonic.IsZero() {
		var err error
		if w, err = wallet.FromMnemonic(mnemonic); err != nil {
			if errors.Is(err, wallet.ErrInvalidMnemonic) {
				return nil, fmt.Errorf("%w: invalid mnemonic", common.ErrValidation)
			}
			return nil, err
		}
		defer w.Mnemonic.Wipe()
	}

	sess, err := s.protocol.Register(ctx, id, password, w)
	if err != nil {
		return nil, err
	}
	if err := s.adopt(ctx, sess); err != nil {
		sess.Wipe()
		return nil, err
	}

	out := *sess
	out.PrivateKey = nil
	return &out, nil
}

// Login restores the wallet from the server-held envelope. The mnemonic is
// wiped before returning.
func (s *WalletService) Login(ctx context.Context, id string, password []byte) (*vault.Session, error) {
	sess, err := s.protocol.Login(ctx, id, password)
	if err != nil {
		return nil, err
	}
	sess.Mnemonic.Wipe()
	if err := s.adopt(ctx, sess); err != nil {
		sess.Wipe()
		return nil, err
	}

	out := *sess
	out.PrivateKey = nil
	out.Mnemonic = cryptox.Secret{}
	return &out, nil
}

func (s *WalletService) adopt(ctx context.Context, sess *vault.Session) error {
	if err := s.machine.Transition(vault.Authenticated); err != nil {
		return err
	}

	rec := &metadata.SessionRecord{
		Identity:     sess.Identity,
		AccountID:    sess.AccountID,
		Address:      sess.Address.Hex(),
		SessionToken: s.client.SessionToken(),
		Artifact:     sess.Artifact,
	}
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.SaveSession(ctx, s.repo(tx), rec)
	}, dbx.Named("save session"), dbx.Logged(s.logger))
	if err != nil {
		s.machine.Reset(vault.Unauthenticated)
		return err
	}

	s.setKey(sess.Identity, sess.PrivateKey)
	return s.machine.Transition(vault.SessionPersisted)
}

// Restore recovers the private key from the persisted session without a
// password. A lost session is cleared locally and its terminal state kept.
func (s *WalletService) Restore(ctx context.Context) (ethcommon.Address, error) {
	var rec *metadata.SessionRecord
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) (err error) {
		rec, err = metadata.LoadSession(ctx, s.repo(tx))
		return err
	}, dbx.Named("load session"), dbx.ReadOnly(), dbx.Logged(s.logger))
	if err != nil {
		return ethcommon.Address{}, err
	}
	if rec == nil {
		return ethcommon.Address{}, client.ErrLocalDataNotAvailable
	}

	s.client.SetSessionToken(rec.SessionToken)
	s.machine.Reset(vault.SessionPersisted)

	priv, err := s.protocol.RecoverSession(ctx, rec.Artifact)
	if err != nil {
		return ethcommon.Address{}, s.sessionFailed(ctx, err)
	}

	addr := crypto.PubkeyToAddress(priv.PublicKey)
	if rec.Address != "" && ethcommon.HexToAddress(rec.Address) != addr {
		priv.D.SetInt64(0)
		s.logger.Warn(ctx, "restored key does not match stored address", "address", rec.Address)
		if clearErr := s.forget(ctx); clearErr != nil {
			s.logger.Error(ctx, "clear session failed", "error", clearErr)
		}
		s.machine.Reset(vault.Unauthenticated)
		return ethcommon.Address{}, fmt.Errorf("%w: recovered key does not match stored address", common.ErrDecryption)
	}

	s.setKey(rec.Identity, priv)
	if err := s.machine.Transition(vault.Recovered); err != nil {
		return ethcommon.Address{}, err
	}
	s.logger.Info(ctx, "session restored", "address", addr.Hex())
	return addr, nil
}

// Rotate replaces the session key and re-seals the in-memory key under it.
func (s *WalletService) Rotate(ctx context.Context) error {
	key := s.privateKey()
	if key == nil {
		return fmt.Errorf("%w: not logged in", common.ErrInvalidState)
	}

	artifact, err := s.protocol.RotateSession(ctx, key)
	if err != nil {
		return s.sessionFailed(ctx, err)
	}

	err = dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo(tx).Set(ctx, metadata.KeyArtifact, artifact)
	}, dbx.Named("save artifact"), dbx.Logged(s.logger))
	if err != nil {
		return err
	}
	return s.machine.Transition(vault.SessionPersisted)
}

// SyncAddress pushes the current wallet address to the authority.
func (s *WalletService) SyncAddress(ctx context.Context) error {
	s.mu.Lock()
	addr, ok := s.address, s.key != nil
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: not logged in", common.ErrInvalidState)
	}
	if err := s.client.UpdateAddress(ctx, addr.Hex()); err != nil {
		return s.sessionFailed(ctx, err)
	}
	return nil
}

// Logout revokes the session on the authority and always forgets it
// locally. A session the authority already considers gone is not an error.
func (s *WalletService) Logout(ctx context.Context) error {
	err := s.protocol.Logout(ctx)
	if err != nil && common.IsSessionLost(err) {
		err = nil
	}

	if clearErr := s.forget(ctx); clearErr != nil && err == nil {
		err = clearErr
	}
	s.machine.Reset(vault.Unauthenticated)
	return err
}

func (s *WalletService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.machine.State(), Identity: s.identity}
	if s.key != nil {
		st.Address = s.address.Hex()
	}
	return st
}

func (s *WalletService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *WalletService) Close() error {
	s.setKey(s.identity, nil)
	return s.client.Close()
}

// sessionFailed moves to the terminal state a session error implies and
// drops the local session; other errors pass through untouched.
func (s *WalletService) sessionFailed(ctx context.Context, err error) error {
	st, ok := vault.StateForError(err)
	if !ok {
		return err
	}
	s.logger.Warn(ctx, "session lost", "state", st.String())
	if clearErr := s.forget(ctx); clearErr != nil {
		s.logger.Error(ctx, "clear session failed", "error", clearErr)
	}
	s.machine.Reset(st)
	return err
}

func (s *WalletService) forget(ctx context.Context) error {
	s.client.SetSessionToken("")
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	s.setKey(identity, nil)
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		return metadata.ClearSession(ctx, s.repo(tx))
	}, dbx.Named("clear session"), dbx.Logged(s.logger))
}

func (s *WalletService) setKey(identity string, key *ecdsa.PrivateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && s.key != key && s.key.D != nil {
		s.key.D.SetInt64(0)
	}
	s.identity = identity
	s.key = key
	s.address = ethcommon.Address{}
	if key != nil {
		s.address = crypto.PubkeyToAddress(key.PublicKey)
	}
}

func (s *WalletService) privateKey() *ecdsa.PrivateKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}
