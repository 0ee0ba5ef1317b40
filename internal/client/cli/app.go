package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/multiplycharity/multiply-monorepo/internal/client/client"
	"github.com/multiplycharity/multiply-monorepo/internal/client/config"
	"github.com/multiplycharity/multiply-monorepo/internal/client/services"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/poolx"
	"github.com/multiplycharity/multiply-monorepo/internal/vault"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type walletService interface {
	Exists(ctx context.Context, id string) (bool, error)
	Register(ctx context.Context, id string, password []byte, mnemonic cryptox.Secret) (*vault.Session, error)
	Login(ctx context.Context, id string, password []byte) (*vault.Session, error)
	Restore(ctx context.Context) (ethcommon.Address, error)
	Rotate(ctx context.Context) error
	SyncAddress(ctx context.Context) error
	Logout(ctx context.Context) error
	Status() services.Status
	Ping(ctx context.Context) error
	Close() error
}

var _ walletService = (*services.WalletService)(nil)

type App struct {
	config *config.Config
	wallet walletService
	logger logging.Logger
	Mode   Mode
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr,
		client.WithFetchRetries(c.FetchRetries, 200*time.Millisecond),
		client.WithRequestTimeout(c.RequestTimeout),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	suite := cryptox.DefaultSuite()
	suite.KDF.Algorithm = c.KDFAlgorithm
	suite.KDF.Iterations = c.KDFIterations

	protocol := vault.New(apiClient,
		vault.WithSuite(suite),
		vault.WithScrypt(cryptox.ScryptParams{N: c.ScryptN, P: c.ScryptP}),
		vault.WithPool(poolx.New(c.MaxConcurrentDerivations, c.DerivationQueueWait)),
		vault.WithLogger(logger),
	)

	ws := services.NewWalletService(protocol, apiClient, db, logger)

	return &App{
		config: c,
		wallet: ws,
		logger: logger,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) setMode(mode Mode) {
	if a.Mode != mode {
		a.Mode = mode
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	}
}

func (a *App) Run(ctx context.Context) {
	defer a.wallet.Close()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.wallet.Status().Address != ""
}

func (a *App) getStatus() string {
	st := a.wallet.Status()
	s := st.State.String()
	if st.Identity != "" {
		s = st.Identity + " " + s
	}
	if a.Mode != "" {
		s = s + " " + string(a.Mode)
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.wallet.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// Root restores a persisted session if there is one, then runs the shell
// on stdin.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Multiply vault CLI (type 'help' for commands)")

	a.checkOnline(ctx)
	_ = a.restore(ctx, true)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
