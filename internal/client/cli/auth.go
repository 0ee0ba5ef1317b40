package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/multiplycharity/multiply-monorepo/internal/client/client"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) fail(err error) error {
	fmt.Fprintln(a.out, "Error:", common.UserMessage(err))
	a.logger.Debug(context.Background(), "command failed", "error", err)
	return err
}

// Register asks for an id, a password and an optional mnemonic to import.
// A generated mnemonic is printed once and wiped.
func (a *App) Register(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if taken, err := a.wallet.Exists(ctx, id); err == nil && taken {
		return a.fail(common.ErrAccountExists)
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	words, err := getSimpleText(a.reader, "Mnemonic to import (empty to generate a new wallet)", a.out)
	if err != nil {
		return err
	}
	var mnemonic cryptox.Secret
	if words = strings.Join(strings.Fields(words), " "); words != "" {
		mnemonic = cryptox.CopySecret([]byte(words))
	}
	defer mnemonic.Wipe()

	sess, err := a.wallet.Register(ctx, id, password, mnemonic)
	if err != nil {
		return a.fail(err)
	}
	defer sess.Wipe()

	fmt.Fprintln(a.out, "Registered, address", sess.Address.Hex())
	if !sess.Mnemonic.IsZero() {
		fmt.Fprintln(a.out, "Write down your recovery phrase, it is shown only once:")
		fmt.Fprintln(a.out, "  "+string(sess.Mnemonic.Bytes()))
	}
	return nil
}

func (a *App) Login(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	sess, err := a.wallet.Login(ctx, id, password)
	if err != nil {
		return a.fail(err)
	}
	defer sess.Wipe()

	fmt.Fprintln(a.out, "Login successful, address", sess.Address.Hex())
	return nil
}

func (a *App) Restore(ctx context.Context) error {
	return a.restore(ctx, false)
}

// restore reopens the persisted session. quiet suppresses the message when
// there is nothing to restore.
func (a *App) restore(ctx context.Context, quiet bool) error {
	addr, err := a.wallet.Restore(ctx)
	if err != nil {
		if errors.Is(err, client.ErrLocalDataNotAvailable) {
			if !quiet {
				fmt.Fprintln(a.out, "No saved session, please log in")
			}
			return err
		}
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Session restored, address", addr.Hex())
	return nil
}

func (a *App) Rotate(ctx context.Context) error {
	if err := a.wallet.Rotate(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Session key rotated")
	return nil
}

func (a *App) SyncAddress(ctx context.Context) error {
	if err := a.wallet.SyncAddress(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Address updated")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st := a.wallet.Status()
	fmt.Fprintln(a.out, "state:  ", st.State)
	if st.Identity != "" {
		fmt.Fprintln(a.out, "id:     ", st.Identity)
	}
	if st.Address != "" {
		fmt.Fprintln(a.out, "address:", st.Address)
	}
	return nil
}

// Logout revokes the session and forgets it locally even when the server
// cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.wallet.Logout(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
