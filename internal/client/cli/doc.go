// Package cli is the interactive shell of the vault client.
//
// Commands
//
//	register   create an account; generates a wallet or imports a mnemonic
//	login      restore the wallet from the server-held envelope
//	restore    reopen the persisted session without a password
//	rotate     replace the session key and re-seal the local session
//	address    push the current wallet address to the server
//	status     show session state and address
//	logout     revoke the session and forget it locally
//	exit       leave
//
// On start the shell tries restore silently, so a user with a live session
// never types the password again.
package cli
