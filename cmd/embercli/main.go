// embercli is a command-line client for the ember wallet engine. It runs
// the engine in-process against the local encrypted vault; no daemon is
// required.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/emberwallet/ember-core/config"
	"github.com/emberwallet/ember-core/internal/chain"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/internal/replay"
	"github.com/emberwallet/ember-core/internal/securestore"
	"github.com/emberwallet/ember-core/internal/storage"
	"github.com/emberwallet/ember-core/internal/wallet"
	"github.com/emberwallet/ember-core/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	// Scan for --network and --datadir overrides before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--network" && len(args) > 1:
			cfg.Network = args[1]
			args = args[2:]
		case args[0] == "--datadir" && len(args) > 1:
			cfg.DataDir = args[1]
			args = args[2:]
		default:
			goto dispatch
		}
	}

dispatch:
	if !cfg.NetworkType().Valid() {
		fatal("unknown network %q", cfg.Network)
	}
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	if err := log.Init(cfg.LogLevel, cfg.LogJSON, cfg.LogFile); err != nil {
		fatal("init logging: %v", err)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "create":
		withEngine(cfg, func(m *wallet.Manager) { cmdCreate(m, cmdArgs) })
	case "import":
		withEngine(cfg, func(m *wallet.Manager) { cmdImport(m, cmdArgs) })
	case "list":
		withEngine(cfg, func(m *wallet.Manager) { cmdList(m) })
	case "address":
		withEngine(cfg, func(m *wallet.Manager) { cmdAddress(m, cmdArgs) })
	case "accounts":
		withEngine(cfg, func(m *wallet.Manager) { cmdAccounts(m, cmdArgs) })
	case "new-account":
		withEngine(cfg, func(m *wallet.Manager) { cmdNewAccount(m, cmdArgs) })
	case "balance":
		withEngine(cfg, func(m *wallet.Manager) { cmdBalance(m, cmdArgs) })
	case "history":
		withEngine(cfg, func(m *wallet.Manager) { cmdHistory(m, cmdArgs) })
	case "fee":
		withEngine(cfg, func(m *wallet.Manager) { cmdFee(m, cmdArgs) })
	case "send":
		withEngine(cfg, func(m *wallet.Manager) { cmdSend(m, cmdArgs) })
	case "backup":
		withEngine(cfg, func(m *wallet.Manager) { cmdBackup(m, cmdArgs) })
	case "restore":
		withEngine(cfg, func(m *wallet.Manager) { cmdRestore(m, cmdArgs) })
	case "delete":
		withEngine(cfg, func(m *wallet.Manager) { cmdDelete(m, cmdArgs) })
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: embercli [global flags] <command> [flags]

Global flags:
  --network <net>     mainnet (default) or testnet
  --datadir <path>    Data directory (default: platform data dir)

Commands:
  create --name <n>                Create a new wallet (prints mnemonic once)
  import --name <n> --mnemonic "..."
                                   Import wallet from a BIP-39 mnemonic
  list                             List stored wallets
  address --wallet <w>             Show receive addresses (works while locked)
  accounts --wallet <w>            List derived accounts
  new-account --wallet <w> --chain <c> [--label <name>]
                                   Derive the next account on a chain
  balance --wallet <w> --chain <c> Show on-chain balance
  history --wallet <w> --chain <c> Show confirmed transaction history
  fee --wallet <w> --chain <c> --to <addr> --amount <n>
                                   Estimate the cost of a transfer
  send --wallet <w> --chain <c> --to <addr> --amount <n> [--token <addr>]
                                   Sign and broadcast a transfer
  backup --wallet <w> --out <file> Export an encrypted wallet backup
  restore --backup <file>          Restore a wallet from a backup file
  delete --wallet <w>              Delete a stored wallet

Chains: ethereum, bitcoin, solana. Amounts are integer base units
(wei, satoshi, lamports). Endpoints and policy come from EMBER_*
environment variables.
`)
}

// withEngine wires storage, vault, replay guard and chain backends, runs
// fn, and closes the database afterwards.
func withEngine(cfg *config.Config, fn func(*wallet.Manager)) {
	db, err := storage.NewBadger(cfg.VaultDir())
	if err != nil {
		fatal("open vault database: %v", err)
	}
	defer db.Close()

	vault := securestore.NewVault(db, nil)
	guard := replay.NewGuard(
		replay.WithWindow(cfg.ReplayWindow),
		replay.WithMaxSeenTxIDs(cfg.ReplayMaxSeenTxIDs),
		replay.WithMaxNonceJump(cfg.ReplayMaxNonceJump),
	)
	netCfg := netclient.Config{
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	}
	network := cfg.NetworkType()

	m := wallet.NewManager(db, vault, guard, network, securestore.Options{})

	eth := netclient.NewEthereumClient(cfg.EthereumRPCURL, netCfg)
	m.RegisterChain(chain.NewEthereumProvider(eth, uint64(cfg.EthereumChainID), network), eth)

	btc := netclient.NewBitcoinClient(cfg.BitcoinAPIURL, netCfg)
	m.RegisterChain(chain.NewBitcoinProvider(btc, network), btc)

	sol := netclient.NewSolanaClient(cfg.SolanaRPCURL, netCfg)
	m.RegisterChain(chain.NewSolanaProvider(sol, network), sol)

	fn(m)
}

// ── create / import ─────────────────────────────────────────────────────

func cmdCreate(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: embercli create --name <name>")
	}

	password := promptNewPassword()
	phrase, err := m.CreateWallet(*name, password)
	if err != nil {
		fatal("create wallet: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", phrase)
	fmt.Printf("Wallet created: %s\n", *name)
	printAddresses(m, *name)
}

func cmdImport(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	phrase := fs.String("mnemonic", "", "BIP-39 mnemonic")
	fs.Parse(args)

	if *name == "" || *phrase == "" {
		fatal("Usage: embercli import --name <name> --mnemonic \"word1 word2 ...\"")
	}

	password := promptNewPassword()
	if err := m.ImportWallet(*name, *phrase, password); err != nil {
		fatal("import wallet: %v", err)
	}

	fmt.Printf("Wallet imported: %s\n", *name)
	printAddresses(m, *name)
}

// ── list / address / accounts ───────────────────────────────────────────

func cmdList(m *wallet.Manager) {
	names, err := m.ListWallets()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdAddress(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: embercli address --wallet <name>")
	}
	printAddresses(m, *walletName)
}

func cmdAccounts(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: embercli accounts --wallet <name>")
	}

	accounts, err := m.ListAccounts(*walletName)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	for _, a := range accounts {
		fmt.Printf("  [%s/%d] %s  %s\n", a.Chain, a.Index, a.Name, a.Address)
	}
}

func cmdNewAccount(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("new-account", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	chainName := fs.String("chain", "", "Chain (ethereum, bitcoin, solana)")
	label := fs.String("label", "", "Account label")
	fs.Parse(args)

	if *walletName == "" || *chainName == "" {
		fatal("Usage: embercli new-account --wallet <name> --chain <c> [--label <name>]")
	}

	unlock(m, *walletName)
	entry, err := m.NewAccount(parseChain(*chainName), *label)
	if err != nil {
		fatal("new account: %v", err)
	}
	fmt.Printf("Account %d: %s\n", entry.Index, entry.Address)
}

// ── balance / history / fee ─────────────────────────────────────────────

func cmdBalance(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	chainName := fs.String("chain", "", "Chain")
	fs.Parse(args)

	if *walletName == "" || *chainName == "" {
		fatal("Usage: embercli balance --wallet <name> --chain <c>")
	}

	unlock(m, *walletName)
	balance, err := m.GetBalance(context.Background(), parseChain(*chainName))
	if err != nil {
		fatal("get balance: %v", err)
	}
	fmt.Printf("Balance: %s\n", balance)
}

func cmdHistory(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	chainName := fs.String("chain", "", "Chain")
	fs.Parse(args)

	if *walletName == "" || *chainName == "" {
		fatal("Usage: embercli history --wallet <name> --chain <c>")
	}

	unlock(m, *walletName)
	entries, err := m.GetTransactionHistory(context.Background(), parseChain(*chainName))
	if err != nil {
		fatal("get history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("No transactions found.")
		return
	}
	for _, e := range entries {
		dir := "out"
		if e.Incoming {
			dir = "in"
		}
		fmt.Printf("  %s  %-3s %s  %s\n", e.Timestamp.Format("2006-01-02 15:04"), dir, e.Amount, e.TxID)
	}
}

func cmdFee(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("fee", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	chainName := fs.String("chain", "", "Chain")
	toAddr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in base units")
	fs.Parse(args)

	if *walletName == "" || *chainName == "" || *toAddr == "" || *amountStr == "" {
		fatal("Usage: embercli fee --wallet <name> --chain <c> --to <addr> --amount <n>")
	}

	unlock(m, *walletName)
	estimate, err := m.EstimateFee(context.Background(), parseChain(*chainName), *toAddr, parseAmount(*amountStr))
	if err != nil {
		fatal("estimate fee: %v", err)
	}
	fmt.Printf("Estimated cost: %s\n", estimate.Total)
}

// ── send ────────────────────────────────────────────────────────────────

func cmdSend(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	chainName := fs.String("chain", "", "Chain")
	toAddr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount in base units")
	token := fs.String("token", "", "Token contract or mint (optional)")
	fs.Parse(args)

	if *walletName == "" || *chainName == "" || *toAddr == "" || *amountStr == "" {
		fatal("Usage: embercli send --wallet <name> --chain <c> --to <addr> --amount <n> [--token <addr>]")
	}

	unlock(m, *walletName)
	txid, err := m.SendTransaction(context.Background(), parseChain(*chainName), *toAddr, parseAmount(*amountStr), *token)
	if err != nil {
		fatal("send: %v", err)
	}
	fmt.Printf("Submitted: %s\n", txid)
}

// ── backup / restore / delete ───────────────────────────────────────────

func cmdBackup(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	out := fs.String("out", "", "Output file")
	fs.Parse(args)

	if *walletName == "" || *out == "" {
		fatal("Usage: embercli backup --wallet <name> --out <file>")
	}

	password, err := readPassword("Enter wallet password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	backupPassword, err := readPassword("Enter backup password: ")
	if err != nil {
		fatal("read password: %v", err)
	}

	backup, err := m.BackupWallet(context.Background(), *walletName, string(password), string(backupPassword))
	if err != nil {
		fatal("backup: %v", err)
	}
	if err := os.WriteFile(*out, backup, 0600); err != nil {
		fatal("write backup file: %v", err)
	}
	fmt.Printf("Backup written: %s\n", *out)
}

func cmdRestore(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	backupFile := fs.String("backup", "", "Backup file")
	fs.Parse(args)

	if *backupFile == "" {
		fatal("Usage: embercli restore --backup <file>")
	}

	backup, err := os.ReadFile(*backupFile)
	if err != nil {
		fatal("read backup file: %v", err)
	}
	backupPassword, err := readPassword("Enter backup password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	password := promptNewPassword()

	id, err := m.RestoreFromBackup(backup, string(backupPassword), password)
	if err != nil {
		fatal("restore: %v", err)
	}
	fmt.Printf("Wallet restored: %s\n", id)
	printAddresses(m, id)
}

func cmdDelete(m *wallet.Manager, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: embercli delete --wallet <name>")
	}
	if err := m.DeleteWallet(*walletName); err != nil {
		fatal("delete wallet: %v", err)
	}
	fmt.Printf("Wallet deleted: %s\n", *walletName)
}

// ── helpers ─────────────────────────────────────────────────────────────

func parseChain(name string) types.Chain {
	c, err := types.ParseChain(name)
	if err != nil {
		fatal("unknown chain %q (ethereum, bitcoin, solana)", name)
	}
	return c
}

func parseAmount(s string) *big.Int {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		fatal("invalid amount %q: want a positive integer in base units", s)
	}
	return amount
}

// unlock prompts for the wallet password and unlocks the engine.
func unlock(m *wallet.Manager, name string) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if err := m.UnlockWallet(context.Background(), name, string(password)); err != nil {
		fatal("unlock wallet: %v", err)
	}
}

// promptNewPassword asks for a new password twice.
func promptNewPassword() string {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return string(password)
}

func printAddresses(m *wallet.Manager, name string) {
	addrs, err := m.Addresses(name)
	if err != nil {
		fatal("load addresses: %v", err)
	}
	for _, c := range []types.Chain{types.ChainEthereum, types.ChainBitcoin, types.ChainSolana} {
		if addr, ok := addrs[c]; ok {
			fmt.Printf("  %-9s %s\n", c, addr)
		}
	}
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
