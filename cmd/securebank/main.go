// Command securebank is a command-line client for the SecureBank gateway.
//
// The signing key is kept in a local key store, wrapped under a PIN. The PIN
// is read from SECUREBANK_PIN or, if unset, from the first line of stdin.
// Results are printed as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	securebank "github.com/securebank/client-go"
)

const usage = `usage: securebank [--config file] [--env file] <command> [args]

commands:
  setup [--force]              create a signing key under a new PIN
  unlock                       check the PIN against the stored key
  status                       report whether a key is set up
  change-pin                   re-wrap the key under a new PIN
  reset                        delete the stored key
  register <username> [name]   register the key with the bank
  login <username>             log in and print an access token
  transfer <to> <amount> [memo]
  balance [account]
  transactions [limit]`

const commandTimeout = 60 * time.Second

// exitFunc is the function called to exit the program.
var exitFunc = os.Exit

// Config holds the IO and environment used by run.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string
}

// DefaultConfig returns a Config wired to the process.
func DefaultConfig() *Config {
	return &Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

// ClientInterface defines the client operations used by the CLI.
type ClientInterface interface {
	SetUpKey(ctx context.Context, pin string) (*securebank.SigningKey, error)
	Unlock(ctx context.Context, pin string) (*securebank.SigningKey, error)
	IsKeySet(ctx context.Context) (bool, error)
	ChangePIN(ctx context.Context, oldPIN, newPIN string) error
	ResetKey(ctx context.Context) error
	Register(ctx context.Context, key *securebank.SigningKey, req securebank.RegisterRequest) (*securebank.RegisterResult, error)
	Login(ctx context.Context, key *securebank.SigningKey, req securebank.LoginRequest) (*securebank.LoginResult, error)
	Transfer(ctx context.Context, key *securebank.SigningKey, req securebank.TransferRequest) (*securebank.TransferResult, error)
	Balance(ctx context.Context, key *securebank.SigningKey, req securebank.BalanceRequest) (*securebank.BalanceResult, error)
	Transactions(ctx context.Context, key *securebank.SigningKey, req securebank.TransactionsRequest) (*securebank.TransactionsResult, error)
	Close() error
}

// storeClient closes the key store together with the client.
type storeClient struct {
	*securebank.Client
	store securebank.KeyStore
}

func (c *storeClient) Close() error {
	return errors.Join(c.Client.Close(), c.store.Close())
}

// clientFactory creates the client; tests replace it.
var clientFactory = func(s *Settings, logger zerolog.Logger) (ClientInterface, error) {
	store, err := securebank.OpenKeyStore(securebank.KeyStoreKind(s.KeyStore.Kind), s.KeyStore.Path, s.KeyStore.Profile)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}

	client, err := securebank.New(s.BaseURL,
		securebank.WithKeyStore(store),
		securebank.WithLogger(logger),
		securebank.WithTimeout(s.Timeout),
		securebank.WithServerKeyTTL(s.ServerKeyTTL),
		securebank.WithPINLength(s.PINLength),
		securebank.WithAccessToken(s.AccessToken),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &storeClient{Client: client, store: store}, nil
}

type command func(ctx context.Context, client ClientInterface, args []string, cfg *Config) error

var commands = map[string]command{
	"setup":        runSetup,
	"unlock":       runUnlock,
	"status":       runStatus,
	"change-pin":   runChangePIN,
	"reset":        runReset,
	"register":     runRegister,
	"login":        runLogin,
	"transfer":     runTransfer,
	"balance":      runBalance,
	"transactions": runTransactions,
}

func run(args []string, cfg *Config) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	fset := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	configPath := fset.String("config", defaultConfigPath, "YAML configuration file")
	envPath := fset.String("env", ".env", "dotenv file")
	if err := fset.Parse(args[1:]); err != nil {
		return fmt.Errorf("%v\n%s", err, usage)
	}

	rest := fset.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}
	if rest[0] == "help" {
		fmt.Fprintln(cfg.Stdout, usage)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s\n%s", rest[0], usage)
	}

	if err := LoadDotEnv(*envPath); err != nil {
		return err
	}
	settings, err := LoadSettings(*configPath, cfg.Getenv)
	if err != nil {
		return err
	}
	logger, err := settings.NewLogger(cfg.Stderr)
	if err != nil {
		return err
	}

	client, err := clientFactory(settings, logger)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return cmd(ctx, client, rest[1:], cfg)
}

// pinReader reads PINs from the environment or stdin, one per line.
type pinReader struct {
	cfg *Config
	in  *bufio.Reader
}

func newPINReader(cfg *Config) *pinReader {
	return &pinReader{cfg: cfg}
}

func (p *pinReader) read(envKey string) (string, error) {
	if p.cfg.Getenv != nil {
		if pin := strings.TrimSpace(p.cfg.Getenv(envKey)); pin != "" {
			return pin, nil
		}
	}
	if p.cfg.Stdin == nil {
		return "", fmt.Errorf("no PIN: set %s or pass it on stdin", envKey)
	}
	if p.in == nil {
		p.in = bufio.NewReader(p.cfg.Stdin)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read PIN from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func unlock(ctx context.Context, client ClientInterface, cfg *Config) (*securebank.SigningKey, error) {
	pin, err := newPINReader(cfg).read("SECUREBANK_PIN")
	if err != nil {
		return nil, err
	}
	key, err := client.Unlock(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("unlock: %w", err)
	}
	return key, nil
}

func writeJSON(cfg *Config, v any) error {
	enc := json.NewEncoder(cfg.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSetup(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	force := len(args) > 0 && args[0] == "--force"
	if !force {
		set, err := client.IsKeySet(ctx)
		if err != nil {
			return fmt.Errorf("check key: %w", err)
		}
		if set {
			return errors.New("a key is already set up; use setup --force to replace it")
		}
	}

	pin, err := newPINReader(cfg).read("SECUREBANK_PIN")
	if err != nil {
		return err
	}
	key, err := client.SetUpKey(ctx, pin)
	if err != nil {
		return fmt.Errorf("set up key: %w", err)
	}
	defer key.Destroy()

	return writeJSON(cfg, map[string]string{"public_key": key.PublicKeyPEM()})
}

func runUnlock(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	return writeJSON(cfg, map[string]any{"unlocked": true, "public_key": key.PublicKeyPEM()})
}

func runStatus(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	set, err := client.IsKeySet(ctx)
	if err != nil {
		return fmt.Errorf("check key: %w", err)
	}
	return writeJSON(cfg, map[string]bool{"key_set": set})
}

func runChangePIN(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	pins := newPINReader(cfg)
	oldPIN, err := pins.read("SECUREBANK_PIN")
	if err != nil {
		return err
	}
	newPIN, err := pins.read("SECUREBANK_NEW_PIN")
	if err != nil {
		return err
	}
	if err := client.ChangePIN(ctx, oldPIN, newPIN); err != nil {
		return fmt.Errorf("change PIN: %w", err)
	}
	return writeJSON(cfg, map[string]bool{"changed": true})
}

func runReset(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	if err := client.ResetKey(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return writeJSON(cfg, map[string]bool{"reset": true})
}

func runRegister(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	if len(args) < 1 {
		return errors.New("usage: securebank register <username> [display name]")
	}
	req := securebank.RegisterRequest{Username: args[0]}
	if len(args) > 1 {
		req.DisplayName = strings.Join(args[1:], " ")
	}

	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	res, err := client.Register(ctx, key, req)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return writeJSON(cfg, res)
}

func runLogin(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	if len(args) != 1 {
		return errors.New("usage: securebank login <username>")
	}

	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	res, err := client.Login(ctx, key, securebank.LoginRequest{Username: args[0]})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return writeJSON(cfg, res)
}

func runTransfer(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	if len(args) < 2 {
		return errors.New("usage: securebank transfer <to> <amount> [memo]")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be an integer number of minor units: %w", err)
	}
	req := securebank.TransferRequest{To: args[0], Amount: amount}
	if len(args) > 2 {
		req.Memo = strings.Join(args[2:], " ")
	}

	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	res, err := client.Transfer(ctx, key, req)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return writeJSON(cfg, res)
}

func runBalance(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	var req securebank.BalanceRequest
	if len(args) > 0 {
		req.AccountID = args[0]
	}

	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	res, err := client.Balance(ctx, key, req)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	return writeJSON(cfg, res)
}

func runTransactions(ctx context.Context, client ClientInterface, args []string, cfg *Config) error {
	var req securebank.TransactionsRequest
	if len(args) > 0 {
		limit, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("limit must be an integer: %w", err)
		}
		req.Limit = limit
	}

	key, err := unlock(ctx, client, cfg)
	if err != nil {
		return err
	}
	defer key.Destroy()

	res, err := client.Transactions(ctx, key, req)
	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}
	return writeJSON(cfg, res)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	exitFunc(1)
}
