package securebank

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Gateway targets.
const (
	TargetRegister     = "register"
	TargetLogin        = "login"
	TargetTransfer     = "transfer"
	TargetBalance      = "balance"
	TargetTransactions = "transactions"
)

const (
	maxUsernameLength = 64
	maxMemoLength     = 140
	maxAccountLength  = 34
	maxTransactions   = 100
)

// Request is a secure gateway operation. The set of implementations is
// closed: RegisterRequest, LoginRequest, TransferRequest, BalanceRequest and
// TransactionsRequest.
type Request interface {
	// Target names the gateway operation.
	Target() string
	// Validate reports a *ValidationError for an ill-formed request.
	Validate() error

	urlParams() map[string]any
	transactionData() map[string]any
}

// validator collects validation failures for one target.
type validator struct {
	target string
	errs   []string
}

func (v *validator) check(ok bool, format string, args ...any) {
	if !ok {
		v.errs = append(v.errs, fmt.Sprintf(format, args...))
	}
}

func (v *validator) err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &ValidationError{Target: v.target, Errors: v.errs}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isUsername(s string) bool {
	if s == "" || len(s) > maxUsernameLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-', r == '@':
		default:
			return false
		}
	}
	return true
}

func isCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// RegisterRequest registers the signing key's public half for a new user.
// The public key travels in the signed envelope, not in the request.
type RegisterRequest struct {
	Username    string
	DisplayName string
}

func (RegisterRequest) Target() string { return TargetRegister }

func (r RegisterRequest) Validate() error {
	v := validator{target: TargetRegister}
	v.check(isUsername(r.Username), "username must be 1-%d letters, digits or . _ - @", maxUsernameLength)
	v.check(utf8.RuneCountInString(r.DisplayName) <= maxUsernameLength, "display name is longer than %d characters", maxUsernameLength)
	return v.err()
}

func (RegisterRequest) urlParams() map[string]any { return map[string]any{} }

func (r RegisterRequest) transactionData() map[string]any {
	data := map[string]any{"username": r.Username}
	if r.DisplayName != "" {
		data["display_name"] = r.DisplayName
	}
	return data
}

// LoginRequest proves possession of the registered key and obtains an
// access token.
type LoginRequest struct {
	Username string
}

func (LoginRequest) Target() string { return TargetLogin }

func (r LoginRequest) Validate() error {
	v := validator{target: TargetLogin}
	v.check(isUsername(r.Username), "username must be 1-%d letters, digits or . _ - @", maxUsernameLength)
	return v.err()
}

func (LoginRequest) urlParams() map[string]any { return map[string]any{} }

func (r LoginRequest) transactionData() map[string]any {
	return map[string]any{"username": r.Username}
}

// TransferRequest moves Amount minor currency units to account To.
type TransferRequest struct {
	From     string // optional source account; the server picks the default
	To       string
	Amount   int64
	Currency string // optional ISO 4217 code
	Memo     string
}

func (TransferRequest) Target() string { return TargetTransfer }

func (r TransferRequest) Validate() error {
	v := validator{target: TargetTransfer}
	v.check(isDigits(r.To) && len(r.To) <= maxAccountLength, "destination account must be 1-%d digits", maxAccountLength)
	v.check(r.From == "" || (isDigits(r.From) && len(r.From) <= maxAccountLength), "source account must be 1-%d digits", maxAccountLength)
	v.check(r.From == "" || r.From != r.To, "source and destination accounts must differ")
	v.check(r.Amount > 0, "amount must be positive")
	// Larger integers lose precision as JSON numbers.
	v.check(r.Amount <= 1<<53, "amount is too large")
	v.check(r.Currency == "" || isCurrency(r.Currency), "currency must be a 3-letter ISO 4217 code")
	v.check(utf8.RuneCountInString(r.Memo) <= maxMemoLength, "memo is longer than %d characters", maxMemoLength)
	return v.err()
}

func (TransferRequest) urlParams() map[string]any { return map[string]any{} }

func (r TransferRequest) transactionData() map[string]any {
	data := map[string]any{
		"to":     r.To,
		"amount": r.Amount,
	}
	if r.From != "" {
		data["from"] = r.From
	}
	if r.Currency != "" {
		data["currency"] = r.Currency
	}
	if r.Memo != "" {
		data["memo"] = r.Memo
	}
	return data
}

// BalanceRequest queries an account balance.
type BalanceRequest struct {
	AccountID string // optional; the server picks the default account
}

func (BalanceRequest) Target() string { return TargetBalance }

func (r BalanceRequest) Validate() error {
	v := validator{target: TargetBalance}
	v.check(r.AccountID == "" || (isDigits(r.AccountID) && len(r.AccountID) <= maxAccountLength), "account must be 1-%d digits", maxAccountLength)
	return v.err()
}

func (r BalanceRequest) urlParams() map[string]any {
	params := map[string]any{}
	if r.AccountID != "" {
		params["account_id"] = r.AccountID
	}
	return params
}

func (BalanceRequest) transactionData() map[string]any { return map[string]any{} }

// TransactionsRequest lists recent transactions, newest first.
type TransactionsRequest struct {
	AccountID string
	Limit     int // 0 lets the server choose
}

func (TransactionsRequest) Target() string { return TargetTransactions }

func (r TransactionsRequest) Validate() error {
	v := validator{target: TargetTransactions}
	v.check(r.AccountID == "" || (isDigits(r.AccountID) && len(r.AccountID) <= maxAccountLength), "account must be 1-%d digits", maxAccountLength)
	v.check(r.Limit >= 0 && r.Limit <= maxTransactions, "limit must be between 0 and %d", maxTransactions)
	return v.err()
}

func (r TransactionsRequest) urlParams() map[string]any {
	params := map[string]any{}
	if r.AccountID != "" {
		params["account_id"] = r.AccountID
	}
	if r.Limit > 0 {
		params["limit"] = strconv.Itoa(r.Limit)
	}
	return params
}

func (TransactionsRequest) transactionData() map[string]any { return map[string]any{} }

// RegisterResult is the gateway answer to a registration.
type RegisterResult struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// LoginResult is the gateway answer to a login. Access is also stored on
// the client and sent with later calls.
type LoginResult struct {
	UserID    string `json:"user_id"`
	Access    string `json:"access"`
	ExpiresIn int64  `json:"expires_in"`
}

// TransferResult is the gateway answer to a transfer.
type TransferResult struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Balance       int64  `json:"balance"`
}

// BalanceResult is the gateway answer to a balance query.
type BalanceResult struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Currency  string `json:"currency"`
}

// Transaction is one entry of a transaction history.
type Transaction struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Memo      string `json:"memo,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// TransactionsResult is the gateway answer to a transaction history query.
type TransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
}

// Response is a decrypted gateway success answer.
type Response struct {
	// Fields holds the top-level response fields as raw JSON.
	Fields map[string]json.RawMessage
	// Access is the access token carried by the response, if any.
	Access string
}

// Decode unmarshals the response fields into v.
func (r *Response) Decode(v any) error {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: response: %v", ErrDecode, err)
	}
	return nil
}

func call[T any](ctx context.Context, c *Client, key *SigningKey, req Request) (*T, error) {
	resp, err := c.SecureCall(ctx, key, req)
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register registers key's public half under req.Username.
func (c *Client) Register(ctx context.Context, key *SigningKey, req RegisterRequest) (*RegisterResult, error) {
	return call[RegisterResult](ctx, c, key, req)
}

// Login authenticates with key. On success the returned access token is
// used for later calls.
func (c *Client) Login(ctx context.Context, key *SigningKey, req LoginRequest) (*LoginResult, error) {
	return call[LoginResult](ctx, c, key, req)
}

// Transfer sends money.
func (c *Client) Transfer(ctx context.Context, key *SigningKey, req TransferRequest) (*TransferResult, error) {
	return call[TransferResult](ctx, c, key, req)
}

// Balance returns an account balance.
func (c *Client) Balance(ctx context.Context, key *SigningKey, req BalanceRequest) (*BalanceResult, error) {
	return call[BalanceResult](ctx, c, key, req)
}

// Transactions returns recent transactions.
func (c *Client) Transactions(ctx context.Context, key *SigningKey, req TransactionsRequest) (*TransactionsResult, error) {
	return call[TransactionsResult](ctx, c, key, req)
}
