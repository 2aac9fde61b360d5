package securebank

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"register", RegisterRequest{Username: "alice"}, false},
		{"register with email-like name", RegisterRequest{Username: "alice@example.com", DisplayName: "Alice"}, false},
		{"register empty username", RegisterRequest{}, true},
		{"register bad characters", RegisterRequest{Username: "alice smith"}, true},
		{"register long username", RegisterRequest{Username: strings.Repeat("a", 65)}, true},
		{"login", LoginRequest{Username: "alice"}, false},
		{"login empty", LoginRequest{}, true},
		{"transfer", TransferRequest{To: "0000000001", Amount: 100}, false},
		{"transfer full", TransferRequest{From: "0000000002", To: "0000000001", Amount: 1, Currency: "EUR", Memo: "rent"}, false},
		{"transfer zero amount", TransferRequest{To: "0000000001"}, true},
		{"transfer negative amount", TransferRequest{To: "0000000001", Amount: -5}, true},
		{"transfer huge amount", TransferRequest{To: "0000000001", Amount: 1<<53 + 1}, true},
		{"transfer missing destination", TransferRequest{Amount: 100}, true},
		{"transfer non-digit destination", TransferRequest{To: "DE89-3704", Amount: 100}, true},
		{"transfer to self", TransferRequest{From: "0000000001", To: "0000000001", Amount: 100}, true},
		{"transfer bad currency", TransferRequest{To: "0000000001", Amount: 100, Currency: "eur"}, true},
		{"transfer long memo", TransferRequest{To: "0000000001", Amount: 100, Memo: strings.Repeat("x", 141)}, true},
		{"balance default account", BalanceRequest{}, false},
		{"balance account", BalanceRequest{AccountID: "0000000001"}, false},
		{"balance bad account", BalanceRequest{AccountID: "abc"}, true},
		{"transactions", TransactionsRequest{Limit: 100}, false},
		{"transactions negative limit", TransactionsRequest{Limit: -1}, true},
		{"transactions limit too high", TransactionsRequest{Limit: 101}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("error = %T, want *ValidationError", err)
			}
			if valErr.Target != tt.req.Target() {
				t.Errorf("Target = %q, want %q", valErr.Target, tt.req.Target())
			}
		})
	}
}

func TestTransferRequest_CollectsAllErrors(t *testing.T) {
	err := TransferRequest{Amount: -1, Currency: "x"}.Validate()

	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if len(valErr.Errors) != 3 {
		t.Errorf("Errors = %v, want 3 entries", valErr.Errors)
	}
}

func TestRequest_Payloads(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		wantParams string
		wantData   string
	}{
		{
			name:       "transfer minimal",
			req:        TransferRequest{To: "0000000001", Amount: 100},
			wantParams: `{}`,
			wantData:   `{"amount":100,"to":"0000000001"}`,
		},
		{
			name:       "transfer full",
			req:        TransferRequest{From: "0000000002", To: "0000000001", Amount: 5, Currency: "EUR", Memo: "rent"},
			wantParams: `{}`,
			wantData:   `{"amount":5,"currency":"EUR","from":"0000000002","memo":"rent","to":"0000000001"}`,
		},
		{
			name:       "register",
			req:        RegisterRequest{Username: "alice", DisplayName: "Alice"},
			wantParams: `{}`,
			wantData:   `{"display_name":"Alice","username":"alice"}`,
		},
		{
			name:       "login",
			req:        LoginRequest{Username: "alice"},
			wantParams: `{}`,
			wantData:   `{"username":"alice"}`,
		},
		{
			name:       "balance",
			req:        BalanceRequest{AccountID: "0000000001"},
			wantParams: `{"account_id":"0000000001"}`,
			wantData:   `{}`,
		},
		{
			name:       "transactions",
			req:        TransactionsRequest{AccountID: "0000000001", Limit: 20},
			wantParams: `{"account_id":"0000000001","limit":"20"}`,
			wantData:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := json.Marshal(tt.req.urlParams())
			if err != nil {
				t.Fatal(err)
			}
			if string(params) != tt.wantParams {
				t.Errorf("url_params = %s, want %s", params, tt.wantParams)
			}
			data, err := json.Marshal(tt.req.transactionData())
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.wantData {
				t.Errorf("transaction_data = %s, want %s", data, tt.wantData)
			}
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	resp := &Response{Fields: map[string]json.RawMessage{
		"transactions": json.RawMessage(`[{"id":"t1","from":"1","to":"2","amount":100,"currency":"EUR","timestamp":1700000000}]`),
	}}

	var out TransactionsResult
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(out.Transactions) != 1 || out.Transactions[0].Amount != 100 || out.Transactions[0].ID != "t1" {
		t.Errorf("Decode() = %+v", out)
	}

	bad := &Response{Fields: map[string]json.RawMessage{"balance": json.RawMessage(`"lots"`)}}
	var bal BalanceResult
	if err := bad.Decode(&bal); !errors.Is(err, ErrDecode) {
		t.Errorf("Decode() error = %v, want ErrDecode", err)
	}
}
