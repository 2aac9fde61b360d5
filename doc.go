// Package securebank provides a Go client for the SecureBank secure gateway.
//
// Sensitive operations are authenticated end to end without passwords. The
// client keeps an ECDSA P-384 signing key on the device, wrapped under a
// short numeric PIN (PBKDF2-SHA256 + AES-256-GCM). Every call to the gateway
// is signed over a canonical JSON form of the request and sealed in a fresh
// session: an ephemeral ECDH P-384 key agreed with the server's public key,
// HKDF-SHA384, AES-256-GCM. Responses, including error bodies, are sealed
// with the same session key.
//
// Basic usage:
//
//	store, err := securebank.OpenKeyStore(securebank.KeyStoreFile, "key.json", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	client, err := securebank.New("https://bank.example", securebank.WithKeyStore(store))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// First run: create the key and register it.
//	key, err := client.SetUpKey(ctx, "123456")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer key.Destroy()
//
//	if _, err := client.Register(ctx, key, securebank.RegisterRequest{Username: "alice"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Later runs: unlock the stored key.
//	key, err = client.Unlock(ctx, "123456")
//	switch {
//	case errors.Is(err, securebank.ErrInvalidPIN):
//	    // wrong PIN, ask again
//	case errors.Is(err, securebank.ErrNoKey):
//	    // no account on this device
//	}
//
//	if _, err := client.Login(ctx, key, securebank.LoginRequest{Username: "alice"}); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := client.Transfer(ctx, key, securebank.TransferRequest{To: "0000000001", Amount: 100})
package securebank
