package domain

// CustodyWallet is a keypair held on the user's behalf so actions can be
// signed without an external wallet extension. PrivateKey never leaves the
// device; Address is derived from it and re-checked on every load.
type CustodyWallet struct {
	UserID     string
	PrivateKey []byte
	Address    string
}
