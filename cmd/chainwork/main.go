// Chainwork CLI: manage assistant chains and run them locally with SQLite
// and an in-process bus. No daemon required.
package main

import "github.com/chainwork/chainwork/internal/chaincli"

func main() {
	chaincli.Main()
}
