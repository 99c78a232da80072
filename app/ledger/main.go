// This program provides one-shot command line access to the ledger
// store: creating accounts, queueing transfers and settling blocks.
package main

import "github.com/ledgersim/ledger/app/ledger/cmd"

func main() {
	cmd.Execute()
}
