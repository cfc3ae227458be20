// Command formguard runs the form-submission guard as a standalone service and
// provides maintenance commands for its ledger and policies.
package main

import "github.com/MrEthical07/formguard/internal/cli"

func main() {
	cli.Execute()
}
