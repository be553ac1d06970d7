// dropctl builds the item index cache and runs drop lookups from the shell.
package main

import (
	"os"

	"github.com/akalivaty/Artale-drop-bot/cmd/dropctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
