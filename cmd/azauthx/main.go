// Command azauthx acquires Azure access tokens through the credential broker
// and sends authenticated requests to the configured API surfaces.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}
