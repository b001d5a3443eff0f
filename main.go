// Command checkin is a geosocial check-in client for ActivityPub servers.
package main

import (
	"os"

	"github.com/tkrehbiel/checkin/client/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		telemetry.Error(err, "checkin failed")
		os.Exit(1)
	}
}
