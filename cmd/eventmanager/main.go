// Command eventmanager runs the Teavent event manager process.
package main

import (
	"fmt"
	"os"

	"github.com/semyonkozlov/teave-eventmanager/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
