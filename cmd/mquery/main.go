// Command mquery runs one ranked query against the methodology corpus and
// prints the results.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/cmd/mquery/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
