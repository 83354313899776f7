// The main package for the metadata-scraper executable.
package main

import (
	"github.com/JakeFAU/metadata-scraper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
