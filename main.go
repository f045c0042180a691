// The main package for the readingprogress executable.
package main

import (
	"github.com/JakeFAU/readingprogress/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
