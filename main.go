// Command stepwise runs guided, timed, step-by-step procedures.
package main

import "stepwise/internal/cli"

func main() {
	cli.Execute()
}
