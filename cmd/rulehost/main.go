// Command rulehost runs the bundled rule packs against domain objects.
package main

import "carerules/internal/cli"

func main() {
	cli.Execute()
}
