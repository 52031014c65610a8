// Package main provides the traceline command line interface.
package main

import "github.com/leapstack-labs/traceline/internal/cli"

func main() {
	cli.Execute()
}
