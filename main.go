// The main package for the filing-harvester executable.
package main

import (
	"github.com/finharvest/filing-harvester/cmd"
)

func main() {
	cmd.Execute()
}
