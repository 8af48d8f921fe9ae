package main

import (
	"github.com/xkilldash9x/tabwire/cmd"
)

func main() {
	cmd.Execute()
}
