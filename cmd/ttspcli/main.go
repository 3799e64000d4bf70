package main

import (
	"github.com/robotalks/ttsp.go/pkg/cli/sh"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"

	_ "github.com/robotalks/ttsp.go/pkg/cli/cmds/regs"
)

//go-build: CGO_ENABLED=0

func init() {
	periphspi.SetupFlags()
}

func main() {
	sh.Main()
}
