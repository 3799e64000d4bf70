// Package regs provides register access commands for the shell.
package regs

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ttsp.go/pkg/cli/sh"
	"github.com/robotalks/ttsp.go/pkg/transport"
)

type readResult struct {
	Addr uint16 `json:"addr"`
	Data []byte `json:"data"`
}

type writeResult struct {
	Addr   uint16 `json:"addr"`
	Len    int    `json:"len"`
	Status string `json:"status"`
}

var (
	// ReadCmd reads a register block.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "ADDR [LEN]",
		Func: sh.MustBeOpened(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("ADDR required"))
				return
			}
			addr, err := sh.ParseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			n := 1
			if len(c.Args) > 1 {
				if n, err = strconv.Atoi(c.Args[1]); err != nil || n < 0 {
					c.Err(fmt.Errorf("invalid LEN %q", c.Args[1]))
					return
				}
			}
			s := sh.ShellFrom(c)
			data, err := s.ReadRegs(addr, n)
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, &readResult{Addr: addr, Data: data}, func() string {
				return sh.Dump(addr, data)
			})
		}),
	}

	// WriteCmd writes a register block.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "ADDR BYTE...",
		Func: sh.MustBeOpened(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("ADDR and BYTE required"))
				return
			}
			addr, err := sh.ParseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			data, err := sh.ParseBytes(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			if err = s.WriteRegs(addr, data); err != nil {
				c.Err(err)
				return
			}
			s.Print(c, &writeResult{Addr: addr, Len: len(data), Status: transport.StatusSuccess.String()}, func() string {
				return "OK"
			})
		}),
	}
)

func init() {
	sh.AddCmds(
		&ReadCmd,
		&WriteCmd,
	)
}
