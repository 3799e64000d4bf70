// Package sh provides an interactive shell to access TTSP registers.
package sh

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/retry"
	"github.com/robotalks/ttsp.go/pkg/transport"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell    *ishell.Shell
	Config   *periphspi.Config
	Registry *adapter.Registry
	Policy   retry.Policy
	Open     periphspi.OpenFunc

	// Current is the adapter name in use.
	Current string
	buses   map[string]periphspi.Bus
}

const (
	shellKey       = "$shell"
	unopenedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&UseCmd,
		&AdaptersCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *periphspi.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:    ishell.New(),
		Config:   conf,
		Registry: adapter.Default(),
		Policy:   retry.DefaultPolicy,
		Open:     periphspi.Open,
		buses:    make(map[string]periphspi.Bus),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unopenedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpened wraps command func requires an opened adapter.
func MustBeOpened(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Current == "" {
			c.Err(fmt.Errorf("no adapter opened"))
			return
		}
		fn(c)
	}
}

// OpenAdapter opens the bus and registers it as adapter name.
func (s *Shell) OpenAdapter(name string, conf *periphspi.Config) error {
	if name == "" {
		name = adapter.DefaultName
	}
	bus, err := s.Open(conf)
	if err != nil {
		return err
	}
	if err = s.Registry.Add(name, transport.New(name, bus)); err != nil {
		bus.Close()
		return err
	}
	if s.buses == nil {
		s.buses = make(map[string]periphspi.Bus)
	}
	s.buses[name] = bus
	s.Use(name)
	return nil
}

// CloseAdapter unregisters the adapter and closes its bus.
func (s *Shell) CloseAdapter(name string) error {
	if err := s.Registry.Del(name); err != nil {
		return err
	}
	bus := s.buses[name]
	delete(s.buses, name)
	if s.Current == name {
		s.Current = ""
		s.setPrompt(unopenedPrompt)
	}
	if bus != nil {
		return bus.Close()
	}
	return nil
}

// Use switches the current adapter.
func (s *Shell) Use(name string) error {
	if _, err := s.Registry.Get(name); err != nil {
		return err
	}
	s.Current = name
	s.setPrompt(fmt.Sprintf("%s > ", name))
	return nil
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Ops returns the current adapter with retry.
func (s *Shell) Ops() (adapter.Ops, error) {
	ops, err := s.Registry.Get(s.Current)
	if err != nil {
		return nil, err
	}
	return retry.Wrap(ops, s.Policy), nil
}

// ReadRegs reads n bytes from addr using the current adapter.
func (s *Shell) ReadRegs(addr uint16, n int) ([]byte, error) {
	ops, err := s.Ops()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err = ops.Read(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteRegs writes data at addr using the current adapter.
func (s *Shell) WriteRegs(addr uint16, data []byte) error {
	ops, err := s.Ops()
	if err != nil {
		return err
	}
	return ops.Write(addr, data)
}

// Print prints a value as JSON or with the text formatter.
func (s *Shell) Print(c *ishell.Context, v interface{}, text func() string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text())
}

// ParseAddr parses a register address, e.g. 0x1f0 or 496.
func ParseAddr(s string) (uint16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid ADDR %q: %v", s, err)
	}
	if val > transport.MaxRegister {
		return 0, fmt.Errorf("ADDR 0x%x out of range", val)
	}
	return uint16(val), nil
}

// ParseBytes parses bytes from args. Each arg is either a number
// (e.g. 0xaa, 170) or a hex string (e.g. aabbcc).
func ParseBytes(args []string) ([]byte, error) {
	var data []byte
	for _, arg := range args {
		if val, err := strconv.ParseUint(arg, 0, 8); err == nil {
			data = append(data, byte(val))
			continue
		}
		b, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid BYTE %q", arg)
		}
		data = append(data, b...)
	}
	return data, nil
}

// Dump formats bytes in rows of 16 prefixed with register address.
func Dump(addr uint16, data []byte) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		if off > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%03x: % x", int(addr)+off, data[off:end])
	}
	return sb.String()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if err := s.OpenAdapter("", s.Config); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.closeAll()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func (s *Shell) closeAll() {
	for name := range s.buses {
		s.CloseAdapter(name)
	}
}

type adapterInfo struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

var (
	// OpenCmd opens an SPI port as adapter.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[NAME [PORT]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var name string
			conf := *s.Config
			if len(c.Args) > 0 {
				name = c.Args[0]
			}
			if len(c.Args) > 1 {
				conf.Port = c.Args[1]
			}
			if err := s.OpenAdapter(name, &conf); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes an adapter.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "[NAME]",
		Func: MustBeOpened(func(c *ishell.Context) {
			s := ShellFrom(c)
			name := s.Current
			if len(c.Args) > 0 {
				name = c.Args[0]
			}
			if err := s.CloseAdapter(name); err != nil {
				c.Err(err)
			}
		}),
	}

	// UseCmd switches current adapter.
	UseCmd = ishell.Cmd{
		Name: "use",
		Help: "NAME",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("NAME required"))
				return
			}
			if err := ShellFrom(c).Use(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// AdaptersCmd lists adapters.
	AdaptersCmd = ishell.Cmd{
		Name:    "adapters",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infos := []adapterInfo{}
			for _, name := range s.Registry.Names() {
				infos = append(infos, adapterInfo{Name: name, Current: name == s.Current})
			}
			s.Print(c, infos, func() string {
				if len(infos) == 0 {
					return "No adapters opened"
				}
				lines := make([]string, len(infos))
				for n, info := range infos {
					lines[n] = "  " + info.Name
					if info.Current {
						lines[n] = "* " + info.Name
					}
				}
				return strings.Join(lines, "\n")
			})
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(periphspi.NewConfig()).WithAutoOpen(flag.NArg() > 0).Run(flag.Args()...)
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}
