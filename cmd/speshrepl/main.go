// Command speshrepl is an interactive shell over the same planning
// machinery speshctl drives from the command line, for operators who want
// to load a fixture once and run several plan/config tweaks against it
// without re-parsing the file each time.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cosiner/argv"
	"github.com/go-delve/liner"

	"github.com/scovit/spesh/internal/config"
	"github.com/scovit/spesh/internal/fixture"
	"github.com/scovit/spesh/internal/logflags"
	"github.com/scovit/spesh/internal/trace"
	"github.com/scovit/spesh/pkg/spesh"
)

const historyFile = ".spesh_repl_history"

type session struct {
	cfg    *config.Config
	frames []*spesh.StaticFrame
	path   string

	sc *trace.Scenario
}

func main() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	s := &session{cfg: config.Default()}
	fmt.Println("speshctl repl. Type 'help' for commands, 'exit' to quit.")

	for {
		input, err := line.Prompt("spesh> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !s.dispatch(input) {
			break
		}
	}

	if f, err := os.Create(historyFile); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

// dispatch splits and runs one REPL line, returning false to request the
// session end. argv.Argv is used over strings.Fields so quoted fixture
// paths with spaces work the same way they would on a shell command line.
func (s *session) dispatch(input string) bool {
	groups, err := argv.Argv(input, nil, nil)
	if err != nil || len(groups) == 0 || len(groups[0]) == 0 {
		fmt.Fprintln(os.Stderr, "could not parse input:", err)
		return true
	}
	args := groups[0]
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help":
		s.help()
	case "exit", "quit":
		return false
	case "log":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: log <deopt,plan,all,->")
			break
		}
		if rest[0] == "-" {
			logflags.Setup("")
		} else {
			logflags.Setup(rest[0])
		}
	case "load":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: load <fixture.yaml>")
			break
		}
		sfs, err := fixture.Load(rest[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "load:", err)
			break
		}
		s.frames, s.path = sfs, rest[0]
		fmt.Printf("loaded %d frames from %s\n", len(sfs), rest[0])
	case "plan":
		if s.frames == nil {
			fmt.Fprintln(os.Stderr, "no fixture loaded; use 'load <fixture.yaml>' first")
			break
		}
		b := spesh.NewPlanBuilder(s.cfg)
		plan, counters := b.Plan(s.frames)
		fmt.Printf("plan: %d entries (certain=%d observed=%d osr=%d)\n",
			len(plan.Planned), counters.Certain, counters.ObservedType, counters.OSR)
		for i, p := range plan.Planned {
			fmt.Printf("  %2d. %s/%s depth=%d\n", i+1, p.SF.CUID, p.SF.Name, p.MaxDepth)
		}
	case "scenario":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: scenario <trace.yaml>")
			break
		}
		doc, err := trace.Load(rest[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "scenario:", err)
			break
		}
		sc, err := trace.NewScenario(doc)
		if err != nil {
			fmt.Fprintln(os.Stderr, "scenario:", err)
			break
		}
		s.sc = sc
		fmt.Printf("scenario loaded: %d frames, current=%s\n", len(sc.Frames), sc.Cur.StaticFrame.Name)
	case "deopt":
		if s.sc == nil {
			fmt.Fprintln(os.Stderr, "no scenario loaded; use 'scenario <trace.yaml>' first")
			break
		}
		switch {
		case len(rest) == 2 && rest[0] == "one":
			var target uint32
			if _, err := fmt.Sscanf(rest[1], "%d", &target); err != nil {
				fmt.Fprintln(os.Stderr, "deopt one:", err)
				break
			}
			s.sc.DeoptOne(target)
			s.showChain()
		case len(rest) == 1 && rest[0] == "all":
			s.sc.DeoptAll()
			s.showChain()
		default:
			fmt.Fprintln(os.Stderr, "usage: deopt one <target> | deopt all")
		}
	case "show":
		if len(rest) != 2 || rest[0] != "frame" {
			fmt.Fprintln(os.Stderr, "usage: show frame <name>")
			break
		}
		if s.sc == nil {
			fmt.Fprintln(os.Stderr, "no scenario loaded; use 'scenario <trace.yaml>' first")
			break
		}
		f, ok := s.sc.Frames[rest[1]]
		if !ok {
			fmt.Fprintf(os.Stderr, "no such frame %q\n", rest[1])
			break
		}
		state := "generic"
		if f.IsSpecialized() {
			state = "specialized"
		}
		fmt.Printf("%s: %s return=%d\n", f.StaticFrame.Name, state, f.ReturnAddress)
	case "threshold":
		if len(rest) != 1 {
			fmt.Fprintln(os.Stderr, "usage: threshold <n>")
			break
		}
		var n uint32
		if _, err := fmt.Sscanf(rest[0], "%d", &n); err != nil {
			fmt.Fprintln(os.Stderr, "threshold:", err)
			break
		}
		s.cfg.StaticFrameHotness = n
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; try 'help'\n", cmd)
	}
	return true
}

func (s *session) showChain() {
	for _, fs := range s.sc.Chain().Chain {
		state := "generic"
		if fs.Specialized {
			state = "specialized"
		}
		fmt.Printf("  %-20s %-12s return=%d\n", fs.Name, state, fs.ReturnAddress)
	}
}

func (s *session) help() {
	fmt.Println(`commands:
  load <fixture.yaml>     load a statistics fixture
  plan                    build and print the plan for the loaded fixture
  threshold <n>           override the default static-frame hotness threshold
  scenario <trace.yaml>   load a synthetic frame graph for manual deopt exploration
  deopt one <target>      run DeoptOne against the scenario's current frame
  deopt all               run DeoptAll against the scenario's current frame
  show frame <name>       print one scenario frame's specialization state
  log <deopt,plan,all,->  toggle debug logging, '-' disables it
  exit                    leave the repl`)
}
