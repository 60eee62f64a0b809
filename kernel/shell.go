package kernel

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// commandTable lists every spawnable shell command, grounded directly on
// the userland command set: each one is its own process, receiving
// argv[0] as its own name, reading stdin and writing stdout through
// whatever endpoints the shell wired up before createProcess.
var commandTable = map[string]Entry{
	"echo":   cmdEcho,
	"cat":    cmdCat,
	"wc":     cmdWC,
	"filter": cmdFilter,
	"mem":    cmdMem,
	"ps":     cmdPS,
	"kill":   cmdKill,
	"nice":   cmdNice,
	"sleep":  cmdSleep,
}

// ShellEntry is the interactive command loop every shell process (pid 2,
// respawned by init whenever it exits) runs. It is a deliberately reduced
// command set compared to the userland it is grounded on, but keeps the
// same shape: a read-eval loop, a single optional pipe stage, a trailing
// "&" for background, and a couple of commands (getpid, history, exit)
// handled inline rather than spawned as separate processes.
func ShellEntry(ctx *Context, argv []string) int {
	history := make([]string, 0, 10)

	for {
		if _, err := ctx.Write(1, []byte("shell $ ")); err != nil {
			return 0
		}

		line, ok := readLine(ctx)
		if !ok {
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if len(history) == 10 {
			history = history[1:]
		}
		history = append(history, line)

		if line == "exit" {
			return 0
		}
		if line == "history" {
			for i := len(history) - 1; i >= 0; i-- {
				fmt.Fprintf(writer{ctx}, "%d. %s\n", len(history)-1-i, history[i])
			}
			continue
		}
		if line == "getpid" {
			fmt.Fprintf(writer{ctx}, "%d\n", ctx.PID())
			continue
		}
		if line == "help" {
			names := make([]string, 0, len(commandTable)+3)
			for name := range commandTable {
				names = append(names, name)
			}
			names = append(names, "getpid", "history", "exit")
			fmt.Fprintf(writer{ctx}, "%s\n", strings.Join(names, " "))
			continue
		}

		runPipeline(ctx, line)
	}
}

type writer struct{ ctx *Context }

func (w writer) Write(p []byte) (int, error) { return w.ctx.Write(1, p) }

// readLine reads stdin one byte at a time until a newline or EOF,
// supporting backspace the way the source's capture_line does.
func readLine(ctx *Context) (string, bool) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := ctx.Read(0, buf)
		if n == 0 {
			if err == io.EOF || err != nil {
				return sb.String(), sb.Len() > 0
			}
			continue
		}
		switch buf[0] {
		case '\n', '\r':
			ctx.Write(1, []byte("\n"))
			return sb.String(), true
		case 0x7f, 0x08: // DEL, backspace
			s := sb.String()
			if len(s) > 0 {
				sb.Reset()
				sb.WriteString(s[:len(s)-1])
				ctx.Write(1, []byte("\b \b"))
			}
		default:
			sb.WriteByte(buf[0])
			ctx.Write(1, buf)
		}
	}
}

// runPipeline parses at most two stages separated by "|", a trailing "&"
// marking the whole pipeline background, and wires stdio endpoints the
// same way the source's run_pipeline does: the upstream process's stdout
// becomes the downstream process's stdin through one shared pipe.
func runPipeline(ctx *Context, line string) {
	background := false
	if strings.HasSuffix(line, "&") {
		background = true
		line = strings.TrimSpace(strings.TrimSuffix(line, "&"))
	}

	stages := strings.Split(line, "|")
	if len(stages) > 2 {
		fmt.Fprintf(writer{ctx}, "shell: cannot pipe more than two processes at once\n")
		return
	}

	type invocation struct {
		name string
		argv []string
	}
	parsed := make([]invocation, 0, len(stages))
	for _, stage := range stages {
		fields := strings.Fields(stage)
		if len(fields) == 0 {
			fmt.Fprintf(writer{ctx}, "shell: syntax error near '|'\n")
			return
		}
		if _, ok := commandTable[fields[0]]; !ok {
			fmt.Fprintf(writer{ctx}, "shell: command not found: %s\n", fields[0])
			return
		}
		parsed = append(parsed, invocation{name: fields[0], argv: fields})
	}

	var pipeID = -1
	var err error
	if len(parsed) == 2 {
		pipeID, err = ctx.k.pipes.Open()
		if err != nil {
			fmt.Fprintf(writer{ctx}, "shell: unable to create pipe: %v\n", err)
			return
		}
	}

	pids := make([]int, 0, len(parsed))
	for i, inv := range parsed {
		readEP := Endpoint{Type: EndpointConsole}
		writeEP := Endpoint{Type: EndpointConsole}
		if i == 1 {
			readEP = Endpoint{Type: EndpointPipe, PipeID: pipeID}
		}
		if i == 0 && len(parsed) == 2 {
			writeEP = Endpoint{Type: EndpointPipe, PipeID: pipeID}
		}

		isLast := i == len(parsed)-1
		stageBackground := background || !isLast

		pid, cerr := ctx.k.CreateProcess(commandTable[inv.name], inv.name, inv.argv, Mid, ctx.PID(), stageBackground)
		if cerr != nil {
			fmt.Fprintf(writer{ctx}, "shell: unable to create process for '%s': %v\n", inv.name, cerr)
			continue
		}

		if readEP.Type == EndpointPipe {
			ctx.k.table.setEndpoint(ctx.k.table.Get(pid), true, readEP)
		}
		if writeEP.Type == EndpointPipe {
			ctx.k.table.setEndpoint(ctx.k.table.Get(pid), false, writeEP)
		}

		pids = append(pids, pid)
	}

	if !background {
		for i := len(pids) - 1; i >= 0; i-- {
			ctx.k.table.WaitPID(ctx, pids[i])
		}
	}
}

func cmdEcho(ctx *Context, argv []string) int {
	ctx.Write(1, []byte(strings.Join(argv[1:], " ")+"\n"))
	return 0
}

func cmdCat(ctx *Context, argv []string) int {
	buf := make([]byte, 256)
	for {
		n, err := ctx.Read(0, buf)
		if n > 0 {
			ctx.Write(1, buf[:n])
		}
		if err != nil || n == 0 {
			return 0
		}
	}
}

func cmdWC(ctx *Context, argv []string) int {
	buf := make([]byte, 256)
	lines := 0
	for {
		n, err := ctx.Read(0, buf)
		for i := 0; i < n; i++ {
			if buf[i] == '\n' {
				lines++
			}
		}
		if err != nil || n == 0 {
			fmt.Fprintf(writer{ctx}, "%d\n", lines)
			return 0
		}
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}

func cmdFilter(ctx *Context, argv []string) int {
	buf := make([]byte, 256)
	for {
		n, err := ctx.Read(0, buf)
		out := make([]byte, 0, n)
		for i := 0; i < n; i++ {
			if !isVowel(buf[i]) {
				out = append(out, buf[i])
			}
		}
		if len(out) > 0 {
			ctx.Write(1, out)
		}
		if err != nil || n == 0 {
			return 0
		}
	}
}

func cmdMem(ctx *Context, argv []string) int {
	total, used, available := ctx.k.MemStats()
	pct := 0
	if total > 0 {
		pct = used * 100 / total
	}
	fmt.Fprintf(writer{ctx}, "total %d used %d available %d (%d%%)\n", total, used, available, pct)
	return 0
}

func cmdPS(ctx *Context, argv []string) int {
	procs := ctx.k.PS()
	fmt.Fprintf(writer{ctx}, "PID\tPPID\tNAME\tSTATE\tPRIO\tFG\n")
	for _, p := range procs {
		fmt.Fprintf(writer{ctx}, "%d\t%d\t%s\t%s\t%s\t%v\n", p.PID, p.PPID, p.Name, p.State, p.Priority, p.Foreground)
	}
	return 0
}

func cmdKill(ctx *Context, argv []string) int {
	if len(argv) != 2 {
		fmt.Fprintf(writer{ctx}, "Usage: kill <pid>\n")
		return 1
	}
	pid, err := strconv.Atoi(argv[1])
	if err != nil {
		fmt.Fprintf(writer{ctx}, "kill: invalid pid %q\n", argv[1])
		return 1
	}
	if err := ctx.k.table.Kill(ctx, pid); err != nil {
		fmt.Fprintf(writer{ctx}, "kill: unable to terminate pid %d: %v\n", pid, err)
		return 1
	}
	fmt.Fprintf(writer{ctx}, "terminated pid %d\n", pid)
	return 0
}

func cmdNice(ctx *Context, argv []string) int {
	if len(argv) != 3 {
		fmt.Fprintf(writer{ctx}, "Usage: nice <pid> <priority>\n")
		return 1
	}
	pid, err1 := strconv.Atoi(argv[1])
	prio, err2 := strconv.Atoi(argv[2])
	if err1 != nil || err2 != nil {
		fmt.Fprintf(writer{ctx}, "nice: invalid arguments\n")
		return 1
	}
	if err := ctx.k.table.Nice(pid, Priority(prio)); err != nil {
		fmt.Fprintf(writer{ctx}, "nice: unable to change priority of pid %d: %v\n", pid, err)
		return 1
	}
	fmt.Fprintf(writer{ctx}, "pid %d priority set to %d\n", pid, prio)
	return 0
}

func cmdSleep(ctx *Context, argv []string) int {
	ticks := 10
	if len(argv) == 2 {
		if n, err := strconv.Atoi(argv[1]); err == nil {
			ticks = n
		}
	}
	for i := 0; i < ticks; i++ {
		ctx.Tick()
	}
	return 0
}
