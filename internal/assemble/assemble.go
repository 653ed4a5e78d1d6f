package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"gebr/internal/flow"
)

// MPIResolver renders the launcher command for an MPI flavor.
type MPIResolver interface {
	Command(flavor string, nprocs int, binary string) (string, bool)
}

// bracketer is implemented by resolvers whose flavors need setup and
// teardown commands around the whole flow.
type bracketer interface {
	Bracket(flavor string) (init, end string)
}

// Result is the outcome of assembling a flow.
type Result struct {
	CmdLine  string
	Issues   []string
	Critical bool
	// ReadsStdin is true when the first configured program consumes
	// standard input. Runners close stdin otherwise.
	ReadsStdin bool
}

// Issue messages.
const (
	IssueEmptyFlow      = "Empty flow."
	IssueNoPrograms     = "No configured programs."
	IssueNoInput        = "No input file selected."
	IssueMergedStderr   = "No error file selected; error output merged with standard output."
	IssueNoOutput       = "Proceeding without output file."
	issueSkipped        = "%d) Skipping disabled/not configured program '%s'."
	issueMPIUnsupported = "Requested MPI (%s) is not supported by this server."
	issueNoChainInput   = "Broken flow before %s (no input)."
	issueUnexpectedOut  = "Broken flow before %s (unexpected output)."
	issueInvalidValue   = "Invalid value '%s' for parameter '%s' of program '%s'."
	issueRequired       = "Required parameter '%s' of program '%s' not provided."
)

type assembler struct {
	doc     *flow.Document
	mpi     MPIResolver
	nprocs  int
	tokens  []string
	issues  []string
	skipped int
	flavors []string
}

// Assemble builds the command line for doc. A nil resolver rejects every
// MPI request.
func Assemble(doc *flow.Document, mpi MPIResolver, nprocs int) Result {
	a := &assembler{doc: doc, mpi: mpi, nprocs: nprocs}
	ok := a.run()
	result := Result{Issues: a.issues}
	if !ok {
		result.Critical = true
		return result
	}
	result.CmdLine = a.bracket(strings.Join(a.tokens, " "))
	if first := doc.FirstConfigured(); first >= 0 {
		result.ReadsStdin = doc.Programs[first].Stdin
	}
	return result
}

// bracket wraps cmdline with the init and end commands of the first MPI
// flavor used.
func (a *assembler) bracket(cmdline string) string {
	b, ok := a.mpi.(bracketer)
	if !ok || len(a.flavors) == 0 {
		return cmdline
	}
	init, end := b.Bracket(a.flavors[0])
	if init != "" {
		cmdline = init + " ; " + cmdline
	}
	if end != "" {
		cmdline = cmdline + " ; " + end
	}
	return cmdline
}

func (a *assembler) issue(format string, args ...any) {
	a.issues = append(a.issues, fmt.Sprintf(format, args...))
}

func (a *assembler) emit(tokens ...string) {
	a.tokens = append(a.tokens, tokens...)
}

func (a *assembler) skip(prog flow.Program) {
	a.skipped++
	a.issue(issueSkipped, a.skipped, prog.Title)
}

func (a *assembler) run() bool {
	if a.doc == nil || len(a.doc.Programs) == 0 {
		a.issue(IssueEmptyFlow)
		return false
	}
	programs := a.doc.Programs
	io := a.doc.IO
	hasErrorFile := io.Error != ""

	idx := 0
	for idx < len(programs) && !programs[idx].Configured() {
		a.skip(programs[idx])
		idx++
	}
	if idx == len(programs) {
		a.issue(IssueNoPrograms)
		return false
	}

	first := programs[idx]
	if !a.emitBinary(first) {
		return false
	}
	if !a.emitParameters(first.Parameters, first) {
		return false
	}
	if first.Stdin {
		if io.Input == "" {
			a.issue(IssueNoInput)
			return false
		}
		a.emit(`<"` + escapeQuoted(io.Input) + `"`)
	}
	if first.Stderr && hasErrorFile {
		if io.ErrorAppend {
			a.emit(`2>> "` + escapeQuoted(io.Error) + `"`)
		} else {
			a.emit(`2> "` + escapeQuoted(io.Error) + `"`)
		}
	}

	previousStdout := first.Stdout
	for _, prog := range programs[idx+1:] {
		if !prog.Configured() {
			a.skip(prog)
			continue
		}
		chain := boolInt(prog.Stdin) + 2*boolInt(previousStdout)
		switch chain {
		case 0:
			a.emit(";")
		case 1:
			a.issue(issueNoChainInput, prog.Title)
			return false
		case 2:
			a.issue(issueUnexpectedOut, prog.Title)
			return false
		case 3:
			a.emit("|")
		}
		if !a.emitBinary(prog) {
			return false
		}
		if !a.emitParameters(prog.Parameters, prog) {
			return false
		}
		if prog.Stderr && hasErrorFile {
			a.emit(`2>> "` + escapeQuoted(io.Error) + `"`)
		}
		previousStdout = prog.Stdout
	}

	if !hasErrorFile {
		a.issue(IssueMergedStderr)
	}
	if previousStdout {
		switch {
		case io.Output == "":
			a.issue(IssueNoOutput)
		case io.OutputAppend:
			a.emit(`>> "` + escapeQuoted(io.Output) + `"`)
		default:
			a.emit(`> "` + escapeQuoted(io.Output) + `"`)
		}
	}
	return true
}

func (a *assembler) emitBinary(prog flow.Program) bool {
	if prog.MPI == "" {
		a.emit(prog.Binary)
		return true
	}
	var (
		cmd string
		ok  bool
	)
	if a.mpi != nil {
		cmd, ok = a.mpi.Command(prog.MPI, a.nprocs, prog.Binary)
	}
	if !ok {
		a.issue(issueMPIUnsupported, prog.MPI)
		return false
	}
	a.flavors = append(a.flavors, prog.MPI)
	a.emit(cmd)
	return true
}

func (a *assembler) emitParameters(params []flow.Parameter, prog flow.Program) bool {
	for _, param := range params {
		if !a.emitParameter(param, prog) {
			return false
		}
	}
	return true
}

func (a *assembler) emitParameter(param flow.Parameter, prog flow.Program) bool {
	switch param.Type {
	case flow.ParamGroup:
		for _, instance := range param.Instances {
			if !a.emitParameters(instance, prog) {
				return false
			}
		}
		return true
	case flow.ParamFlag:
		if param.Enabled() {
			a.emit(param.Keyword)
		}
		return true
	}

	values := stripped(param.AllValues())
	if len(values) == 0 {
		if param.Required {
			a.issue(issueRequired, param.Label, prog.Title)
			return false
		}
		return true
	}

	switch {
	case param.Type == flow.ParamEnum:
		a.emit(param.Keyword + ShellQuote(strings.Join(values, param.Separator)))
	case param.Type.IsNumeric():
		for _, v := range values {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				a.issue(issueInvalidValue, v, param.Label, prog.Title)
				return false
			}
		}
		a.emit(param.Keyword + `"` + strings.Join(values, param.Separator) + `"`)
	default:
		escaped := make([]string, len(values))
		for i, v := range values {
			escaped[i] = escapeQuoted(v)
		}
		a.emit(param.Keyword + `"` + strings.Join(escaped, param.Separator) + `"`)
	}
	return true
}

func stripped(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func escapeQuoted(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
