package flow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"gebr/internal/services"
)

// ProgramStatus reports whether a program takes part in execution.
type ProgramStatus string

const (
	ProgramConfigured   ProgramStatus = "configured"
	ProgramUnconfigured ProgramStatus = "unconfigured"
	ProgramDisabled     ProgramStatus = "disabled"
)

// ParameterType selects how a parameter value is rendered on the command line.
type ParameterType string

const (
	ParamString ParameterType = "string"
	ParamFile   ParameterType = "file"
	ParamInt    ParameterType = "int"
	ParamFloat  ParameterType = "float"
	ParamRange  ParameterType = "range"
	ParamEnum   ParameterType = "enum"
	ParamFlag   ParameterType = "flag"
	ParamGroup  ParameterType = "group"
)

// IsNumeric reports whether values of the type must parse as numbers.
func (t ParameterType) IsNumeric() bool {
	switch t {
	case ParamInt, ParamFloat, ParamRange:
		return true
	default:
		return false
	}
}

func (t ParameterType) valid() bool {
	switch t {
	case ParamString, ParamFile, ParamInt, ParamFloat, ParamRange, ParamEnum, ParamFlag, ParamGroup:
		return true
	default:
		return false
	}
}

// IO holds the flow-wide file redirections.
type IO struct {
	Input        string `yaml:"input"`
	Output       string `yaml:"output"`
	Error        string `yaml:"error"`
	OutputAppend bool   `yaml:"output_append"`
	ErrorAppend  bool   `yaml:"error_append"`
}

// Parameter is one program argument. Group parameters carry their nested
// parameters per instance instead of values.
type Parameter struct {
	Label     string        `yaml:"label"`
	Keyword   string        `yaml:"keyword"`
	Type      ParameterType `yaml:"type"`
	Required  bool          `yaml:"required"`
	Value     string        `yaml:"value"`
	Values    []string      `yaml:"values"`
	Separator string        `yaml:"separator"`
	Instances [][]Parameter `yaml:"instances"`
}

// AllValues returns the parameter's values, preferring the list form.
func (p Parameter) AllValues() []string {
	if len(p.Values) > 0 {
		return p.Values
	}
	if p.Value != "" {
		return []string{p.Value}
	}
	return nil
}

// Empty reports whether every value of the parameter is blank.
func (p Parameter) Empty() bool {
	for _, v := range p.AllValues() {
		if v != "" {
			return false
		}
	}
	return true
}

// Enabled reports whether a flag parameter is switched on.
func (p Parameter) Enabled() bool {
	values := p.AllValues()
	if len(values) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(values[0])) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Program is one step of a flow.
type Program struct {
	Title      string        `yaml:"title"`
	Binary     string        `yaml:"binary"`
	Stdin      bool          `yaml:"stdin"`
	Stdout     bool          `yaml:"stdout"`
	Stderr     bool          `yaml:"stderr"`
	MPI        string        `yaml:"mpi"`
	Status     ProgramStatus `yaml:"status"`
	Parameters []Parameter   `yaml:"parameters"`
}

// Configured reports whether the program is ready to run.
func (p Program) Configured() bool {
	return p.Status == ProgramConfigured
}

// Document is a decoded flow.
type Document struct {
	Title    string    `yaml:"title"`
	IO       IO        `yaml:"io"`
	Programs []Program `yaml:"programs"`
}

// FirstConfigured returns the index of the first configured program, or -1.
func (d *Document) FirstConfigured() int {
	if d == nil {
		return -1
	}
	for i, prog := range d.Programs {
		if prog.Configured() {
			return i
		}
	}
	return -1
}

// Parse decodes a YAML flow document. Programs without a status default to
// configured.
func Parse(data []byte) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var doc Document
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, services.Wrap(services.ErrValidation, "flow", "decode", "invalid flow document", err)
	}
	if err := doc.normalize(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "flow", "validate", "", err)
	}
	return &doc, nil
}

// Marshal encodes the document back to YAML.
func Marshal(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("flow: nil document")
	}
	return yaml.Marshal(doc)
}

func (d *Document) normalize() error {
	d.Title = strings.TrimSpace(d.Title)
	for i := range d.Programs {
		prog := &d.Programs[i]
		prog.Binary = strings.TrimSpace(prog.Binary)
		prog.MPI = strings.TrimSpace(prog.MPI)
		switch prog.Status {
		case "":
			prog.Status = ProgramConfigured
		case ProgramConfigured, ProgramUnconfigured, ProgramDisabled:
		default:
			return fmt.Errorf("program %d: unknown status %q", i+1, prog.Status)
		}
		if prog.Title == "" {
			prog.Title = prog.Binary
		}
		if prog.Configured() && prog.Binary == "" {
			return fmt.Errorf("program %d (%s): binary is required", i+1, prog.Title)
		}
		if err := normalizeParameters(prog.Parameters); err != nil {
			return fmt.Errorf("program %d (%s): %w", i+1, prog.Title, err)
		}
	}
	return nil
}

func normalizeParameters(params []Parameter) error {
	for i := range params {
		param := &params[i]
		if param.Type == "" {
			param.Type = ParamString
		}
		if !param.Type.valid() {
			return fmt.Errorf("parameter %q: unknown type %q", param.Label, param.Type)
		}
		if param.Label == "" {
			param.Label = strings.TrimSpace(param.Keyword)
		}
		if param.Type != ParamGroup && len(param.Instances) > 0 {
			return fmt.Errorf("parameter %q: only groups carry instances", param.Label)
		}
		for _, instance := range param.Instances {
			if err := normalizeParameters(instance); err != nil {
				return err
			}
		}
	}
	return nil
}
