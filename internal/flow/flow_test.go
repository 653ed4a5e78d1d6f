package flow

import (
	"errors"
	"testing"

	"gebr/internal/services"
)

const sampleFlow = `
title: Denoise
io:
  input: /data/in.su
  output: /data/out.su
  output_append: true
programs:
  - title: Read
    binary: suread
    stdout: true
    parameters:
      - keyword: "file="
        type: file
        value: /data/header
  - title: Filter
    binary: sufilter
    stdin: true
    stdout: true
    status: disabled
  - binary: suwrite
    stdin: true
    stdout: true
    parameters:
      - label: Gain
        keyword: "gain="
        type: float
        values: ["1.5", "2"]
        separator: ","
      - label: Options
        type: group
        instances:
          - - keyword: "-v"
              type: flag
              value: "true"
`

func TestParseDecodesDocument(t *testing.T) {
	doc, err := Parse([]byte(sampleFlow))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if doc.Title != "Denoise" || doc.IO.Input != "/data/in.su" || !doc.IO.OutputAppend {
		t.Fatalf("unexpected header: %+v", doc)
	}
	if len(doc.Programs) != 3 {
		t.Fatalf("expected 3 programs, got %d", len(doc.Programs))
	}
	if doc.Programs[0].Status != ProgramConfigured {
		t.Fatalf("expected default status configured, got %q", doc.Programs[0].Status)
	}
	if doc.Programs[1].Configured() {
		t.Fatal("disabled program reported as configured")
	}
	if doc.Programs[2].Title != "suwrite" {
		t.Fatalf("expected title to default to binary, got %q", doc.Programs[2].Title)
	}
	gain := doc.Programs[2].Parameters[0]
	if got := gain.AllValues(); len(got) != 2 || got[1] != "2" {
		t.Fatalf("unexpected gain values %v", got)
	}
	group := doc.Programs[2].Parameters[1]
	if len(group.Instances) != 1 || !group.Instances[0][0].Enabled() {
		t.Fatalf("unexpected group %+v", group)
	}
	if doc.FirstConfigured() != 0 {
		t.Fatalf("expected first configured program at 0")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "title: x\nbogus: 1\n"},
		{"unknown status", "programs:\n  - binary: a\n    status: sleeping\n"},
		{"missing binary", "programs:\n  - title: nothing\n"},
		{"unknown parameter type", "programs:\n  - binary: a\n    parameters:\n      - keyword: x\n        type: matrix\n"},
		{"instances outside group", "programs:\n  - binary: a\n    parameters:\n      - keyword: x\n        instances: [[{keyword: y}]]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	doc, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) returned error: %v", err)
	}
	if len(doc.Programs) != 0 || doc.FirstConfigured() != -1 {
		t.Fatalf("expected empty flow, got %+v", doc)
	}
}

func TestParameterHelpers(t *testing.T) {
	if !(Parameter{Values: []string{"", ""}}).Empty() {
		t.Fatal("blank values should count as empty")
	}
	if (Parameter{Value: "x"}).Empty() {
		t.Fatal("single value should not be empty")
	}
	if (Parameter{Type: ParamFlag, Value: "no"}).Enabled() {
		t.Fatal("flag 'no' should be disabled")
	}
	if !ParamRange.IsNumeric() || ParamEnum.IsNumeric() {
		t.Fatal("unexpected numeric classification")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	doc, err := Parse([]byte(sampleFlow))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}
	if again.Programs[2].Parameters[0].Separator != "," {
		t.Fatalf("separator lost in round trip")
	}
}
