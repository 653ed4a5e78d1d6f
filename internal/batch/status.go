package batch

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// Status is the part of a batch status report the daemon acts on.
type Status struct {
	Class          string
	CompletionCode string
	State          string
	AllocNodes     string
}

// StatusParser decodes the output of the status tool.
type StatusParser interface {
	ParseStatus(data []byte) (Status, error)
}

// ErrStatusUnavailable is returned when the report holds no job status.
var ErrStatusUnavailable = errors.New("batch status unavailable")

// ServerError is an error document returned by the batch server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("batch server error %s: %s", e.Code, e.Message)
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// MoabParser reads `checkjob --format=xml` output. The report root is Data
// with a job element whose first child is the job's resource request.
type MoabParser struct{}

// ParseStatus implements StatusParser.
func (MoabParser) ParseStatus(data []byte) (Status, error) {
	var root xmlNode
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	switch root.XMLName.Local {
	case "Error":
		return Status{}, &ServerError{Code: root.attr("Code"), Message: strings.TrimSpace(root.Content)}
	case "Data":
	default:
		return Status{}, fmt.Errorf("%w: unexpected root %q", ErrStatusUnavailable, root.XMLName.Local)
	}
	if len(root.Children) == 0 || len(root.Children[0].Children) == 0 {
		return Status{}, fmt.Errorf("%w: missing job or request element", ErrStatusUnavailable)
	}
	jobNode := root.Children[0]
	req := jobNode.Children[0]
	return Status{
		Class:          jobNode.attr("Class"),
		CompletionCode: jobNode.attr("CompletionCode"),
		State:          jobNode.attr("EState"),
		AllocNodes:     req.attr("AllocNodeList"),
	}, nil
}
