package batch

import (
	"errors"
	"testing"
)

func TestMoabParser(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    Status
		wantErr error
		server  *ServerError
	}{
		{
			name: "running job",
			doc: `<?xml version="1.0"?><Data><job AName="STDIN" Class="batch" EState="Running" JobID="17">` +
				`<req AllocNodeList="n1" ReqProcs="2"></req></job></Data>`,
			want: Status{Class: "batch", State: "Running", AllocNodes: "n1"},
		},
		{
			name: "completion code",
			doc:  `<Data><job Class="long" CompletionCode="-4" EState="Completed"><req AllocNodeList="n1,n2"/></job></Data>`,
			want: Status{Class: "long", CompletionCode: "-4", State: "Completed", AllocNodes: "n1,n2"},
		},
		{
			name:   "server error",
			doc:    `<Error Code="700"> invalid job </Error>`,
			server: &ServerError{Code: "700", Message: "invalid job"},
		},
		{name: "unexpected root", doc: `<Other/>`, wantErr: ErrStatusUnavailable},
		{name: "missing request", doc: `<Data><job Class="x"/></Data>`, wantErr: ErrStatusUnavailable},
		{name: "missing job", doc: `<Data></Data>`, wantErr: ErrStatusUnavailable},
		{name: "garbage", doc: `not xml`, wantErr: ErrStatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MoabParser{}.ParseStatus([]byte(tt.doc))
			switch {
			case tt.server != nil:
				var serverErr *ServerError
				if !errors.As(err, &serverErr) || *serverErr != *tt.server {
					t.Fatalf("expected server error %+v, got %v", tt.server, err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("ParseStatus: %v", err)
				}
				if got != tt.want {
					t.Fatalf("ParseStatus = %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}
