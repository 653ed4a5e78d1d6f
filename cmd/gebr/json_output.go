package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints v as one indented document.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONLine prints v compactly on a single line, for streams that emit one
// object per event.
func writeJSONLine(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
