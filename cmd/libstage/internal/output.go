package internal

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// writeReport renders v in the selected format. text renders the human form.
func writeReport(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "", "text":
		return text(w)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q, want text, yaml or json", format)
	}
}
