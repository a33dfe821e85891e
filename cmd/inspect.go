// File: cmd/inspect.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webarchiver/internal/webarchive"
)

// resourceSummary describes one archived resource.
type resourceSummary struct {
	URL        string `json:"url"`
	MIMEType   string `json:"mimeType"`
	Size       int    `json:"size"`
	StatusCode int    `json:"statusCode,omitempty"`
	Headers    int    `json:"headers"`
}

// frameSummary describes one archive and its nested frames.
type frameSummary struct {
	Depth        int               `json:"depth"`
	Main         resourceSummary   `json:"main"`
	Subresources []resourceSummary `json:"subresources"`
}

func newInspectCmd() *cobra.Command {
	var asJSON bool

	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "List the frames and resources stored in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}
			frames, err := summarizeArchive(data)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(frames)
			}
			printSummary(cmd.OutOrStdout(), frames)
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return inspectCmd
}

func summarizeArchive(data []byte) ([]frameSummary, error) {
	archive, err := webarchive.Decode(data)
	if err != nil {
		return nil, err
	}

	var frames []frameSummary
	archive.Walk(func(depth int, a *webarchive.Archive) {
		frame := frameSummary{
			Depth:        depth,
			Main:         summarizeResource(a.MainResource),
			Subresources: make([]resourceSummary, 0, len(a.Subresources)),
		}
		for _, r := range a.Subresources {
			frame.Subresources = append(frame.Subresources, summarizeResource(r))
		}
		frames = append(frames, frame)
	})
	return frames, nil
}

func summarizeResource(r webarchive.Resource) resourceSummary {
	s := resourceSummary{URL: r.URL, MIMEType: r.MIMEType, Size: len(r.Data)}
	if len(r.Response) == 0 {
		return s
	}
	if meta, err := webarchive.DecodeResponse(r.Response); err == nil {
		s.StatusCode = meta.StatusCode
		s.Headers = len(meta.Header)
	}
	return s
}

func printSummary(w io.Writer, frames []frameSummary) {
	for _, f := range frames {
		indent := strings.Repeat("  ", f.Depth)
		fmt.Fprintf(w, "%s%s [%s, %d bytes]\n", indent, f.Main.URL, f.Main.MIMEType, f.Main.Size)
		for _, r := range f.Subresources {
			status := ""
			if r.StatusCode > 0 {
				status = fmt.Sprintf(" %d", r.StatusCode)
			}
			fmt.Fprintf(w, "%s  - %s [%s, %d bytes%s]\n", indent, r.URL, r.MIMEType, r.Size, status)
		}
	}
}
