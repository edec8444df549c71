package matrix

import (
	"bufio"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Renderer writes a titled matrix (or any sequence of rows) to w.
type Renderer interface {
	// Render writes an input matrix.
	Render(w io.Writer, title string, m Matrix) error
	// RenderTable writes an accumulated result table.
	RenderTable(w io.Writer, title string, m Matrix) error
}

// NewRenderer returns the renderer registered under format: "text" or "yaml".
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "", "text":
		return TextRenderer{}, nil
	case "yaml":
		return YAMLRenderer{}, nil
	}

	return nil, fmt.Errorf("matrix: NewRenderer: unknown format %q", format)
}

// TextRenderer prints matrices in the bracketed, space-aligned layout:
//
//	A.txt = [
//	 1  2 10
//	]
type TextRenderer struct{}

// Render implements Renderer.
func (TextRenderer) Render(w io.Writer, title string, m Matrix) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s = [ \n", title)
	for _, row := range m {
		for _, num := range row {
			if num < 10 {
				fmt.Fprintf(bw, " %d ", num)
			} else {
				fmt.Fprintf(bw, "%d ", num)
			}
		}
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("TextRenderer: Render: %w", err)
	}
	return nil
}

// RenderTable implements Renderer. Cells are not aligned: every one is printed as " %d ".
func (TextRenderer) RenderTable(w io.Writer, title string, m Matrix) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s = [ \n", title)
	for _, row := range m {
		for _, num := range row {
			fmt.Fprintf(bw, " %d ", num)
		}
		bw.WriteString("\n")
	}
	bw.WriteString("]\n")

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("TextRenderer: RenderTable: %w", err)
	}
	return nil
}

// yamlDoc is the document emitted by YAMLRenderer.
type yamlDoc struct {
	Name string  `yaml:"name"`
	Rows [][]int `yaml:"rows,flow"`
}

// YAMLRenderer emits one YAML document per matrix.
type YAMLRenderer struct{}

// Render implements Renderer.
func (YAMLRenderer) Render(w io.Writer, title string, m Matrix) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(yamlDoc{Name: title, Rows: m})
	if err != nil {
		return fmt.Errorf("YAMLRenderer: Render: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return fmt.Errorf("YAMLRenderer: Render: %w", err)
	}
	return nil
}

// RenderTable implements Renderer. Tables are documents like any other matrix.
func (r YAMLRenderer) RenderTable(w io.Writer, title string, m Matrix) error {
	return r.Render(w, title, m)
}
