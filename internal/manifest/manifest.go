// Package manifest reads the input reference list. The manifest format
// is owned by the metadata-loading collaborator; the pipeline only needs
// an ordered slice of references, so this package supports the two
// interchange formats that collaborator emits (JSON lines and CSV).
package manifest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vid2set/vid2set/internal/dataset"
)

// Load reads references from path, sniffing the format by extension.
// Every reference gets its manifest position as Index, and a derived ID
// when the manifest does not provide one.
func Load(path string) ([]dataset.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return readCSV(f, filepath.Ext(path) == ".tsv")
	default:
		return readJSONL(f)
	}
}

func readJSONL(r io.Reader) ([]dataset.Reference, error) {
	dec := json.NewDecoder(r)
	var refs []dataset.Reference
	for {
		var ref dataset.Reference
		if err := dec.Decode(&ref); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decode manifest line %d: %w", len(refs)+1, err)
		}
		if ref.URL == "" {
			return nil, fmt.Errorf("manifest line %d has no url", len(refs)+1)
		}
		finalize(&ref, len(refs))
		refs = append(refs, ref)
	}
	return refs, nil
}

func readCSV(r io.Reader, tab bool) ([]dataset.Reference, error) {
	cr := csv.NewReader(r)
	if tab {
		cr.Comma = '\t'
	}
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	urlCol, ok := cols["url"]
	if !ok {
		return nil, fmt.Errorf("manifest has no url column")
	}

	var refs []dataset.Reference
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest row %d: %w", len(refs)+2, err)
		}
		ref := dataset.Reference{URL: field(rec, urlCol)}
		if i, ok := cols["id"]; ok {
			ref.ID = field(rec, i)
		}
		if i, ok := cols["caption"]; ok {
			ref.Caption = field(rec, i)
		}
		if ref.URL == "" {
			return nil, fmt.Errorf("manifest row %d has no url", len(refs)+2)
		}
		finalize(&ref, len(refs))
		refs = append(refs, ref)
	}
	return refs, nil
}

func finalize(ref *dataset.Reference, index int) {
	ref.Index = index
	if ref.ID == "" {
		ref.ID = fmt.Sprintf("%09d", index)
	}
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}
