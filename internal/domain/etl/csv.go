package etl

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
)

var (
	// ErrEmptyCSV indicates the source file has no header row.
	ErrEmptyCSV = errors.New("csv file is empty")
	// ErrIdentifierColumnMissing indicates the mapped unique identifier is not a column of the file.
	ErrIdentifierColumnMissing = errors.New("unique identifier column not present in file")
)

// SampleCSV returns the transform sample. A truncated read is cut back to the
// last complete line so the transformer never sees a partial record.
func SampleCSV(data []byte, truncated bool) string {
	if !truncated {
		return string(data)
	}
	if idx := bytes.LastIndexByte(data, '\n'); idx >= 0 {
		return string(data[:idx+1])
	}
	return string(data)
}

// OutputFile is one graph-loadable CSV produced from a source file.
type OutputFile struct {
	Key  string
	Kind OutputKind
	Body []byte
	Rows int
}

// OutputKind distinguishes vertex files from edge files.
type OutputKind string

const (
	OutputNodes OutputKind = "nodes"
	OutputEdges OutputKind = "edges"
)

// OutputStem derives the per-file directory name from a source key.
// incoming/sales/orders.csv becomes sales_orders.
func OutputStem(sourceKey, incomingPrefix string) string {
	rel := strings.TrimPrefix(sourceKey, incomingPrefix)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.Trim(rel, "/")
	return sanitizeSegment(strings.ReplaceAll(rel, "/", "_"))
}

// NodeKey returns the deterministic vertex file key for stem.
func NodeKey(outputPrefix, stem string) string {
	return path.Join(outputPrefix, stem, stem+"_nodes.csv")
}

// EdgeKey returns the deterministic edge file key for stem and edge label.
func EdgeKey(outputPrefix, stem, edgeLabel string) string {
	return path.Join(outputPrefix, stem, stem+"_edges_"+sanitizeSegment(edgeLabel)+".csv")
}

func sanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

// RewriteParams groups the inputs of Rewrite.
type RewriteParams struct {
	Source       io.Reader
	Mapping      *model.SchemaMapping
	SourceKey    string
	Incoming     string
	OutputPrefix string
}

type columnMap struct {
	header    []string
	renamed   []string
	index     map[string]int
	idColumn  int
	nodeLabel string
}

func newColumnMap(header []string, mapping *model.SchemaMapping) (*columnMap, error) {
	cm := &columnMap{
		header:    header,
		renamed:   make([]string, len(header)),
		index:     make(map[string]int, len(header)*2),
		idColumn:  -1,
		nodeLabel: mapping.Node.NodeLabel,
	}
	rename := make(map[string]string, len(mapping.Node.OriginalHeaders))
	for i, orig := range mapping.Node.OriginalHeaders {
		if i < len(mapping.Node.TransformedHeaders) {
			rename[strings.TrimSpace(orig)] = strings.TrimSpace(mapping.Node.TransformedHeaders[i])
		}
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cm.header[i] = h
		cm.renamed[i] = h
		if r, ok := rename[h]; ok && r != "" {
			cm.renamed[i] = r
		}
		cm.index[h] = i
		if _, taken := cm.index[cm.renamed[i]]; !taken {
			cm.index[cm.renamed[i]] = i
		}
	}
	id, ok := cm.lookup(mapping.Node.UniqueIdentifier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIdentifierColumnMissing, mapping.Node.UniqueIdentifier)
	}
	cm.idColumn = id
	return cm, nil
}

// lookup resolves a column by original or transformed name, ignoring any
// ":Type" suffix on the transformed header.
func (c *columnMap) lookup(name string) (int, bool) {
	name = strings.TrimSpace(name)
	if i, ok := c.index[name]; ok {
		return i, true
	}
	for i, r := range c.renamed {
		if base, _, found := strings.Cut(r, ":"); found && base == name {
			return i, true
		}
	}
	return -1, false
}

func vertexID(label, value string) string {
	return label + "_" + value
}

type edgeWriter struct {
	def  model.EdgeDefinition
	col  int
	buf  bytes.Buffer
	w    *csv.Writer
	rows int
}

// Rewrite converts the full source file into a vertex file and one edge file
// per applicable edge definition. Keys are deterministic so a redelivered
// message overwrites the same objects.
func Rewrite(p RewriteParams) ([]OutputFile, error) {
	if p.Mapping == nil {
		return nil, errors.New("mapping is required")
	}
	if err := p.Mapping.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}

	r := csv.NewReader(p.Source)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cm, err := newColumnMap(append([]string(nil), header...), p.Mapping)
	if err != nil {
		return nil, err
	}

	stem := OutputStem(p.SourceKey, p.Incoming)
	edges := buildEdgeWriters(cm, p.Mapping.Edges)

	var nodeBuf bytes.Buffer
	nodes := csv.NewWriter(&nodeBuf)
	if err := nodes.Write(append([]string{"~id", "~label"}, cm.renamed...)); err != nil {
		return nil, fmt.Errorf("write node header: %w", err)
	}

	nodeRows := 0
	width := len(cm.header)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := normalizeWidth(rec, width)
		idValue := strings.TrimSpace(row[cm.idColumn])
		if idValue == "" {
			continue
		}
		from := vertexID(cm.nodeLabel, idValue)
		if err := nodes.Write(append([]string{from, cm.nodeLabel}, row...)); err != nil {
			return nil, fmt.Errorf("write node row: %w", err)
		}
		nodeRows++

		for _, ew := range edges {
			if err := ew.add(from, strings.TrimSpace(row[ew.col])); err != nil {
				return nil, err
			}
		}
	}

	nodes.Flush()
	if err := nodes.Error(); err != nil {
		return nil, fmt.Errorf("flush nodes: %w", err)
	}

	out := []OutputFile{{
		Key:  NodeKey(p.OutputPrefix, stem),
		Kind: OutputNodes,
		Body: nodeBuf.Bytes(),
		Rows: nodeRows,
	}}
	for _, ew := range edges {
		ew.w.Flush()
		if err := ew.w.Error(); err != nil {
			return nil, fmt.Errorf("flush edges %s: %w", ew.def.EdgeLabel, err)
		}
		if ew.rows == 0 {
			continue
		}
		out = append(out, OutputFile{
			Key:  EdgeKey(p.OutputPrefix, stem, ew.def.EdgeLabel),
			Kind: OutputEdges,
			Body: ew.buf.Bytes(),
			Rows: ew.rows,
		})
	}
	return out, nil
}

func buildEdgeWriters(cm *columnMap, set model.EdgeSet) []*edgeWriter {
	allowed := make(map[string]struct{}, len(set.MatchingEdges))
	for _, label := range set.MatchingEdges {
		allowed[strings.TrimSpace(label)] = struct{}{}
	}
	seen := make(map[string]struct{})
	var writers []*edgeWriter
	for _, def := range set.EdgeDefinitions {
		if len(allowed) > 0 {
			if _, ok := allowed[def.EdgeLabel]; !ok {
				continue
			}
		}
		col, ok := cm.lookup(def.SourceColumn)
		if !ok {
			continue
		}
		if _, dup := seen[def.EdgeLabel]; dup {
			continue
		}
		seen[def.EdgeLabel] = struct{}{}
		ew := &edgeWriter{def: def, col: col}
		ew.w = csv.NewWriter(&ew.buf)
		// Header write into a bytes.Buffer cannot fail; errors surface on Flush.
		_ = ew.w.Write([]string{"~id", "~from", "~to", "~label"})
		writers = append(writers, ew)
	}
	return writers
}

func (e *edgeWriter) add(nodeID, value string) error {
	if value == "" {
		return nil
	}
	from, to := nodeID, vertexID(e.def.TargetLabel, value)
	if e.def.Direction == model.EdgeIn {
		from, to = to, from
	}
	id := e.def.EdgeLabel + "_" + from + "_" + to
	if err := e.w.Write([]string{id, from, to, e.def.EdgeLabel}); err != nil {
		return fmt.Errorf("write edge row: %w", err)
	}
	e.rows++
	return nil
}

func normalizeWidth(rec []string, width int) []string {
	row := make([]string, width)
	copy(row, rec)
	return row
}
