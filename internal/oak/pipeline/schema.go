package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaNode is one node in the serialized pipeline schema.
type SchemaNode struct {
	ID         int             `json:"id"`
	Name       string          `json:"name"`
	Properties json.RawMessage `json:"properties"`
}

// SchemaConnection is one link in the serialized pipeline schema.
type SchemaConnection struct {
	Node1ID     int    `json:"node1Id"`
	Node1Output string `json:"node1Output"`
	Node2ID     int    `json:"node2Id"`
	Node2Input  string `json:"node2Input"`
}

// SchemaDoc is the document uploaded to the device to instantiate the
// pipeline.
type SchemaDoc struct {
	GlobalProperties GlobalProperties   `json:"globalProperties"`
	Nodes            []SchemaNode       `json:"nodes"`
	Connections      []SchemaConnection `json:"connections"`
}

// GlobalProperties apply to the pipeline as a whole.
type GlobalProperties struct {
	PipelineVersion string `json:"pipelineVersion"`
}

// schemaVersion names the schema layout this package emits.
const schemaVersion = "1"

// Schema validates the pipeline and serializes it into the document the
// device consumes. Nodes are ordered by id and connections by
// (node1Id, node1Output, node2Id, node2Input) so the output is
// deterministic and comparable in tests.
func (p *Pipeline) Schema() (*SchemaDoc, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	doc := &SchemaDoc{
		GlobalProperties: GlobalProperties{PipelineVersion: schemaVersion},
	}

	nodes := make([]node, len(p.nodes))
	copy(nodes, p.nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].nodeID() < nodes[j].nodeID() })
	for _, n := range nodes {
		props, err := json.Marshal(n.props())
		if err != nil {
			return nil, fmt.Errorf("marshal %s properties: %w", n.Kind(), err)
		}
		doc.Nodes = append(doc.Nodes, SchemaNode{ID: n.nodeID(), Name: n.Kind(), Properties: props})
	}

	for _, l := range p.links {
		doc.Connections = append(doc.Connections, SchemaConnection{
			Node1ID:     l.From.NodeID,
			Node1Output: l.From.Port,
			Node2ID:     l.To.NodeID,
			Node2Input:  l.To.Port,
		})
	}
	sort.Slice(doc.Connections, func(i, j int) bool {
		a, b := doc.Connections[i], doc.Connections[j]
		if a.Node1ID != b.Node1ID {
			return a.Node1ID < b.Node1ID
		}
		if a.Node1Output != b.Node1Output {
			return a.Node1Output < b.Node1Output
		}
		if a.Node2ID != b.Node2ID {
			return a.Node2ID < b.Node2ID
		}
		return a.Node2Input < b.Node2Input
	})

	return doc, nil
}

// MarshalSchema serializes the pipeline schema to JSON for upload.
func (p *Pipeline) MarshalSchema() ([]byte, error) {
	doc, err := p.Schema()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// OutputStreams returns the XLinkOut stream names in node creation order.
// This is the set of host queues a session must drain.
func (p *Pipeline) OutputStreams() []string {
	var names []string
	for _, n := range p.nodes {
		if out, ok := n.(*XLinkOut); ok {
			names = append(names, out.StreamName)
		}
	}
	return names
}

// InputStreams returns the XLinkIn stream names in node creation order.
func (p *Pipeline) InputStreams() []string {
	var names []string
	for _, n := range p.nodes {
		if in, ok := n.(*XLinkIn); ok {
			names = append(names, in.StreamName)
		}
	}
	return names
}

// ParseSchema decodes a serialized schema document. The device simulator
// uses this to derive which streams a pipeline produces.
func ParseSchema(data []byte) (*SchemaDoc, error) {
	var doc SchemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pipeline schema: %w", err)
	}
	return &doc, nil
}

// NodesOfKind returns the schema nodes with the given kind name, in id
// order.
func (d *SchemaDoc) NodesOfKind(kind string) []SchemaNode {
	var out []SchemaNode
	for _, n := range d.Nodes {
		if n.Name == kind {
			out = append(out, n)
		}
	}
	return out
}

// StreamNames extracts the XLinkIn and XLinkOut stream names from a
// parsed schema.
func (d *SchemaDoc) StreamNames() (inputs, outputs []string, err error) {
	for _, n := range d.Nodes {
		switch n.Name {
		case KindXLinkIn, KindXLinkOut:
			var props struct {
				StreamName string `json:"streamName"`
			}
			if err := json.Unmarshal(n.Properties, &props); err != nil {
				return nil, nil, fmt.Errorf("node %d (%s): %w", n.ID, n.Name, err)
			}
			if n.Name == KindXLinkIn {
				inputs = append(inputs, props.StreamName)
			} else {
				outputs = append(outputs, props.StreamName)
			}
		}
	}
	return inputs, outputs, nil
}

// SourceOf returns the connection feeding the given input port, if any.
func (d *SchemaDoc) SourceOf(nodeID int, input string) (SchemaConnection, bool) {
	for _, c := range d.Connections {
		if c.Node2ID == nodeID && c.Node2Input == input {
			return c, true
		}
	}
	return SchemaConnection{}, false
}
