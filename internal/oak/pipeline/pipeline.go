// Package pipeline builds the declarative processing graph that is
// serialized and uploaded to the device. Nodes are created through a
// Pipeline, wired with Link, and validated before serialization so wiring
// mistakes surface on the host rather than as firmware errors.
package pipeline

import (
	"fmt"

	"github.com/banshee-data/oakstress/internal/oak"
	"github.com/banshee-data/oakstress/internal/oak/message"
)

// node is implemented by every node type in this package.
type node interface {
	nodeID() int
	Kind() string
	props() any
}

// Output is a producer port on a node.
type Output struct {
	NodeID int
	Port   string
	kind   string
}

// Input is a consumer port on a node.
type Input struct {
	NodeID int
	Port   string
	kind   string
}

// Link is one directed connection between two node ports.
type Link struct {
	From Output
	To   Input
}

// Pipeline is the mutable graph under construction.
type Pipeline struct {
	nodes  []node
	links  []Link
	nextID int
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) register(n node) {
	p.nodes = append(p.nodes, n)
}

func (p *Pipeline) allocID() int {
	p.nextID++
	return p.nextID
}

// CreateColorCamera adds a color camera node with the default frame
// layout used by the detection networks: planar BGR, non-interleaved.
func (p *Pipeline) CreateColorCamera() *ColorCamera {
	n := &ColorCamera{id: p.allocID(), ColorOrder: "BGR"}
	p.register(n)
	return n
}

// CreateMonoCamera adds a mono camera node.
func (p *Pipeline) CreateMonoCamera() *MonoCamera {
	n := &MonoCamera{id: p.allocID()}
	p.register(n)
	return n
}

// CreateToF adds a time-of-flight decoder node.
func (p *Pipeline) CreateToF() *ToF {
	n := &ToF{id: p.allocID()}
	p.register(n)
	return n
}

// CreateStereoDepth adds a stereo depth node.
func (p *Pipeline) CreateStereoDepth() *StereoDepth {
	n := &StereoDepth{id: p.allocID()}
	p.register(n)
	return n
}

// CreateVideoEncoder adds a video encoder node.
func (p *Pipeline) CreateVideoEncoder() *VideoEncoder {
	n := &VideoEncoder{id: p.allocID()}
	p.register(n)
	return n
}

// CreateEdgeDetector adds an edge detector node.
func (p *Pipeline) CreateEdgeDetector() *EdgeDetector {
	n := &EdgeDetector{id: p.allocID()}
	p.register(n)
	return n
}

// CreateYoloDetectionNetwork adds a YOLO detection network node.
func (p *Pipeline) CreateYoloDetectionNetwork() *YoloDetectionNetwork {
	n := &YoloDetectionNetwork{id: p.allocID()}
	p.register(n)
	return n
}

// CreateYoloSpatialDetectionNetwork adds a spatial YOLO network node.
func (p *Pipeline) CreateYoloSpatialDetectionNetwork() *YoloSpatialDetectionNetwork {
	n := &YoloSpatialDetectionNetwork{id: p.allocID()}
	p.register(n)
	return n
}

// CreateSystemLogger adds a telemetry logger node.
func (p *Pipeline) CreateSystemLogger() *SystemLogger {
	n := &SystemLogger{id: p.allocID()}
	p.register(n)
	return n
}

// CreateXLinkIn adds a host-to-device stream node.
func (p *Pipeline) CreateXLinkIn() *XLinkIn {
	n := &XLinkIn{id: p.allocID()}
	p.register(n)
	return n
}

// CreateXLinkOut adds a device-to-host stream node.
func (p *Pipeline) CreateXLinkOut() *XLinkOut {
	n := &XLinkOut{id: p.allocID()}
	p.register(n)
	return n
}

func validPort(table map[string][]string, kind, port string) bool {
	for _, name := range table[kind] {
		if name == port {
			return true
		}
	}
	return false
}

// Link connects an output port to an input port. An input accepts a
// single producer; outputs may fan out to any number of inputs.
func (p *Pipeline) Link(from Output, to Input) error {
	if !validPort(nodeOutputs, from.kind, from.Port) {
		return fmt.Errorf("node %s has no output %q", from.kind, from.Port)
	}
	if !validPort(nodeInputs, to.kind, to.Port) {
		return fmt.Errorf("node %s has no input %q", to.kind, to.Port)
	}
	for _, l := range p.links {
		if l.To.NodeID == to.NodeID && l.To.Port == to.Port {
			return fmt.Errorf("input %s.%s already has a producer", to.kind, to.Port)
		}
	}
	p.links = append(p.links, Link{From: from, To: to})
	return nil
}

// Nodes returns the nodes in creation order.
func (p *Pipeline) Nodes() []node {
	return p.nodes
}

// Links returns the connections in creation order.
func (p *Pipeline) Links() []Link {
	return p.links
}

// validate checks graph-level invariants that individual Link calls
// cannot see.
func (p *Pipeline) validate() error {
	streams := make(map[string]bool)
	sockets := make(map[oak.CameraBoardSocket]string)

	for _, n := range p.nodes {
		switch t := n.(type) {
		case *XLinkIn:
			if t.StreamName == "" {
				return fmt.Errorf("XLinkIn node %d has no stream name", t.id)
			}
			if streams[t.StreamName] {
				return fmt.Errorf("duplicate stream name %q", t.StreamName)
			}
			streams[t.StreamName] = true
		case *XLinkOut:
			if t.StreamName == "" {
				return fmt.Errorf("XLinkOut node %d has no stream name", t.id)
			}
			if streams[t.StreamName] {
				return fmt.Errorf("duplicate stream name %q", t.StreamName)
			}
			streams[t.StreamName] = true
		case *ColorCamera:
			if prev, taken := sockets[t.Socket]; taken {
				return fmt.Errorf("socket %s already driven by %s", t.Socket, prev)
			}
			sockets[t.Socket] = t.Kind()
		case *MonoCamera:
			if prev, taken := sockets[t.Socket]; taken {
				return fmt.Errorf("socket %s already driven by %s", t.Socket, prev)
			}
			sockets[t.Socket] = t.Kind()
		case *ToF:
			if t.InitialConfig.FreqModUsed == "" {
				t.InitialConfig.FreqModUsed = message.ToFFModAll
			}
		}
	}
	return nil
}
