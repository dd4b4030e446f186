package pipeline

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/oakstress/internal/oak"
)

func TestLinkRejectsUnknownPorts(t *testing.T) {
	p := New()
	cam := p.CreateColorCamera()
	xout := p.CreateXLinkOut()
	xout.SetStreamName("preview_CAM_A")

	bogus := Output{NodeID: cam.nodeID(), Port: "nonsense", kind: cam.Kind()}
	if err := p.Link(bogus, xout.Input()); err == nil {
		t.Fatal("expected error linking unknown output port")
	}

	bogusIn := Input{NodeID: xout.nodeID(), Port: "nonsense", kind: xout.Kind()}
	if err := p.Link(cam.Preview(), bogusIn); err == nil {
		t.Fatal("expected error linking unknown input port")
	}
}

func TestLinkRejectsSecondProducer(t *testing.T) {
	p := New()
	camA := p.CreateColorCamera()
	camB := p.CreateColorCamera()
	camB.Socket = oak.SocketCamB
	xout := p.CreateXLinkOut()
	xout.SetStreamName("preview")

	if err := p.Link(camA.Preview(), xout.Input()); err != nil {
		t.Fatalf("first link: %v", err)
	}
	err := p.Link(camB.Preview(), xout.Input())
	if err == nil {
		t.Fatal("expected error wiring second producer into one input")
	}
	if !strings.Contains(err.Error(), "already has a producer") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSchemaRejectsDuplicateStreamNames(t *testing.T) {
	p := New()
	a := p.CreateXLinkOut()
	a.SetStreamName("depth")
	b := p.CreateXLinkOut()
	b.SetStreamName("depth")

	if _, err := p.Schema(); err == nil {
		t.Fatal("expected duplicate stream name to fail validation")
	}
}

func TestSchemaRejectsDoubleDrivenSocket(t *testing.T) {
	p := New()
	p.CreateColorCamera() // CAM_A by zero value
	mono := p.CreateMonoCamera()
	mono.Socket = oak.SocketCamA

	if _, err := p.Schema(); err == nil {
		t.Fatal("expected socket conflict to fail validation")
	}
}

func TestSchemaRejectsUnnamedXLinkNodes(t *testing.T) {
	p := New()
	p.CreateXLinkOut()
	if _, err := p.Schema(); err == nil {
		t.Fatal("expected unnamed XLinkOut to fail validation")
	}
}

func TestSchemaIsDeterministic(t *testing.T) {
	build := func() *Pipeline {
		p := New()
		cam := p.CreateColorCamera()
		cam.Resolution = oak.Res1080P
		cam.FPS = 20
		cam.SetPreviewSize(416, 416)
		xout := p.CreateXLinkOut()
		xout.SetStreamName("preview_CAM_A")
		xout.SetInputBlocking(false)
		xout.SetInputQueueSize(4)
		if err := p.Link(cam.Preview(), xout.Input()); err != nil {
			t.Fatalf("link: %v", err)
		}
		xin := p.CreateXLinkIn()
		xin.SetStreamName("cam_control")
		if err := p.Link(xin.Out(), cam.InputControl()); err != nil {
			t.Fatalf("link: %v", err)
		}
		return p
	}

	doc1, err := build().Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	doc2, err := build().Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if diff := cmp.Diff(doc1, doc2); diff != "" {
		t.Errorf("schema not deterministic (-first +second):\n%s", diff)
	}

	if len(doc1.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(doc1.Nodes))
	}
	for i, n := range doc1.Nodes {
		if i > 0 && doc1.Nodes[i-1].ID >= n.ID {
			t.Errorf("nodes not ordered by id: %d before %d", doc1.Nodes[i-1].ID, n.ID)
		}
	}
}

func TestSchemaRoundTripStreamNames(t *testing.T) {
	p := New()
	cam := p.CreateColorCamera()
	cam.Resolution = oak.Res1080P
	xout := p.CreateXLinkOut()
	xout.SetStreamName("preview_CAM_A")
	if err := p.Link(cam.Preview(), xout.Input()); err != nil {
		t.Fatalf("link: %v", err)
	}
	xin := p.CreateXLinkIn()
	xin.SetStreamName("cam_control")
	if err := p.Link(xin.Out(), cam.InputControl()); err != nil {
		t.Fatalf("link: %v", err)
	}

	data, err := p.MarshalSchema()
	if err != nil {
		t.Fatalf("MarshalSchema: %v", err)
	}
	doc, err := ParseSchema(data)
	if err != nil {
		t.Fatalf("ParseSchema: %v", err)
	}

	inputs, outputs, err := doc.StreamNames()
	if err != nil {
		t.Fatalf("StreamNames: %v", err)
	}
	if diff := cmp.Diff([]string{"cam_control"}, inputs); diff != "" {
		t.Errorf("inputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"preview_CAM_A"}, outputs); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}

	if got := p.OutputStreams(); len(got) != 1 || got[0] != "preview_CAM_A" {
		t.Errorf("OutputStreams = %v", got)
	}
	if got := p.InputStreams(); len(got) != 1 || got[0] != "cam_control" {
		t.Errorf("InputStreams = %v", got)
	}
}

func TestSourceOf(t *testing.T) {
	p := New()
	cam := p.CreateColorCamera()
	xout := p.CreateXLinkOut()
	xout.SetStreamName("preview_CAM_A")
	if err := p.Link(cam.Preview(), xout.Input()); err != nil {
		t.Fatalf("link: %v", err)
	}

	doc, err := p.Schema()
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	conn, ok := doc.SourceOf(xout.nodeID(), "input")
	if !ok {
		t.Fatal("SourceOf found no producer for XLinkOut input")
	}
	if conn.Node1ID != cam.nodeID() || conn.Node1Output != "preview" {
		t.Errorf("unexpected source %+v", conn)
	}
	if _, ok := doc.SourceOf(cam.nodeID(), "inputControl"); ok {
		t.Error("SourceOf reported a producer for an unlinked input")
	}
}
