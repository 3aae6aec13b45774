package codec

import (
	"github.com/dshills/flowmesh/graph"
	"gopkg.in/yaml.v3"
)

// YAMLCodec implements GraphCodec over gopkg.in/yaml.v3, grounded on the
// retrieval pack's use of yaml.v3 for operator-facing configuration files.
type YAMLCodec struct{}

func (YAMLCodec) Decode(data []byte) (*graph.Graph, error) {
	var g graph.Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (YAMLCodec) Encode(g *graph.Graph) ([]byte, error) {
	return yaml.Marshal(g)
}
