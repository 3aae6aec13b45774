// Package codec serializes and deserializes graph.Graph definitions, so a
// workflow can be authored as a file on disk instead of Go struct literals.
package codec

import "github.com/dshills/flowmesh/graph"

// GraphCodec encodes and decodes a graph.Graph to and from a wire format.
type GraphCodec interface {
	Decode(data []byte) (*graph.Graph, error)
	Encode(g *graph.Graph) ([]byte, error)
}

// ForExtension returns the codec matching a file extension (".json",
// ".yaml", ".yml"), or nil if the extension is unrecognized.
func ForExtension(ext string) GraphCodec {
	switch ext {
	case ".json":
		return JSONCodec{}
	case ".yaml", ".yml":
		return YAMLCodec{}
	default:
		return nil
	}
}
