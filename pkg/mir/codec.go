package mir

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// schemaVersion changes whenever the encoded layout of Program does.
const schemaVersion uint16 = 1

type envelope struct {
	Magic   string
	Schema  uint16
	Program *Program
}

const magic = "jcc-mir"

// Encode writes p to w in the binary form read back by Decode.
func Encode(w io.Writer, p *Program) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&envelope{Magic: magic, Schema: schemaVersion, Program: p})
}

// Decode reads a program written by Encode.
func Decode(r io.Reader) (*Program, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding mir: %w", err)
	}
	if env.Magic != magic {
		return nil, fmt.Errorf("decoding mir: not a mir file")
	}
	if env.Schema != schemaVersion {
		return nil, fmt.Errorf("decoding mir: schema %d, want %d", env.Schema, schemaVersion)
	}
	if env.Program == nil {
		return &Program{}, nil
	}
	return env.Program, nil
}
