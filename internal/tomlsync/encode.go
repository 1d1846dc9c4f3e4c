package tomlsync

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

func marshalTOML(doc *mirrorDoc) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
