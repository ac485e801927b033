// internal/database/codec.go
package database

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// treeCodec stores snapshot file trees as zstd-compressed JSON. Whole
// projects are kept per version, so most of every blob repeats the
// previous one and compresses well.
type treeCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newTreeCodec(level int) (*treeCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &treeCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *treeCodec) encode(tree map[string]SnapshotFile) ([]byte, error) {
	if tree == nil {
		tree = map[string]SnapshotFile{}
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("marshal file tree: %w", err)
	}
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *treeCodec) decode(blob []byte) (map[string]SnapshotFile, error) {
	data, err := c.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress file tree: %w", err)
	}
	tree := map[string]SnapshotFile{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal file tree: %w", err)
	}
	return tree, nil
}
