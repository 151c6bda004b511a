// Package decode turns raw cached payloads into playable asset handles.
//
// One decoder exists per asset category, selected from a dispatch table.
// Payloads are decoded in the exact form the durable tier stores them, so a
// durable hit and a network hit go through the same code path.
package decode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"

	_ "image/jpeg"
	_ "image/png"

	"github.com/karstlight/assetcache/asset"
)

// Decoder decodes one category's raw payload into a handle.
type Decoder interface {
	Decode(raw []byte) (asset.Handle, error)
}

var decoders = map[asset.Category]Decoder{
	asset.CategoryEntityAnimation: animationDecoder{},
	asset.CategoryAvatarAnimation: animationDecoder{},
	asset.CategoryMusic:           audioDecoder{},
	asset.CategoryEntitySound:     audioDecoder{},
	asset.CategoryUISound:         audioDecoder{},
	asset.CategoryImage:           imageDecoder{},
}

// ForCategory returns the decoder bound to category, or nil for an unknown
// category.
func ForCategory(category asset.Category) Decoder {
	return decoders[category]
}

type animationDecoder struct{}

func (animationDecoder) Decode(raw []byte) (asset.Handle, error) {
	decoded, err := gif.DecodeAll(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode animation: %w", err)
	}
	if len(decoded.Image) == 0 {
		return nil, fmt.Errorf("decode animation: no frames")
	}
	return &asset.AnimationHandle{GIF: decoded, Raw: raw}, nil
}

// audioDecoder accepts the text-encoded payload the origin embeds in its
// sound envelopes. The durable tier stores the same text form.
type audioDecoder struct{}

func (audioDecoder) Decode(raw []byte) (asset.Handle, error) {
	data, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("decode audio: empty payload")
	}
	return &asset.AudioHandle{Raw: data}, nil
}

// imageDecoder keeps the payload as an opaque blob; dimensions are sniffed
// when the encoding is recognizable but never required.
type imageDecoder struct{}

func (imageDecoder) Decode(raw []byte) (asset.Handle, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode image: empty payload")
	}
	handle := &asset.ImageHandle{Raw: raw}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		handle.Width = cfg.Width
		handle.Height = cfg.Height
	}
	return handle, nil
}
