package asset

import "image/gif"

// Handle is one fully decoded asset held by the memory tier. Bytes returns
// the raw payload the handle was decoded from, byte-identical across cache
// tiers for the same key.
type Handle interface {
	Bytes() []byte
}

// AnimationHandle is a decoded animated sprite ready for playback.
type AnimationHandle struct {
	// GIF holds the decoded frames, per-frame delays, and loop count.
	GIF *gif.GIF
	// Raw is the encoded animation payload as fetched.
	Raw []byte
}

// Bytes returns the encoded animation payload.
func (h *AnimationHandle) Bytes() []byte { return h.Raw }

// FrameCount returns the number of decoded frames.
func (h *AnimationHandle) FrameCount() int {
	if h == nil || h.GIF == nil {
		return 0
	}
	return len(h.GIF.Image)
}

// AudioHandle is a decoded audio payload ready for the playback device.
type AudioHandle struct {
	// Raw is the decoded audio payload.
	Raw []byte
}

// Bytes returns the decoded audio payload.
func (h *AudioHandle) Bytes() []byte { return h.Raw }

// ImageHandle is an image blob. The payload is served as fetched; Width and
// Height are zero when the encoding could not be sniffed.
type ImageHandle struct {
	Raw    []byte
	Width  int
	Height int
}

// Bytes returns the image payload.
func (h *ImageHandle) Bytes() []byte { return h.Raw }
