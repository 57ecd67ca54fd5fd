package media

// MPEG-1 Layer III header for a 128 kbps, 44.1 kHz, stereo frame of
// silence. The payload is all zeros, which decoders render as silence.
var silenceFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x00}

// SilenceFrameSize is the byte length of one silence frame:
// 144 * bitrate / sample rate for MPEG-1 Layer III without padding.
const SilenceFrameSize = 144 * 128000 / 44100

// SilenceFrame returns one complete silent MP3 frame. The engine seeds the
// stream buffer header event with it so late joiners can sync mid-stream.
func SilenceFrame() []byte {
	frame := make([]byte, SilenceFrameSize)
	copy(frame, silenceFrameHeader)
	return frame
}

// SilencePCM is an endless reader of zero-valued 16-bit PCM samples. Piped
// into ffmpeg with SilenceEncodeArgs it yields the dead-air fallback stream.
type SilencePCM struct{}

func (SilencePCM) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
