package audio

import "encoding/binary"

// WAV wraps raw PCM bytes in a RIFF/WAVE header for the format, producing a
// file the transcription API accepts.
func WAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * f.SampleWidth

	out := make([]byte, 0, 44+len(pcm))
	le := binary.LittleEndian

	u32 := func(v int) []byte {
		var b [4]byte
		le.PutUint32(b[:], uint32(v))
		return b[:]
	}
	u16 := func(v int) []byte {
		var b [2]byte
		le.PutUint16(b[:], uint16(v))
		return b[:]
	}

	out = append(out, "RIFF"...)
	out = append(out, u32(36+len(pcm))...)
	out = append(out, "WAVE"...)
	out = append(out, "fmt "...)
	out = append(out, u32(16)...) // fmt chunk size
	out = append(out, u16(1)...)  // PCM
	out = append(out, u16(f.Channels)...)
	out = append(out, u32(f.SampleRate)...)
	out = append(out, u32(byteRate)...)
	out = append(out, u16(blockAlign)...)
	out = append(out, u16(f.SampleWidth*8)...)
	out = append(out, "data"...)
	out = append(out, u32(len(pcm))...)
	out = append(out, pcm...)
	return out
}
